package notify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/tallyflow/workcfg/internal/cascade"
)

// maxDiscordContent is Discord's message content limit, in characters.
const maxDiscordContent = 2000

// webhookSession abstracts the discordgo.Session method we use, enabling test mocks.
type webhookSession interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts conflicts to a Discord webhook.
type Discord struct {
	sess      webhookSession
	webhookID string
	token     string
}

// NewDiscord returns a Discord notifier for the webhook id and token.
// Webhook execution needs no bot token.
func NewDiscord(webhookID, token string) (*Discord, error) {
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &Discord{sess: s, webhookID: webhookID, token: token}, nil
}

// NotifyConflict implements reconcile.Notifier.
func (d *Discord) NotifyConflict(ctx context.Context, tenant, datasourceID string, deps []cascade.Dependency) error {
	content := truncate(FormatConflict(tenant, datasourceID, deps), maxDiscordContent)
	_, err := d.sess.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Content:  content,
		Username: "workcfg",
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord webhook: %w", err)
	}
	return nil
}

// truncate cuts s to at most limit runes, ending in "..." when shortened.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
