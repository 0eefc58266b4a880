package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/tallyflow/workcfg/internal/cascade"
)

// Slack posts conflicts to a Slack incoming webhook.
type Slack struct {
	webhookURL string
}

// NewSlack returns a Slack notifier for webhookURL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{webhookURL: webhookURL}
}

// NotifyConflict implements reconcile.Notifier.
func (s *Slack) NotifyConflict(ctx context.Context, tenant, datasourceID string, deps []cascade.Dependency) error {
	text := FormatConflict(tenant, datasourceID, deps)
	msg := &slack.WebhookMessage{
		Text: text,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "```"+text+"```", false, false), nil, nil),
		}},
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("notify: slack webhook: %w", err)
	}
	return nil
}
