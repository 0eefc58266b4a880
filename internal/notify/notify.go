// Package notify delivers dependency-conflict notices to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tallyflow/workcfg/internal/cascade"
)

// Notifier delivers one conflict notice.
type Notifier interface {
	NotifyConflict(ctx context.Context, tenant, datasourceID string, deps []cascade.Dependency) error
}

// Multi fans a conflict out to several notifiers. Every notifier is tried;
// the errors are joined.
type Multi []Notifier

// NotifyConflict implements reconcile.Notifier.
func (m Multi) NotifyConflict(ctx context.Context, tenant, datasourceID string, deps []cascade.Dependency) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyConflict(ctx, tenant, datasourceID, deps); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatConflict renders a conflict as plain text with one line per
// blocked entity.
func FormatConflict(tenant, datasourceID string, deps []cascade.Dependency) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Configuration update for %s/%s was blocked: %d entit%s still referenced.\n",
		tenant, datasourceID, len(deps), plural(len(deps), "y is", "ies are"))
	for _, d := range deps {
		var parts []string
		if len(d.BlockingFilters) > 0 {
			parts = append(parts, "filters: "+strings.Join(d.BlockingFilters, ", "))
		}
		if len(d.BlockingRooms) > 0 {
			parts = append(parts, "rooms: "+strings.Join(d.BlockingRooms, ", "))
		}
		fmt.Fprintf(&b, "- %s (%s)\n", d.EntityName, strings.Join(parts, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
