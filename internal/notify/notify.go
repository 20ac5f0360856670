// Package notify delivers approval requests to the people whose vote a
// pending change needs. Delivery itself (email, push) happens outside this
// service; notifiers here hand the message off.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"instahelp/pkg/email"
)

// Notifier sends one message to one recipient address.
type Notifier interface {
	Notify(ctx context.Context, recipient, message string) error
}

// ChangeSummary is what an approver is told about a pending change.
type ChangeSummary struct {
	ChangeID  string
	FieldPath string
	NewValue  json.RawMessage
	Private   bool
}

// ApprovalRequestMessage composes "Change to <field>: <value>". Values bound
// for the encrypted profile are withheld; the approver reviews them after
// signing in.
func ApprovalRequestMessage(recipient string, c ChangeSummary) string {
	body := fmt.Sprintf("Change to %s: %s", c.FieldPath, string(c.NewValue))
	if c.Private {
		body = fmt.Sprintf("Change to %s awaiting your review", c.FieldPath)
	}
	return fmt.Sprintf("%s\n\n%s\n\nReference: %s", email.Greeting(recipient), body, c.ChangeID)
}

// LogNotifier writes notifications to the structured log. It is the
// development default when no delivery transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient, message string) error {
	n.logger.InfoContext(ctx, "approval request",
		"recipient", recipient,
		"message", message,
		"log_type", "notification",
	)
	return nil
}
