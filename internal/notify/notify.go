package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/nahidhasan98/icon-sync/internal/logger"
)

// Summary describes one finished sync
type Summary struct {
	DeliveryID string
	Repository string // source owner/repo
	Ref        string
	Pusher     string
	Target     string // target owner/repo
	CommitSHA  string
	Added      int
	Removed    int
	Modified   int
	Err        error
}

// Notifier tells an operator about finished syncs
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Nop drops every notification
type Nop struct{}

func (Nop) Notify(context.Context, Summary) error { return nil }

// TextSender delivers a plain text message to a recipient
type TextSender interface {
	SendText(ctx context.Context, to string, text string) error
}

// MessageNotifier formats summaries as text and hands them to a TextSender
type MessageNotifier struct {
	sender    TextSender
	recipient string
	log       *logger.Logger
}

// NewMessageNotifier creates a notifier sending to recipient
func NewMessageNotifier(sender TextSender, recipient string, log *logger.Logger) *MessageNotifier {
	return &MessageNotifier{sender: sender, recipient: recipient, log: log}
}

// Notify sends the formatted summary
func (n *MessageNotifier) Notify(ctx context.Context, s Summary) error {
	if n.recipient == "" {
		return fmt.Errorf("notify: no recipient configured")
	}
	if err := n.sender.SendText(ctx, n.recipient, Format(s)); err != nil {
		return fmt.Errorf("notify %s: %w", n.recipient, err)
	}
	n.log.With("recipient", n.recipient).With("delivery", s.DeliveryID).Debug("sync notification sent")
	return nil
}

// Format renders a summary as a chat message
func Format(s Summary) string {
	var b strings.Builder

	if s.Err != nil {
		fmt.Fprintf(&b, "*Icon sync failed*\n")
	} else {
		fmt.Fprintf(&b, "*Icons updated*\n")
	}

	fmt.Fprintf(&b, "\nSource: %s", s.Repository)
	if branch := strings.TrimPrefix(s.Ref, "refs/heads/"); branch != "" {
		fmt.Fprintf(&b, " (%s)", branch)
	}
	if s.Pusher != "" {
		fmt.Fprintf(&b, "\nPushed by: %s", s.Pusher)
	}
	if s.Target != "" {
		fmt.Fprintf(&b, "\nTarget: %s", s.Target)
	}

	fmt.Fprintf(&b, "\n\nAdded: %d\nRemoved: %d\nModified: %d", s.Added, s.Removed, s.Modified)

	if s.CommitSHA != "" {
		sha := s.CommitSHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		fmt.Fprintf(&b, "\nCommit: %s", sha)
	}
	if s.Err != nil {
		fmt.Fprintf(&b, "\n\nError: %v", s.Err)
	}
	return b.String()
}
