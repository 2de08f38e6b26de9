package view

import (
	"context"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/spec-kit/staff-profile/internal/service"
)

// ConsoleNotifier prints notifications as one coloured line each.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier writes to out.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

// Notify implements service.Notifier.
func (n *ConsoleNotifier) Notify(_ context.Context, notification service.Notification) error {
	title := color.New(color.FgHiGreen, color.Bold)
	if notification.Kind == service.NotificationError {
		title = color.New(color.FgHiRed, color.Bold)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := title.Fprint(n.out, notification.Title+": "); err != nil {
		return err
	}
	_, err := io.WriteString(n.out, notification.Message+"\n")
	return err
}

var _ service.Notifier = (*ConsoleNotifier)(nil)
