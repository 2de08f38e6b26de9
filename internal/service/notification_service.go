package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/events"
)

// NotificationKind selects how a notification is presented.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification is a titled message shown to the staff member.
type Notification struct {
	Kind    NotificationKind
	Title   string
	Message string
}

// Notifier presents notifications, e.g. as a dialog or a terminal line.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Messages shown for each user-visible outcome.
var (
	NotifyProfileSaved         = Notification{Kind: NotificationSuccess, Title: "Success", Message: "Profile updated successfully"}
	NotifyProfileSaveFailed    = Notification{Kind: NotificationError, Title: "Error", Message: "Error updating profile data"}
	NotifyPasswordMismatch     = Notification{Kind: NotificationError, Title: "Error", Message: "New password and confirm password do not match!"}
	NotifyPasswordChanged      = Notification{Kind: NotificationSuccess, Title: "Success", Message: "Password changed successfully"}
	NotifyPasswordChangeFailed = Notification{Kind: NotificationError, Title: "Error", Message: "Current password is incorrect or error updating password"}
)

// NotificationService turns controller events into notifications. Session and
// profile-load failures are only logged. It is the one place controller
// failures are logged.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSessionDecodeFailed, n.logOnly)
	n.dispatcher.Subscribe(events.EventProfileLoadFailed, n.logOnly)
	n.dispatcher.Subscribe(events.EventProfileLoaded, n.logOnly)
	n.dispatcher.Subscribe(events.EventProfileSaved, n.show(NotifyProfileSaved))
	n.dispatcher.Subscribe(events.EventProfileSaveFailed, n.show(NotifyProfileSaveFailed))
	n.dispatcher.Subscribe(events.EventPasswordMismatch, n.show(NotifyPasswordMismatch))
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.show(NotifyPasswordChanged))
	n.dispatcher.Subscribe(events.EventPasswordChangeFailed, n.show(NotifyPasswordChangeFailed))
}

func (n *NotificationService) logOnly(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(event.Type)),
		zap.String("subject_id", event.SubjectID),
	}
	if event.Err != nil {
		n.logger.Error(string(event.Type), append(fields, zap.Error(event.Err))...)
		return nil
	}
	n.logger.Debug(string(event.Type), fields...)
	return nil
}

func (n *NotificationService) show(notification Notification) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		fields := []zap.Field{
			zap.String("event_type", string(event.Type)),
			zap.String("subject_id", event.SubjectID),
		}
		if event.Err != nil {
			n.logger.Warn(notification.Message, append(fields, zap.Error(event.Err))...)
		} else {
			n.logger.Info(notification.Message, fields...)
		}

		if n.notifier == nil {
			return nil
		}
		return n.notifier.Notify(ctx, notification)
	}
}
