package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/domain"
)

// Message is what a contact receives for an alert.
type Message struct {
	AlertID    string
	EntityID   string
	EntityName string
	Kind       domain.AlertKind
	Severity   domain.SafetyStatus
	Text       string
	RaisedAt   time.Time
}

// Notifier performs one delivery attempt to one contact. Returning an error
// wrapped with Permanent stops further retries for that contact.
type Notifier interface {
	Notify(ctx context.Context, contact domain.ContactRef, msg Message) error
}

type NotifierFunc func(ctx context.Context, contact domain.ContactRef, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, contact domain.ContactRef, msg Message) error {
	return f(ctx, contact, msg)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Router picks a notifier by the contact's channel.
type Router map[domain.Channel]Notifier

func (r Router) Notify(ctx context.Context, contact domain.ContactRef, msg Message) error {
	n, ok := r[contact.Channel]
	if !ok {
		return Permanent(fmt.Errorf("no notifier for channel %q", contact.Channel))
	}
	return n.Notify(ctx, contact, msg)
}

// LogNotifier only logs. It stands in for a gateway in development.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, contact domain.ContactRef, msg Message) error {
	n.logger.Info("Notification (log only)",
		zap.String("contact_id", contact.ID),
		zap.String("channel", string(contact.Channel)),
		zap.String("alert_id", msg.AlertID),
		zap.String("text", msg.Text),
	)
	return nil
}

var kindText = map[domain.AlertKind]string{
	domain.AlertLocation: "left all authorized zones",
	domain.AlertBattery:  "device battery is low",
	domain.AlertStale:    "device has stopped reporting",
	domain.AlertManual:   "emergency alert sent by a guardian",
}

// ComposeMessage builds the contact-facing message for an alert.
func ComposeMessage(alert *domain.Alert, entity domain.Entity) Message {
	name := entity.Name
	if name == "" {
		name = entity.ID
	}
	text := fmt.Sprintf("[%s] %s: %s", alert.Severity, name, kindText[alert.Kind])
	if alert.Reason != "" {
		text += fmt.Sprintf(" (%s)", alert.Reason)
	}
	if alert.Message != "" {
		text += ". " + alert.Message
	}
	return Message{
		AlertID:    alert.ID,
		EntityID:   alert.EntityID,
		EntityName: name,
		Kind:       alert.Kind,
		Severity:   alert.Severity,
		Text:       text,
		RaisedAt:   alert.RaisedAt,
	}
}
