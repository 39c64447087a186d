// Package delivery applies notification and email events consumed from Kafka.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/legalaid-connect/legalaid/libs/events"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/email"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/storage"
)

type Store interface {
	InsertNotification(ctx context.Context, n storage.Notification) error
	InsertEmailDelivery(ctx context.Context, d storage.EmailDelivery) error
}

type Handler struct {
	store  Store
	mailer email.Sender
	logger *slog.Logger
	loc    *time.Location
}

func NewHandler(store Store, mailer email.Sender, logger *slog.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{store: store, mailer: mailer, logger: logger, loc: loc}
}

// Handle routes by topic. Malformed payloads are logged and dropped; only
// storage failures are returned.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case events.TopicNotificationRequested:
		return h.notification(ctx, msg)
	case events.TopicEmailRequested:
		return h.email(ctx, msg)
	default:
		h.logger.WarnContext(ctx, "unexpected topic", "topic", msg.Topic)
		return nil
	}
}

func (h *Handler) notification(ctx context.Context, msg kafka.Message) error {
	var evt events.NotificationRequested
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.ErrorContext(ctx, "invalid notification payload", "err", err)
		return nil
	}
	if err := evt.Validate(); err != nil {
		h.logger.ErrorContext(ctx, "invalid notification event", "err", err)
		return nil
	}
	if err := h.store.InsertNotification(ctx, storage.Notification{
		RecipientRole: evt.RecipientRole,
		RecipientID:   evt.RecipientID,
		Message:       evt.Message,
		Type:          evt.Type,
		ReferenceID:   evt.ReferenceID,
	}); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	h.logger.InfoContext(ctx, "notification stored", "recipient_role", evt.RecipientRole, "recipient_id", evt.RecipientID, "type", evt.Type)
	return nil
}

func (h *Handler) email(ctx context.Context, msg kafka.Message) error {
	var evt events.EmailRequested
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.ErrorContext(ctx, "invalid email payload", "err", err)
		return nil
	}
	if err := evt.Validate(); err != nil {
		h.logger.ErrorContext(ctx, "invalid email event", "err", err)
		return nil
	}

	subject, body := email.Compose(evt, h.loc)
	d := storage.EmailDelivery{
		Kind:        string(evt.Kind),
		Recipient:   evt.To,
		Subject:     subject,
		ReferenceID: evt.AppointmentID,
		Status:      "sent",
	}
	if d.ReferenceID == "" && evt.CaseID > 0 {
		d.ReferenceID = fmt.Sprint(evt.CaseID)
	}
	if err := h.mailer.Send(ctx, email.Message{To: evt.To, Subject: subject, Body: body}); err != nil {
		d.Status = "failed"
		d.ErrorReason = err.Error()
		h.logger.ErrorContext(ctx, "email send failed", "err", err, "recipient", evt.To, "kind", evt.Kind)
	}
	if err := h.store.InsertEmailDelivery(ctx, d); err != nil {
		return fmt.Errorf("store email delivery: %w", err)
	}
	h.logger.InfoContext(ctx, "email processed", "kind", evt.Kind, "status", d.Status)
	return nil
}
