package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/legalaid-connect/legalaid/libs/events"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/outbox"
)

// OutboxSink records notifications and emails as outbox events for the
// notification service. It implements both Sink and Mailer.
type OutboxSink struct {
	ex   outbox.Execer
	repo *outbox.Repository
	now  func() time.Time
}

func NewOutboxSink(ex outbox.Execer, repo *outbox.Repository) *OutboxSink {
	return &OutboxSink{ex: ex, repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *OutboxSink) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(events.NotificationRequested{
		RecipientID:   n.Recipient.ID(),
		RecipientRole: string(n.Recipient.Role()),
		Message:       n.Message,
		Type:          string(n.Type),
		ReferenceID:   n.ReferenceID,
		RequestedAt:   s.now(),
	})
	if err != nil {
		return err
	}
	aggregateID := n.ReferenceID
	if aggregateID == "" {
		aggregateID = n.Recipient.Key()
	}
	_, err = s.repo.Insert(ctx, s.ex, outbox.Event{
		AggregateType: "notification",
		AggregateID:   aggregateID,
		EventType:     events.TopicNotificationRequested,
		Payload:       payload,
	})
	return err
}

func (s *OutboxSink) SendAppointmentEmail(ctx context.Context, e AppointmentEmail) error {
	return s.email(ctx, e.AppointmentID, events.EmailRequested{
		Kind:          events.EmailAppointment,
		To:            e.Contact.Email,
		ToName:        e.Contact.Name,
		Counterpart:   e.Counterpart,
		AppointmentID: e.AppointmentID,
		StartTime:     e.Start,
		EndTime:       e.End,
		Channel:       e.Channel,
		Description:   e.Description,
	})
}

func (s *OutboxSink) SendCancellationEmail(ctx context.Context, e CancellationEmail) error {
	return s.email(ctx, e.AppointmentID, events.EmailRequested{
		Kind:          events.EmailCancellation,
		To:            e.Contact.Email,
		ToName:        e.Contact.Name,
		Counterpart:   e.CancelledBy,
		AppointmentID: e.AppointmentID,
		CaseID:        e.CaseID,
		CaseTitle:     e.CaseTitle,
		StartTime:     e.Start,
		EndTime:       e.End,
		Reason:        e.Reason,
	})
}

func (s *OutboxSink) email(ctx context.Context, aggregateID string, evt events.EmailRequested) error {
	evt.RequestedAt = s.now()
	if err := evt.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if aggregateID == "" {
		aggregateID = evt.To
	}
	_, err = s.repo.Insert(ctx, s.ex, outbox.Event{
		AggregateType: "email",
		AggregateID:   aggregateID,
		EventType:     events.TopicEmailRequested,
		Payload:       payload,
	})
	return err
}
