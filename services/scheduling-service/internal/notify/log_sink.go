package notify

import (
	"context"
	"log/slog"
)

// LogSink logs instead of delivering. Used when no database outbox is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification", "recipient", n.Recipient.Key(), "type", n.Type, "reference_id", n.ReferenceID, "message", n.Message)
	return nil
}

func (s *LogSink) SendAppointmentEmail(ctx context.Context, e AppointmentEmail) error {
	s.logger.InfoContext(ctx, "appointment email", "to", e.Contact.Email, "appointment_id", e.AppointmentID)
	return nil
}

func (s *LogSink) SendCancellationEmail(ctx context.Context, e CancellationEmail) error {
	s.logger.InfoContext(ctx, "cancellation email", "to", e.Contact.Email, "appointment_id", e.AppointmentID, "case_id", e.CaseID)
	return nil
}
