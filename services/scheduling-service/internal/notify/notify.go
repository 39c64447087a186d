// Package notify carries in-app notifications and transactional emails off
// the request path. Domain services talk to an Emitter, which never fails;
// delivery errors are logged by the Dispatcher and dropped.
package notify

import (
	"context"
	"time"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type Type string

const (
	TypeAppointmentRequest   Type = "appointment_request"
	TypeAppointmentSent      Type = "appointment_sent"
	TypeAppointmentConfirmed Type = "appointment_confirmed"
	TypeAppointmentStatus    Type = "appointment_status"
	TypeAppointmentCancelled Type = "appointment_cancelled"
	TypeMatchFound           Type = "match_found"
	TypeCaseAssigned         Type = "case_assigned"
	TypeCaseUnassigned       Type = "case_unassigned"
)

type Notification struct {
	Recipient   model.Party
	Message     string
	Type        Type
	ReferenceID string
}

type AppointmentEmail struct {
	To model.Party
	// Contact is resolved from To by the Dispatcher when Email is empty.
	Contact       model.Contact
	Counterpart   string
	AppointmentID string
	Start         time.Time
	End           time.Time
	Channel       string
	Description   string
}

type CancellationEmail struct {
	To            model.Party
	Contact       model.Contact
	CancelledBy   string
	Reason        string
	AppointmentID string
	Start         time.Time
	End           time.Time
	CaseID        int64
	CaseTitle     string
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

type Mailer interface {
	SendAppointmentEmail(ctx context.Context, e AppointmentEmail) error
	SendCancellationEmail(ctx context.Context, e CancellationEmail) error
}

type ContactResolver interface {
	Lookup(ctx context.Context, p model.Party) (model.Contact, error)
}

// Emitter is the fire-and-forget surface used by the domain services.
type Emitter interface {
	Notify(ctx context.Context, n Notification)
	AppointmentEmail(ctx context.Context, e AppointmentEmail)
	CancellationEmail(ctx context.Context, e CancellationEmail)
}
