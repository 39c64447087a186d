// Package events holds the Kafka topics and JSON payloads exchanged between
// the scheduling and notification services. The topic name is the event type.
package events

import (
	"errors"
	"time"
)

const (
	TopicNotificationRequested = "legalaid.notification.requested.v1"
	TopicEmailRequested        = "legalaid.email.requested.v1"
)

// NotificationRequested asks for an in-app notification.
type NotificationRequested struct {
	RecipientID   int64     `json:"recipient_id"`
	RecipientRole string    `json:"recipient_role"`
	Message       string    `json:"message"`
	Type          string    `json:"type"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

func (n NotificationRequested) Validate() error {
	switch {
	case n.RecipientID <= 0 || n.RecipientRole == "":
		return errors.New("recipient is required")
	case n.Message == "":
		return errors.New("message is required")
	case n.Type == "":
		return errors.New("type is required")
	}
	return nil
}

type EmailKind string

const (
	EmailAppointment  EmailKind = "appointment"
	EmailCancellation EmailKind = "cancellation"
)

// EmailRequested asks for one transactional email.
type EmailRequested struct {
	Kind          EmailKind `json:"kind"`
	To            string    `json:"to"`
	ToName        string    `json:"to_name"`
	Counterpart   string    `json:"counterpart"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	CaseID        int64     `json:"case_id,omitempty"`
	CaseTitle     string    `json:"case_title,omitempty"`
	StartTime     time.Time `json:"start_time,omitempty"`
	EndTime       time.Time `json:"end_time,omitempty"`
	Channel       string    `json:"channel,omitempty"`
	Description   string    `json:"description,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

func (e EmailRequested) Validate() error {
	switch {
	case e.Kind != EmailAppointment && e.Kind != EmailCancellation:
		return errors.New("unknown email kind")
	case e.To == "":
		return errors.New("recipient address is required")
	}
	return nil
}
