package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/legalaid-connect/legalaid/libs/events"
)

// Compose renders the subject and plain-text body of a requested email.
// Times are shown in loc.
func Compose(e events.EmailRequested, loc *time.Location) (subject string, body string) {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", orDefault(e.ToName, "there"))

	switch e.Kind {
	case events.EmailCancellation:
		if e.CaseTitle != "" {
			subject = fmt.Sprintf("Case %q unassigned", e.CaseTitle)
			fmt.Fprintf(&b, "%s has withdrawn from case %q.\n", orDefault(e.Counterpart, "The other party"), e.CaseTitle)
		} else {
			subject = "Appointment cancelled"
			fmt.Fprintf(&b, "%s cancelled your appointment.\n", orDefault(e.Counterpart, "The other party"))
		}
		if !e.StartTime.IsZero() {
			fmt.Fprintf(&b, "Appointment: %s\n", span(e.StartTime, e.EndTime, loc))
		}
		if e.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", e.Reason)
		}
	default:
		subject = "New appointment request"
		fmt.Fprintf(&b, "%s requested an appointment with you.\n", orDefault(e.Counterpart, "A client"))
		fmt.Fprintf(&b, "When: %s\n", span(e.StartTime, e.EndTime, loc))
		if e.Channel != "" {
			fmt.Fprintf(&b, "Type: %s\n", e.Channel)
		}
		if e.Description != "" {
			fmt.Fprintf(&b, "Details: %s\n", e.Description)
		}
		b.WriteString("\nPlease confirm or reject the request.\n")
	}
	return subject, b.String()
}

func span(start, end time.Time, loc *time.Location) string {
	s := start.In(loc).Format("Mon 02 Jan 2006 15:04")
	if end.IsZero() {
		return s + " " + start.In(loc).Format("MST")
	}
	return s + "-" + end.In(loc).Format("15:04 MST")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
