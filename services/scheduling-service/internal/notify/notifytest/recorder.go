// Package notifytest provides a synchronous notify.Emitter for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify"
)

type Recorder struct {
	mu            sync.Mutex
	notifications []notify.Notification
	appointments  []notify.AppointmentEmail
	cancellations []notify.CancellationEmail
}

var _ notify.Emitter = (*Recorder)(nil)

func New() *Recorder { return &Recorder{} }

func (r *Recorder) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *Recorder) AppointmentEmail(_ context.Context, e notify.AppointmentEmail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments = append(r.appointments, e)
}

func (r *Recorder) CancellationEmail(_ context.Context, e notify.CancellationEmail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancellations = append(r.cancellations, e)
}

func (r *Recorder) Notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.notifications...)
}

// For returns the notifications addressed to p.
func (r *Recorder) For(p model.Party) []notify.Notification {
	var out []notify.Notification
	for _, n := range r.Notifications() {
		if n.Recipient == p {
			out = append(out, n)
		}
	}
	return out
}

func (r *Recorder) AppointmentEmails() []notify.AppointmentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.AppointmentEmail(nil), r.appointments...)
}

func (r *Recorder) CancellationEmails() []notify.CancellationEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.CancellationEmail(nil), r.cancellations...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = nil
	r.appointments = nil
	r.cancellations = nil
}
