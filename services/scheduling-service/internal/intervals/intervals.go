// Package intervals holds the half-open interval algebra shared by conflict
// detection and availability, and the read-side IntervalStore contract.
package intervals

import (
	"context"
	"time"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

func (i Interval) Valid() bool {
	return !i.Start.IsZero() && i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports a1 < b2 && b1 < a2. Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func AnyOverlap(target Interval, others []Interval) bool {
	for _, o := range others {
		if Overlaps(target, o) {
			return true
		}
	}
	return false
}

func OfAppointment(a model.Appointment) Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

func OfUnavailability(u model.Unavailability) Interval {
	return Interval{Start: u.StartTime, End: u.EndTime}
}

// Store is read access to everything that occupies time for a party. All
// methods return rows overlapping window, ordered by start time. Appointment
// methods only return PENDING and CONFIRMED rows.
type Store interface {
	UnavailabilityOverlapping(ctx context.Context, lawyerID int64, window Interval) ([]model.Unavailability, error)
	ProviderAppointmentsOverlapping(ctx context.Context, provider model.Party, window Interval) ([]model.Appointment, error)
	RequesterAppointmentsOverlapping(ctx context.Context, requester model.Party, window Interval) ([]model.Appointment, error)
}
