// Package conflict decides whether a proposed interval can be booked for a
// provider/requester pair.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type Outcome int

const (
	OK Outcome = iota
	// BlockedConfirmed is a hard block: provider unavailable or already
	// holding a PENDING/CONFIRMED appointment in the interval.
	BlockedConfirmed
	// BlockedOverridable is a requester-side overlap; resubmit with Override.
	BlockedOverridable
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case BlockedConfirmed:
		return "blocked_confirmed"
	case BlockedOverridable:
		return "blocked_overridable"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Request struct {
	Provider  model.Party
	Requester model.Party
	Start     time.Time
	End       time.Time
	// Override skips the requester-side check only.
	Override bool
}

type Decision struct {
	Outcome Outcome
	Message string
	// ProviderName names the provider of the requester's conflicting
	// appointment on BlockedOverridable.
	ProviderName string
	// ConflictingID is the id of the blocking appointment, if any.
	ConflictingID string
}

func (d Decision) Blocked() bool { return d.Outcome != OK }

// Err converts a blocked decision to a *model.ConflictError, nil when OK.
func (d Decision) Err() error {
	switch d.Outcome {
	case BlockedConfirmed:
		return &model.ConflictError{Kind: model.HardConflict, Message: d.Message}
	case BlockedOverridable:
		return &model.ConflictError{Kind: model.SoftConflict, Message: d.Message, ProviderName: d.ProviderName}
	}
	return nil
}

type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// Check runs the unavailability, provider-side and requester-side checks in
// that order against q. The only error returned is a store error; an
// invalid interval is the caller's to reject.
func (d *Detector) Check(ctx context.Context, q intervals.Store, req Request) (Decision, error) {
	window := intervals.New(req.Start, req.End)

	if req.Provider.IsLawyer() {
		periods, err := q.UnavailabilityOverlapping(ctx, req.Provider.ID(), window)
		if err != nil {
			return Decision{}, fmt.Errorf("load unavailability: %w", err)
		}
		if len(periods) > 0 {
			msg := "lawyer is unavailable during this time"
			if r := periods[0].Reason; r != "" {
				msg += " (" + r + ")"
			}
			return Decision{Outcome: BlockedConfirmed, Message: msg}, nil
		}
	}

	held, err := q.ProviderAppointmentsOverlapping(ctx, req.Provider, window)
	if err != nil {
		return Decision{}, fmt.Errorf("load provider appointments: %w", err)
	}
	if len(held) > 0 {
		blocking := held[0]
		for _, a := range held {
			if a.Status == model.StatusConfirmed {
				blocking = a
				break
			}
		}
		msg := "provider has a pending request for this time"
		if blocking.Status == model.StatusConfirmed {
			msg = "provider is already booked for this time"
		}
		return Decision{Outcome: BlockedConfirmed, Message: msg, ConflictingID: blocking.ID}, nil
	}

	if req.Override {
		return Decision{Outcome: OK}, nil
	}

	mine, err := q.RequesterAppointmentsOverlapping(ctx, req.Requester, window)
	if err != nil {
		return Decision{}, fmt.Errorf("load requester appointments: %w", err)
	}
	if len(mine) > 0 {
		other := mine[0]
		name := other.ProviderName
		return Decision{
			Outcome:       BlockedOverridable,
			Message:       fmt.Sprintf("you already have an appointment with %s at this time", name),
			ProviderName:  name,
			ConflictingID: other.ID,
		}, nil
	}
	return Decision{Outcome: OK}, nil
}
