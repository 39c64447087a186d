package model

import (
	"fmt"
	"strings"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled:
		return s, nil
	}
	return "", Invalid("status", fmt.Sprintf("unknown status %q", raw))
}

// Active statuses occupy their interval for conflict purposes.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

func (s Status) String() string { return string(s) }

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected},
	StatusConfirmed: {StatusCancelled},
}

// Transition reports whether moving from s to next changes anything.
// Same-state requests and requests out of a terminal state are no-ops
// (changed=false, err=nil). A CONFIRMED appointment is settled as far as the
// provider's response goes: it only moves on to CANCELLED, and any other
// request is a no-op. Undefined moves return a ValidationError.
func (s Status) Transition(next Status) (changed bool, err error) {
	if s == next || s.Terminal() {
		return false, nil
	}
	if s == StatusConfirmed && next != StatusCancelled {
		return false, nil
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true, nil
		}
	}
	return false, Invalid("status", fmt.Sprintf("cannot move appointment from %s to %s", s, next))
}

type MatchStatus string

const (
	MatchSuggested MatchStatus = "suggested"
	MatchAccepted  MatchStatus = "accepted"
	MatchCancelled MatchStatus = "cancelled"
)
