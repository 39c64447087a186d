package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type SlotStatus string

const (
	Unavailable SlotStatus = "UNAVAILABLE"
	Booked      SlotStatus = "BOOKED"
	Conflict    SlotStatus = "CONFLICT"
	Available   SlotStatus = "AVAILABLE"
)

const DateLayout = "2006-01-02"

type Config struct {
	OpenHour  int
	CloseHour int
	Step      time.Duration
	Location  *time.Location
}

func DefaultConfig() Config {
	return Config{OpenHour: 9, CloseHour: 17, Step: time.Hour, Location: time.UTC}
}

func (c Config) validate() error {
	if c.OpenHour < 0 || c.CloseHour > 24 || c.OpenHour >= c.CloseHour {
		return fmt.Errorf("availability: business hours %d-%d are invalid", c.OpenHour, c.CloseHour)
	}
	if c.Step <= 0 || time.Duration(c.CloseHour-c.OpenHour)*time.Hour%c.Step != 0 {
		return fmt.Errorf("availability: step %s does not divide business hours", c.Step)
	}
	return nil
}

type Slot struct {
	// Label is the canonical slot key, e.g. "09:00".
	Label string
	// Display is the human range, e.g. "09:00 AM - 10:00 AM".
	Display string
	Start   time.Time
	End     time.Time
	Status  SlotStatus
	// ConflictWith names the provider of the requester's overlapping
	// appointment when Status is Conflict.
	ConflictWith string
}

type Query struct {
	Provider model.Party
	// Date is YYYY-MM-DD in the grid's location.
	Date      string
	Requester *model.Party
}

type Grid struct {
	store intervals.Store
	cfg   Config
}

func NewGrid(store intervals.Store, cfg Config) (*Grid, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Grid{store: store, cfg: cfg}, nil
}

func (g *Grid) Config() Config { return g.cfg }

// ParseDate reads a YYYY-MM-DD date as midnight in the grid's location.
func (g *Grid) ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, raw, g.cfg.Location)
	if err != nil {
		return time.Time{}, model.Invalid("date", "must be YYYY-MM-DD")
	}
	return d, nil
}

// Compute returns the slot grid for q.Date in start order. Status precedence
// is Unavailable, Booked, Conflict, Available.
func (g *Grid) Compute(ctx context.Context, q Query) ([]Slot, error) {
	if !q.Provider.Valid() || !q.Provider.IsProvider() {
		return nil, model.Invalid("provider", "must be a lawyer or ngo")
	}
	day, err := g.ParseDate(q.Date)
	if err != nil {
		return nil, err
	}

	open := time.Date(day.Year(), day.Month(), day.Day(), g.cfg.OpenHour, 0, 0, 0, g.cfg.Location)
	closeAt := time.Date(day.Year(), day.Month(), day.Day(), g.cfg.CloseHour, 0, 0, 0, g.cfg.Location)
	window := intervals.New(open, closeAt)

	var blocked []intervals.Interval
	if q.Provider.IsLawyer() {
		periods, err := g.store.UnavailabilityOverlapping(ctx, q.Provider.ID(), window)
		if err != nil {
			return nil, fmt.Errorf("load unavailability: %w", err)
		}
		for _, p := range periods {
			blocked = append(blocked, intervals.OfUnavailability(p))
		}
	}

	held, err := g.store.ProviderAppointmentsOverlapping(ctx, q.Provider, window)
	if err != nil {
		return nil, fmt.Errorf("load provider appointments: %w", err)
	}
	booked := make([]intervals.Interval, 0, len(held))
	for _, a := range held {
		booked = append(booked, intervals.OfAppointment(a))
	}

	var mine []model.Appointment
	if q.Requester != nil && q.Requester.Valid() {
		mine, err = g.store.RequesterAppointmentsOverlapping(ctx, *q.Requester, window)
		if err != nil {
			return nil, fmt.Errorf("load requester appointments: %w", err)
		}
	}

	var slots []Slot
	for t := open; t.Before(closeAt); t = t.Add(g.cfg.Step) {
		span := intervals.New(t, t.Add(g.cfg.Step))
		slot := Slot{
			Label:   t.Format("15:04"),
			Display: t.Format("03:04 PM") + " - " + span.End.Format("03:04 PM"),
			Start:   span.Start,
			End:     span.End,
			Status:  Available,
		}
		switch {
		case intervals.AnyOverlap(span, blocked):
			slot.Status = Unavailable
		case intervals.AnyOverlap(span, booked):
			slot.Status = Booked
		default:
			for _, a := range mine {
				if intervals.Overlaps(span, intervals.OfAppointment(a)) {
					slot.Status = Conflict
					slot.ConflictWith = a.ProviderName
					break
				}
			}
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// Free keeps only Available slots.
func Free(slots []Slot) []Slot {
	var out []Slot
	for _, s := range slots {
		if s.Status == Available {
			out = append(out, s)
		}
	}
	return out
}
