// Package unavailability manages the periods in which a lawyer takes no
// appointments.
package unavailability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store"
)

type Service struct {
	store  store.Store
	logger *slog.Logger
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

type Period struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (p *Period) validate() error {
	switch {
	case p.Start.IsZero() || p.End.IsZero():
		return model.Invalid("start_time", "start and end are required")
	case !p.Start.Before(p.End):
		return model.Invalid("end_time", "must be after start_time")
	}
	p.Reason = strings.TrimSpace(p.Reason)
	return nil
}

func (s *Service) Create(ctx context.Context, actor model.Party, p Period) (model.Unavailability, error) {
	if !actor.IsLawyer() {
		return model.Unavailability{}, model.Invalid("actor", "only lawyers manage unavailability")
	}
	if err := p.validate(); err != nil {
		return model.Unavailability{}, err
	}
	u := model.Unavailability{LawyerID: actor.ID(), StartTime: p.Start, EndTime: p.End, Reason: p.Reason}
	err := s.store.Atomic(ctx, func(q store.Querier) error {
		if err := noClash(ctx, q, u); err != nil {
			return err
		}
		return q.InsertUnavailability(ctx, &u)
	}, store.PartyLock(actor))
	if err != nil {
		return model.Unavailability{}, err
	}
	s.logger.InfoContext(ctx, "unavailability created", "id", u.ID, "lawyer_id", u.LawyerID)
	return u, nil
}

func (s *Service) Update(ctx context.Context, actor model.Party, id string, p Period) (model.Unavailability, error) {
	if err := p.validate(); err != nil {
		return model.Unavailability{}, err
	}
	var u model.Unavailability
	err := s.store.Atomic(ctx, func(q store.Querier) error {
		var err error
		u, err = owned(ctx, q, actor, id)
		if err != nil {
			return err
		}
		u.StartTime, u.EndTime, u.Reason = p.Start, p.End, p.Reason
		if err := noClash(ctx, q, u); err != nil {
			return err
		}
		return q.UpdateUnavailability(ctx, &u)
	}, store.PartyLock(actor))
	if err != nil {
		return model.Unavailability{}, err
	}
	s.logger.InfoContext(ctx, "unavailability updated", "id", u.ID, "lawyer_id", u.LawyerID)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, actor model.Party, id string) error {
	err := s.store.Atomic(ctx, func(q store.Querier) error {
		if _, err := owned(ctx, q, actor, id); err != nil {
			return err
		}
		return q.DeleteUnavailability(ctx, id)
	}, store.PartyLock(actor))
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "unavailability deleted", "id", id, "lawyer_id", actor.ID())
	return nil
}

// List returns the lawyer's periods ordered by start. A zero window returns all of them.
func (s *Service) List(ctx context.Context, lawyerID int64, window intervals.Interval) ([]model.Unavailability, error) {
	if lawyerID <= 0 {
		return nil, model.Invalid("lawyer_id", "must be a positive integer")
	}
	return s.store.ListUnavailability(ctx, lawyerID, window)
}

func owned(ctx context.Context, q store.Querier, actor model.Party, id string) (model.Unavailability, error) {
	if strings.TrimSpace(id) == "" {
		return model.Unavailability{}, model.Invalid("id", "is required")
	}
	if !actor.IsLawyer() {
		return model.Unavailability{}, model.NotFound("unavailability")
	}
	u, err := q.GetUnavailability(ctx, id)
	if err != nil {
		return model.Unavailability{}, err
	}
	if u.LawyerID != actor.ID() {
		return model.Unavailability{}, model.NotFound("unavailability")
	}
	return u, nil
}

func noClash(ctx context.Context, q store.Querier, u model.Unavailability) error {
	existing, err := q.UnavailabilityOverlapping(ctx, u.LawyerID, intervals.OfUnavailability(u))
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.ID != u.ID {
			return &model.ConflictError{Kind: model.HardConflict, Message: "period overlaps an existing unavailability period"}
		}
	}
	return nil
}
