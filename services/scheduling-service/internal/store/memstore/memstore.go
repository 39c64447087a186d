// Package memstore is an in-process store.Store. Atomic sections are fully
// serialised and rolled back from a snapshot on error. It mirrors the
// Postgres constraints (provider exclusion, lawyer unavailability exclusion,
// case match natural key) so callers observe the same failures.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store"
)

type matchKey struct {
	caseID   int64
	provider model.Party
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	appointments   map[string]model.Appointment
	unavailability map[string]model.Unavailability
	matches        map[matchKey]model.CaseMatch
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:            func() time.Time { return time.Now().UTC() },
		appointments:   map[string]model.Appointment{},
		unavailability: map[string]model.Unavailability{},
		matches:        map[matchKey]model.CaseMatch{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Atomic(ctx context.Context, fn func(q store.Querier) error, _ ...store.LockKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	if err := fn(view{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	appointments   map[string]model.Appointment
	unavailability map[string]model.Unavailability
	matches        map[matchKey]model.CaseMatch
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		appointments:   make(map[string]model.Appointment, len(s.appointments)),
		unavailability: make(map[string]model.Unavailability, len(s.unavailability)),
		matches:        make(map[matchKey]model.CaseMatch, len(s.matches)),
	}
	for k, v := range s.appointments {
		snap.appointments[k] = v
	}
	for k, v := range s.unavailability {
		snap.unavailability[k] = v
	}
	for k, v := range s.matches {
		snap.matches[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.appointments = snap.appointments
	s.unavailability = snap.unavailability
	s.matches = snap.matches
}

func (s *Store) locked(fn func(v view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(view{s})
}

func (s *Store) UnavailabilityOverlapping(ctx context.Context, lawyerID int64, window intervals.Interval) (out []model.Unavailability, err error) {
	err = s.locked(func(v view) error {
		out, err = v.UnavailabilityOverlapping(ctx, lawyerID, window)
		return err
	})
	return out, err
}

func (s *Store) ProviderAppointmentsOverlapping(ctx context.Context, provider model.Party, window intervals.Interval) (out []model.Appointment, err error) {
	err = s.locked(func(v view) error {
		out, err = v.ProviderAppointmentsOverlapping(ctx, provider, window)
		return err
	})
	return out, err
}

func (s *Store) RequesterAppointmentsOverlapping(ctx context.Context, requester model.Party, window intervals.Interval) (out []model.Appointment, err error) {
	err = s.locked(func(v view) error {
		out, err = v.RequesterAppointmentsOverlapping(ctx, requester, window)
		return err
	})
	return out, err
}

func (s *Store) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	return s.locked(func(v view) error { return v.InsertAppointment(ctx, appt) })
}

func (s *Store) GetAppointment(ctx context.Context, id string) (out model.Appointment, err error) {
	err = s.locked(func(v view) error {
		out, err = v.GetAppointment(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status model.Status, reason string, at time.Time) error {
	return s.locked(func(v view) error { return v.UpdateAppointmentStatus(ctx, id, status, reason, at) })
}

func (s *Store) ListAppointmentsForParty(ctx context.Context, p model.Party, limit int) (out []model.Appointment, err error) {
	err = s.locked(func(v view) error {
		out, err = v.ListAppointmentsForParty(ctx, p, limit)
		return err
	})
	return out, err
}

func (s *Store) InsertUnavailability(ctx context.Context, u *model.Unavailability) error {
	return s.locked(func(v view) error { return v.InsertUnavailability(ctx, u) })
}

func (s *Store) GetUnavailability(ctx context.Context, id string) (out model.Unavailability, err error) {
	err = s.locked(func(v view) error {
		out, err = v.GetUnavailability(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) UpdateUnavailability(ctx context.Context, u *model.Unavailability) error {
	return s.locked(func(v view) error { return v.UpdateUnavailability(ctx, u) })
}

func (s *Store) DeleteUnavailability(ctx context.Context, id string) error {
	return s.locked(func(v view) error { return v.DeleteUnavailability(ctx, id) })
}

func (s *Store) ListUnavailability(ctx context.Context, lawyerID int64, window intervals.Interval) (out []model.Unavailability, err error) {
	err = s.locked(func(v view) error {
		out, err = v.ListUnavailability(ctx, lawyerID, window)
		return err
	})
	return out, err
}

func (s *Store) InsertCaseMatchIfAbsent(ctx context.Context, m *model.CaseMatch) (created bool, err error) {
	err = s.locked(func(v view) error {
		created, err = v.InsertCaseMatchIfAbsent(ctx, m)
		return err
	})
	return created, err
}

func (s *Store) GetCaseMatch(ctx context.Context, caseID int64, provider model.Party) (out model.CaseMatch, err error) {
	err = s.locked(func(v view) error {
		out, err = v.GetCaseMatch(ctx, caseID, provider)
		return err
	})
	return out, err
}

func (s *Store) SaveCaseMatch(ctx context.Context, m *model.CaseMatch) error {
	return s.locked(func(v view) error { return v.SaveCaseMatch(ctx, m) })
}

func (s *Store) ListCaseMatches(ctx context.Context, caseID int64) (out []model.CaseMatch, err error) {
	err = s.locked(func(v view) error {
		out, err = v.ListCaseMatches(ctx, caseID)
		return err
	})
	return out, err
}

// view operates on the maps directly; the caller holds s.mu.
type view struct {
	s *Store
}

func (v view) UnavailabilityOverlapping(_ context.Context, lawyerID int64, window intervals.Interval) ([]model.Unavailability, error) {
	var out []model.Unavailability
	for _, u := range v.s.unavailability {
		if u.LawyerID == lawyerID && intervals.Overlaps(intervals.OfUnavailability(u), window) {
			out = append(out, u)
		}
	}
	sortUnavailability(out)
	return out, nil
}

func (v view) ProviderAppointmentsOverlapping(_ context.Context, provider model.Party, window intervals.Interval) ([]model.Appointment, error) {
	return v.activeOverlapping(func(a model.Appointment) bool { return a.Provider == provider }, window), nil
}

func (v view) RequesterAppointmentsOverlapping(_ context.Context, requester model.Party, window intervals.Interval) ([]model.Appointment, error) {
	return v.activeOverlapping(func(a model.Appointment) bool { return a.Requester == requester }, window), nil
}

func (v view) activeOverlapping(match func(model.Appointment) bool, window intervals.Interval) []model.Appointment {
	var out []model.Appointment
	for _, a := range v.s.appointments {
		if a.Status.Active() && match(a) && intervals.Overlaps(intervals.OfAppointment(a), window) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (v view) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	if appt.Status.Active() {
		clash, _ := v.ProviderAppointmentsOverlapping(ctx, appt.Provider, intervals.OfAppointment(*appt))
		if len(clash) > 0 {
			return &model.ConflictError{Kind: model.HardConflict, Message: "provider already has an appointment in this interval", ProviderName: appt.ProviderName}
		}
	}
	now := v.s.now()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.CreatedAt = now
	appt.UpdatedAt = now
	v.s.appointments[appt.ID] = *appt
	return nil
}

func (v view) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := v.s.appointments[id]
	if !ok {
		return model.Appointment{}, model.NotFound("appointment")
	}
	return a, nil
}

func (v view) UpdateAppointmentStatus(_ context.Context, id string, status model.Status, reason string, at time.Time) error {
	a, ok := v.s.appointments[id]
	if !ok {
		return model.NotFound("appointment")
	}
	a.Status = status
	a.UpdatedAt = at
	if status == model.StatusCancelled {
		cancelledAt := at
		a.CancelledAt = &cancelledAt
		a.CancelReason = reason
	}
	v.s.appointments[id] = a
	return nil
}

func (v view) ListAppointmentsForParty(_ context.Context, p model.Party, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.Appointment
	for _, a := range v.s.appointments {
		if a.Involves(p) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v view) InsertUnavailability(_ context.Context, u *model.Unavailability) error {
	if v.unavailabilityClash(*u) {
		return unavailabilityConflict()
	}
	now := v.s.now()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	v.s.unavailability[u.ID] = *u
	return nil
}

func (v view) GetUnavailability(_ context.Context, id string) (model.Unavailability, error) {
	u, ok := v.s.unavailability[id]
	if !ok {
		return model.Unavailability{}, model.NotFound("unavailability period")
	}
	return u, nil
}

func (v view) UpdateUnavailability(_ context.Context, u *model.Unavailability) error {
	existing, ok := v.s.unavailability[u.ID]
	if !ok {
		return model.NotFound("unavailability period")
	}
	if v.unavailabilityClash(*u) {
		return unavailabilityConflict()
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = v.s.now()
	v.s.unavailability[u.ID] = *u
	return nil
}

func (v view) DeleteUnavailability(_ context.Context, id string) error {
	if _, ok := v.s.unavailability[id]; !ok {
		return model.NotFound("unavailability period")
	}
	delete(v.s.unavailability, id)
	return nil
}

func (v view) ListUnavailability(_ context.Context, lawyerID int64, window intervals.Interval) ([]model.Unavailability, error) {
	var out []model.Unavailability
	for _, u := range v.s.unavailability {
		if u.LawyerID != lawyerID {
			continue
		}
		if window.Valid() && !intervals.Overlaps(intervals.OfUnavailability(u), window) {
			continue
		}
		out = append(out, u)
	}
	sortUnavailability(out)
	return out, nil
}

func (v view) unavailabilityClash(u model.Unavailability) bool {
	for id, other := range v.s.unavailability {
		if id == u.ID || other.LawyerID != u.LawyerID {
			continue
		}
		if intervals.Overlaps(intervals.OfUnavailability(other), intervals.OfUnavailability(u)) {
			return true
		}
	}
	return false
}

func (v view) InsertCaseMatchIfAbsent(_ context.Context, m *model.CaseMatch) (bool, error) {
	key := matchKey{caseID: m.CaseID, provider: m.Provider}
	if existing, ok := v.s.matches[key]; ok {
		*m = existing
		return false, nil
	}
	now := v.s.now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	v.s.matches[key] = *m
	return true, nil
}

func (v view) GetCaseMatch(_ context.Context, caseID int64, provider model.Party) (model.CaseMatch, error) {
	m, ok := v.s.matches[matchKey{caseID: caseID, provider: provider}]
	if !ok {
		return model.CaseMatch{}, model.NotFound("case match")
	}
	return m, nil
}

func (v view) SaveCaseMatch(_ context.Context, m *model.CaseMatch) error {
	key := matchKey{caseID: m.CaseID, provider: m.Provider}
	now := v.s.now()
	if existing, ok := v.s.matches[key]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	} else {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	v.s.matches[key] = *m
	return nil
}

func (v view) ListCaseMatches(_ context.Context, caseID int64) ([]model.CaseMatch, error) {
	var out []model.CaseMatch
	for k, m := range v.s.matches {
		if k.caseID == caseID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Provider.Key() < out[j].Provider.Key()
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func sortUnavailability(out []model.Unavailability) {
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
}

func unavailabilityConflict() error {
	return &model.ConflictError{Kind: model.HardConflict, Message: "period overlaps an existing unavailability period"}
}
