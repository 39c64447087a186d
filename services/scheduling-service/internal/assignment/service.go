// Package assignment links a confirmed appointment to a case and undoes that
// link.
package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/cases"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store"
)

// Lifecycle cancels the linked appointment inside the caller's transaction.
type Lifecycle interface {
	CancelWithin(ctx context.Context, q store.Querier, id, reason string) (model.Appointment, bool, error)
}

type Directory interface {
	Lookup(ctx context.Context, p model.Party) (model.Contact, error)
}

type Service struct {
	store     store.Store
	cases     cases.Repository
	lifecycle Lifecycle
	dir       Directory
	notify    notify.Emitter
	logger    *slog.Logger
}

func NewService(st store.Store, cs cases.Repository, lifecycle Lifecycle, dir Directory, emitter notify.Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, cases: cs, lifecycle: lifecycle, dir: dir, notify: emitter, logger: logger}
}

// AssignCase marks provider as accepted for the case, bound to a confirmed
// appointment of that provider carrying the case id.
func (s *Service) AssignCase(ctx context.Context, caseID int64, appointmentID string, provider model.Party) (model.CaseMatch, error) {
	if !provider.IsProvider() {
		return model.CaseMatch{}, model.Invalid("actor", "only a lawyer or ngo can accept a case")
	}
	if strings.TrimSpace(appointmentID) == "" {
		return model.CaseMatch{}, model.Invalid("appointment_id", "is required")
	}
	c, err := s.cases.Case(ctx, caseID)
	if err != nil {
		return model.CaseMatch{}, err
	}

	var (
		m       model.CaseMatch
		changed bool
		appt    model.Appointment
	)
	err = s.store.Atomic(ctx, func(q store.Querier) error {
		var err error
		appt, err = q.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Provider != provider {
			return model.NotFound("appointment")
		}
		if appt.Status != model.StatusConfirmed {
			return model.Invalid("appointment_id", "appointment must be confirmed before the case is accepted")
		}
		if !appt.LinkedTo(caseID) {
			return model.Invalid("appointment_id", "appointment is not linked to this case")
		}

		m, err = q.GetCaseMatch(ctx, caseID, provider)
		switch {
		case model.IsNotFound(err):
			m = model.CaseMatch{CaseID: caseID, Provider: provider, Score: 1}
		case err != nil:
			return err
		case m.Status == model.MatchAccepted:
			return nil
		}
		m.Status = model.MatchAccepted
		m.AppointmentID = appointmentID
		changed = true
		return q.SaveCaseMatch(ctx, &m)
	}, store.CaseLock(caseID))
	if err != nil || !changed {
		return m, err
	}

	s.logger.InfoContext(ctx, "case assigned", "case_id", caseID, "provider", provider.Key(), "appointment_id", appointmentID)
	s.notify.Notify(ctx, notify.Notification{
		Recipient:   c.Citizen(),
		Type:        notify.TypeCaseAssigned,
		ReferenceID: fmt.Sprint(caseID),
		Message:     fmt.Sprintf("%s accepted your case %q.", nameOr(appt.ProviderName, "A provider"), c.Title),
	})
	return m, nil
}

// UnassignCase cancels the accepted match and its appointment. The actor is
// the case's citizen or the accepted provider. A match that is already
// cancelled is returned unchanged.
func (s *Service) UnassignCase(ctx context.Context, caseID int64, actor model.Party, reason string) (model.CaseMatch, error) {
	reason = strings.TrimSpace(reason)
	c, err := s.cases.Case(ctx, caseID)
	if err != nil {
		return model.CaseMatch{}, err
	}

	var (
		m       model.CaseMatch
		changed bool
		appt    model.Appointment
		hadAppt bool
	)
	err = s.store.Atomic(ctx, func(q store.Querier) error {
		var err error
		m, err = s.target(ctx, q, c, actor)
		if err != nil || m.Status == model.MatchCancelled {
			return err
		}
		m.Status = model.MatchCancelled
		if err := q.SaveCaseMatch(ctx, &m); err != nil {
			return err
		}
		changed = true
		if m.AppointmentID == "" {
			return nil
		}
		appt, _, err = s.lifecycle.CancelWithin(ctx, q, m.AppointmentID, reason)
		if model.IsNotFound(err) {
			return nil
		}
		hadAppt = err == nil
		return err
	}, store.CaseLock(caseID))
	if err != nil || !changed {
		return m, err
	}

	other := c.Citizen()
	if actor == other {
		other = m.Provider
	}
	s.logger.InfoContext(ctx, "case unassigned", "case_id", caseID, "provider", m.Provider.Key(), "actor", actor.Key())

	msg := fmt.Sprintf("Case %q is no longer assigned to %s.", c.Title, s.name(ctx, m.Provider))
	if reason != "" {
		msg += " Reason: " + reason
	}
	s.notify.Notify(ctx, notify.Notification{
		Recipient:   other,
		Type:        notify.TypeCaseUnassigned,
		ReferenceID: fmt.Sprint(caseID),
		Message:     msg,
	})

	e := notify.CancellationEmail{
		To:          other,
		CancelledBy: s.name(ctx, actor),
		Reason:      reason,
		CaseID:      caseID,
		CaseTitle:   c.Title,
	}
	if hadAppt {
		e.AppointmentID = appt.ID
		e.Start = appt.StartTime
		e.End = appt.EndTime
	}
	s.notify.CancellationEmail(ctx, e)
	return m, nil
}

// target picks the match the actor may cancel. Parties with no claim on the
// case get NotFound.
func (s *Service) target(ctx context.Context, q store.Querier, c model.Case, actor model.Party) (model.CaseMatch, error) {
	if actor == c.Citizen() {
		matches, err := q.ListCaseMatches(ctx, c.ID)
		if err != nil {
			return model.CaseMatch{}, err
		}
		var cancelled *model.CaseMatch
		for i := range matches {
			switch matches[i].Status {
			case model.MatchAccepted:
				return q.GetCaseMatch(ctx, c.ID, matches[i].Provider)
			case model.MatchCancelled:
				if cancelled == nil {
					cancelled = &matches[i]
				}
			}
		}
		if cancelled != nil {
			return *cancelled, nil
		}
		return model.CaseMatch{}, model.NotFound("assignment")
	}
	if !actor.IsProvider() {
		return model.CaseMatch{}, model.NotFound("assignment")
	}
	m, err := q.GetCaseMatch(ctx, c.ID, actor)
	if err != nil {
		return model.CaseMatch{}, err
	}
	if m.Status == model.MatchSuggested {
		return model.CaseMatch{}, model.NotFound("assignment")
	}
	return m, nil
}

// GetAssignment returns the accepted match of the case.
func (s *Service) GetAssignment(ctx context.Context, caseID int64) (model.CaseMatch, error) {
	if _, err := s.cases.Case(ctx, caseID); err != nil {
		return model.CaseMatch{}, err
	}
	matches, err := s.store.ListCaseMatches(ctx, caseID)
	if err != nil {
		return model.CaseMatch{}, err
	}
	for _, m := range matches {
		if m.Status == model.MatchAccepted {
			return m, nil
		}
	}
	return model.CaseMatch{}, model.NotFound("assignment")
}

func (s *Service) name(ctx context.Context, p model.Party) string {
	contact, err := s.dir.Lookup(ctx, p)
	if err != nil {
		s.logger.WarnContext(ctx, "contact lookup failed", "party", p.Key(), "err", err)
		return p.String()
	}
	return nameOr(contact.Name, p.String())
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
