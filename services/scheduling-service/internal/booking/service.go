// Package booking owns the appointment lifecycle. It is the only component
// that changes an appointment's status.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/legalaid-connect/legalaid/libs/otel"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/conflict"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store"
)

type Directory interface {
	Lookup(ctx context.Context, p model.Party) (model.Contact, error)
}

type Service struct {
	store    store.Store
	detector *conflict.Detector
	dir      Directory
	notify   notify.Emitter
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	loc      *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone used when rendering times in messages.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(st store.Store, dir Directory, emitter notify.Emitter, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    st,
		detector: conflict.NewDetector(),
		dir:      dir,
		notify:   emitter,
		logger:   logger,
		tracer:   otelx.Tracer("scheduling-service/booking"),
		now:      func() time.Time { return time.Now().UTC() },
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	Requester   model.Party
	Provider    model.Party
	Start       time.Time
	End         time.Time
	Type        string
	Description string
	CaseID      *int64
	// Override books over the requester's own overlapping appointments.
	// Provider-side conflicts are never overridable.
	Override bool
}

func (r *CreateRequest) validate() error {
	switch {
	case !r.Requester.Valid():
		return model.Invalid("requester", "is required")
	case !r.Provider.Valid() || !r.Provider.IsProvider():
		return model.Invalid("provider", "must be a lawyer or ngo")
	case r.Requester == r.Provider:
		return model.Invalid("provider", "cannot book an appointment with yourself")
	case r.Start.IsZero() || r.End.IsZero():
		return model.Invalid("start_time", "start and end are required")
	case !r.Start.Before(r.End):
		return model.Invalid("end_time", "must be after start_time")
	case r.CaseID != nil && *r.CaseID <= 0:
		return model.Invalid("case_id", "must be a positive integer")
	}
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.Type == "" {
		r.Type = model.DefaultAppointmentType
	}
	r.Description = strings.TrimSpace(r.Description)
	return nil
}

// Create books a PENDING appointment. Conflicts come back as
// *model.ConflictError; notifications go out after commit.
func (s *Service) Create(ctx context.Context, req CreateRequest) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Create", trace.WithAttributes(
		attribute.String("legalaid.provider", req.Provider.Key()),
		attribute.String("legalaid.requester", req.Requester.Key()),
		attribute.Bool("legalaid.override", req.Override),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.validate(); err != nil {
		return model.Appointment{}, err
	}

	provider, err := s.dir.Lookup(ctx, req.Provider)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("resolve provider: %w", err)
	}
	requester, err := s.dir.Lookup(ctx, req.Requester)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("resolve requester: %w", err)
	}

	appt = model.Appointment{
		Requester:     req.Requester,
		RequesterName: requester.Name,
		Provider:      req.Provider,
		ProviderName:  provider.Name,
		StartTime:     req.Start,
		EndTime:       req.End,
		Type:          req.Type,
		Status:        model.StatusPending,
		Description:   req.Description,
		CaseID:        req.CaseID,
		Override:      req.Override,
	}

	err = s.store.Atomic(ctx, func(q store.Querier) error {
		decision, err := s.detector.Check(ctx, q, conflict.Request{
			Provider:  req.Provider,
			Requester: req.Requester,
			Start:     req.Start,
			End:       req.End,
			Override:  req.Override,
		})
		if err != nil {
			return err
		}
		if decision.Blocked() {
			span.SetAttributes(attribute.String("legalaid.conflict", decision.Outcome.String()))
			return decision.Err()
		}
		return q.InsertAppointment(ctx, &appt)
	}, store.PartyLock(req.Provider), store.PartyLock(req.Requester))
	if err != nil {
		if model.IsHardConflict(err) || model.IsSoftConflict(err) {
			s.logger.InfoContext(ctx, "booking blocked",
				"provider", req.Provider.Key(), "requester", req.Requester.Key(),
				"start", req.Start, "end", req.End, "err", err)
		}
		return model.Appointment{}, err
	}

	s.logger.InfoContext(ctx, "appointment created",
		"appointment_id", appt.ID, "provider", appt.Provider.Key(), "requester", appt.Requester.Key(), "override", appt.Override)

	when := s.when(appt)
	s.notify.Notify(ctx, notify.Notification{
		Recipient:   appt.Provider,
		Type:        notify.TypeAppointmentRequest,
		ReferenceID: appt.ID,
		Message:     fmt.Sprintf("New appointment request from %s for %s. Please confirm or reject it.", nameOr(appt.RequesterName, "a client"), when),
	})
	s.notify.Notify(ctx, notify.Notification{
		Recipient:   appt.Requester,
		Type:        notify.TypeAppointmentSent,
		ReferenceID: appt.ID,
		Message:     fmt.Sprintf("Your appointment request to %s for %s was sent and is awaiting confirmation.", nameOr(appt.ProviderName, "the provider"), when),
	})
	s.notify.AppointmentEmail(ctx, notify.AppointmentEmail{
		To:            appt.Provider,
		Contact:       provider,
		Counterpart:   appt.RequesterName,
		AppointmentID: appt.ID,
		Start:         appt.StartTime,
		End:           appt.EndTime,
		Channel:       appt.Type,
		Description:   appt.Description,
	})
	return appt, nil
}

// SetStatus moves an appointment to next on behalf of actor. Confirming and
// rejecting is reserved to the provider; CANCELLED is handled as Cancel.
// Same-state requests and requests on a terminal appointment return the
// appointment unchanged.
func (s *Service) SetStatus(ctx context.Context, id string, actor model.Party, next model.Status) (model.Appointment, error) {
	if next == model.StatusCancelled {
		return s.Cancel(ctx, id, actor, "")
	}

	var (
		appt    model.Appointment
		changed bool
	)
	err := s.store.Atomic(ctx, func(q store.Querier) error {
		var err error
		appt, err = s.owned(ctx, q, id, actor)
		if err != nil {
			return err
		}
		if appt.Provider != actor && !appt.Status.Terminal() && appt.Status != next {
			return model.Invalid("status", "only the provider can confirm or reject an appointment")
		}
		changed, err = s.apply(ctx, q, &appt, next, "")
		return err
	})
	if err != nil || !changed {
		return appt, err
	}

	s.logger.InfoContext(ctx, "appointment status changed", "appointment_id", appt.ID, "status", appt.Status, "actor", actor.Key())

	when := s.when(appt)
	switch appt.Status {
	case model.StatusConfirmed:
		s.notify.Notify(ctx, notify.Notification{
			Recipient:   appt.Requester,
			Type:        notify.TypeAppointmentConfirmed,
			ReferenceID: appt.ID,
			Message:     fmt.Sprintf("Your appointment with %s for %s has been confirmed.", nameOr(appt.ProviderName, "the provider"), when),
		})
		s.notify.Notify(ctx, notify.Notification{
			Recipient:   appt.Provider,
			Type:        notify.TypeAppointmentConfirmed,
			ReferenceID: appt.ID,
			Message:     fmt.Sprintf("You confirmed the appointment with %s for %s.", nameOr(appt.RequesterName, "your client"), when),
		})
	default:
		s.notify.Notify(ctx, notify.Notification{
			Recipient:   appt.Requester,
			Type:        notify.TypeAppointmentStatus,
			ReferenceID: appt.ID,
			Message:     fmt.Sprintf("Your appointment request with %s for %s was %s.", nameOr(appt.ProviderName, "the provider"), when, appt.Status),
		})
	}
	return appt, nil
}

// Cancel moves a CONFIRMED appointment to CANCELLED. Either party may cancel;
// the other party is notified and emailed.
func (s *Service) Cancel(ctx context.Context, id string, actor model.Party, reason string) (model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	var (
		appt    model.Appointment
		changed bool
	)
	err := s.store.Atomic(ctx, func(q store.Querier) error {
		var err error
		appt, err = s.owned(ctx, q, id, actor)
		if err != nil {
			return err
		}
		changed, err = s.apply(ctx, q, &appt, model.StatusCancelled, reason)
		return err
	})
	if err != nil || !changed {
		return appt, err
	}

	s.logger.InfoContext(ctx, "appointment cancelled", "appointment_id", appt.ID, "actor", actor.Key())
	s.AnnounceCancellation(ctx, appt, actor, reason)
	return appt, nil
}

// CancelWithin cancels the appointment as part of a caller's Atomic section.
// It reports whether the status changed; a non-CONFIRMED appointment is left
// as is. The caller sends notifications after commit.
func (s *Service) CancelWithin(ctx context.Context, q store.Querier, id, reason string) (model.Appointment, bool, error) {
	appt, err := q.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, false, err
	}
	if appt.Status != model.StatusConfirmed {
		return appt, false, nil
	}
	changed, err := s.apply(ctx, q, &appt, model.StatusCancelled, strings.TrimSpace(reason))
	return appt, changed, err
}

func (s *Service) Get(ctx context.Context, id string, actor model.Party) (model.Appointment, error) {
	return s.owned(ctx, s.store, id, actor)
}

// ListMine returns the actor's appointments on either side, newest first.
func (s *Service) ListMine(ctx context.Context, actor model.Party, limit int) ([]model.Appointment, error) {
	if !actor.Valid() {
		return nil, model.Invalid("actor", "is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListAppointmentsForParty(ctx, actor, limit)
}

func (s *Service) owned(ctx context.Context, q store.Querier, id string, actor model.Party) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, model.Invalid("appointment_id", "is required")
	}
	appt, err := q.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !appt.Involves(actor) {
		return model.Appointment{}, model.NotFound("appointment")
	}
	return appt, nil
}

func (s *Service) apply(ctx context.Context, q store.Querier, appt *model.Appointment, next model.Status, reason string) (bool, error) {
	changed, err := appt.Status.Transition(next)
	if err != nil || !changed {
		return false, err
	}
	now := s.now()
	if err := q.UpdateAppointmentStatus(ctx, appt.ID, next, reason, now); err != nil {
		return false, err
	}
	appt.Status = next
	appt.UpdatedAt = now
	if next == model.StatusCancelled {
		appt.CancelledAt = &now
		appt.CancelReason = reason
	}
	return true, nil
}

// AnnounceCancellation notifies and emails the party other than actor.
func (s *Service) AnnounceCancellation(ctx context.Context, appt model.Appointment, actor model.Party, reason string) {
	other, _ := appt.Counterpart(actor)
	_, actorName := appt.Counterpart(other)

	msg := fmt.Sprintf("Your appointment with %s for %s was cancelled.", nameOr(actorName, "the other party"), s.when(appt))
	if reason != "" {
		msg += " Reason: " + reason
	}
	s.notify.Notify(ctx, notify.Notification{
		Recipient:   other,
		Type:        notify.TypeAppointmentCancelled,
		ReferenceID: appt.ID,
		Message:     msg,
	})

	e := notify.CancellationEmail{
		To:            other,
		CancelledBy:   actorName,
		Reason:        reason,
		AppointmentID: appt.ID,
		Start:         appt.StartTime,
		End:           appt.EndTime,
	}
	if appt.CaseID != nil {
		e.CaseID = *appt.CaseID
	}
	s.notify.CancellationEmail(ctx, e)
}

func (s *Service) when(a model.Appointment) string {
	start := a.StartTime.In(s.loc)
	return start.Format("Mon 02 Jan 2006 15:04") + "-" + a.EndTime.In(s.loc).Format("15:04 MST")
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
