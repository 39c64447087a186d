// Package pgstore implements store.Store on Postgres. Atomic sections take
// transaction-scoped advisory locks; exclusion constraints on appointments
// and unavailability periods back them up.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// Migrator returns a migrator for the embedded schema.
func Migrator(pool *db.Pool) *db.Migrator {
	return db.NewMigrator(pool, Migrations, "migrations")
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	queries
	pool *db.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *db.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (s *Store) Atomic(ctx context.Context, fn func(q store.Querier) error, keys ...store.LockKey) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, k := range store.SortedKeys(keys) {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, string(k)); err != nil {
				return fmt.Errorf("advisory lock %s: %w", k, err)
			}
		}
		return fn(queries{db: tx, forUpdate: true})
	})
}

type queries struct {
	db dbtx
	// forUpdate makes single-row getters lock the row until commit.
	forUpdate bool
}

func (q queries) lockClause() string {
	if q.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

// validID guards uuid columns; a malformed id cannot match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const appointmentColumns = `id, requester_role, requester_id, requester_name, provider_role, provider_id, provider_name,
	start_time, end_time, appointment_type, status, description, case_id, override,
	cancelled_at, COALESCE(cancellation_reason, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a                 model.Appointment
		reqRole, provRole string
		reqID, provID     int64
		status            string
	)
	err := row.Scan(&a.ID, &reqRole, &reqID, &a.RequesterName, &provRole, &provID, &a.ProviderName,
		&a.StartTime, &a.EndTime, &a.Type, &status, &a.Description, &a.CaseID, &a.Override,
		&a.CancelledAt, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	if a.Requester, err = model.ParseParty(reqRole, reqID); err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s requester: %w", a.ID, err)
	}
	if a.Provider, err = model.ParseProvider(provRole, provID); err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s provider: %w", a.ID, err)
	}
	if a.Status, err = model.ParseStatus(status); err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	return a, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]model.Appointment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q queries) ProviderAppointmentsOverlapping(ctx context.Context, provider model.Party, window intervals.Interval) ([]model.Appointment, error) {
	return collectAppointments(q.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_role = $1 AND provider_id = $2
			AND status IN ('pending', 'confirmed')
			AND start_time < $4 AND end_time > $3
		ORDER BY start_time, id
	`, string(provider.Role()), provider.ID(), window.Start, window.End))
}

func (q queries) RequesterAppointmentsOverlapping(ctx context.Context, requester model.Party, window intervals.Interval) ([]model.Appointment, error) {
	return collectAppointments(q.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_role = $1 AND requester_id = $2
			AND status IN ('pending', 'confirmed')
			AND start_time < $4 AND end_time > $3
		ORDER BY start_time, id
	`, string(requester.Role()), requester.ID(), window.Start, window.End))
}

func (q queries) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO appointments
			(id, requester_role, requester_id, requester_name, provider_role, provider_id, provider_name,
			 start_time, end_time, appointment_type, status, description, case_id, override)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, appt.ID, string(appt.Requester.Role()), appt.Requester.ID(), appt.RequesterName,
		string(appt.Provider.Role()), appt.Provider.ID(), appt.ProviderName,
		appt.StartTime, appt.EndTime, appt.Type, string(appt.Status), appt.Description, appt.CaseID, appt.Override,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if db.IsExclusionViolation(err) {
		return &model.ConflictError{Kind: model.HardConflict, Message: "provider already has an appointment in this interval", ProviderName: appt.ProviderName}
	}
	return err
}

func (q queries) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, model.NotFound("appointment")
	}
	a, err := scanAppointment(q.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1`+q.lockClause(), id))
	if db.IsNoRows(err) {
		return model.Appointment{}, model.NotFound("appointment")
	}
	return a, err
}

func (q queries) UpdateAppointmentStatus(ctx context.Context, id string, status model.Status, reason string, at time.Time) error {
	if !validID(id) {
		return model.NotFound("appointment")
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE appointments
		SET status = $2::text,
			updated_at = $3,
			cancelled_at = CASE WHEN $2::text = 'cancelled' THEN $3 ELSE cancelled_at END,
			cancellation_reason = CASE WHEN $2::text = 'cancelled' THEN NULLIF($4, '') ELSE cancellation_reason END
		WHERE id = $1
	`, id, string(status), at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("appointment")
	}
	return nil
}

func (q queries) ListAppointmentsForParty(ctx context.Context, p model.Party, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return collectAppointments(q.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE (requester_role = $1 AND requester_id = $2)
			OR (provider_role = $1 AND provider_id = $2)
		ORDER BY start_time DESC
		LIMIT $3
	`, string(p.Role()), p.ID(), limit))
}

const unavailabilityColumns = `id, lawyer_id, start_time, end_time, reason, created_at, updated_at`

func scanUnavailability(row pgx.Row) (model.Unavailability, error) {
	var u model.Unavailability
	err := row.Scan(&u.ID, &u.LawyerID, &u.StartTime, &u.EndTime, &u.Reason, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func collectUnavailability(rows pgx.Rows, err error) ([]model.Unavailability, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Unavailability
	for rows.Next() {
		u, err := scanUnavailability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (q queries) UnavailabilityOverlapping(ctx context.Context, lawyerID int64, window intervals.Interval) ([]model.Unavailability, error) {
	return collectUnavailability(q.db.Query(ctx, `
		SELECT `+unavailabilityColumns+`
		FROM unavailability_periods
		WHERE lawyer_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`, lawyerID, window.Start, window.End))
}

func (q queries) ListUnavailability(ctx context.Context, lawyerID int64, window intervals.Interval) ([]model.Unavailability, error) {
	if window.Valid() {
		return q.UnavailabilityOverlapping(ctx, lawyerID, window)
	}
	return collectUnavailability(q.db.Query(ctx, `
		SELECT `+unavailabilityColumns+`
		FROM unavailability_periods
		WHERE lawyer_id = $1
		ORDER BY start_time
	`, lawyerID))
}

func (q queries) InsertUnavailability(ctx context.Context, u *model.Unavailability) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO unavailability_periods (id, lawyer_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, u.ID, u.LawyerID, u.StartTime, u.EndTime, u.Reason).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapUnavailabilityErr(err)
}

func (q queries) GetUnavailability(ctx context.Context, id string) (model.Unavailability, error) {
	if !validID(id) {
		return model.Unavailability{}, model.NotFound("unavailability period")
	}
	u, err := scanUnavailability(q.db.QueryRow(ctx, `
		SELECT `+unavailabilityColumns+`
		FROM unavailability_periods
		WHERE id = $1`+q.lockClause(), id))
	if db.IsNoRows(err) {
		return model.Unavailability{}, model.NotFound("unavailability period")
	}
	return u, err
}

func (q queries) UpdateUnavailability(ctx context.Context, u *model.Unavailability) error {
	if !validID(u.ID) {
		return model.NotFound("unavailability period")
	}
	err := q.db.QueryRow(ctx, `
		UPDATE unavailability_periods
		SET start_time = $2, end_time = $3, reason = $4, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, u.ID, u.StartTime, u.EndTime, u.Reason).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsNoRows(err) {
		return model.NotFound("unavailability period")
	}
	return mapUnavailabilityErr(err)
}

func (q queries) DeleteUnavailability(ctx context.Context, id string) error {
	if !validID(id) {
		return model.NotFound("unavailability period")
	}
	tag, err := q.db.Exec(ctx, `DELETE FROM unavailability_periods WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("unavailability period")
	}
	return nil
}

func mapUnavailabilityErr(err error) error {
	if db.IsExclusionViolation(err) {
		return &model.ConflictError{Kind: model.HardConflict, Message: "period overlaps an existing unavailability period"}
	}
	return err
}

const caseMatchColumns = `id, case_id, provider_role, provider_id, match_score, status,
	COALESCE(appointment_id::text, ''), created_at, updated_at`

func scanCaseMatch(row pgx.Row) (model.CaseMatch, error) {
	var (
		m      model.CaseMatch
		role   string
		provID int64
		status string
	)
	if err := row.Scan(&m.ID, &m.CaseID, &role, &provID, &m.Score, &status, &m.AppointmentID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return model.CaseMatch{}, err
	}
	p, err := model.ParseProvider(role, provID)
	if err != nil {
		return model.CaseMatch{}, fmt.Errorf("case match %s: %w", m.ID, err)
	}
	m.Provider = p
	m.Status = model.MatchStatus(status)
	return m, nil
}

func (q queries) InsertCaseMatchIfAbsent(ctx context.Context, m *model.CaseMatch) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row, err := scanCaseMatch(q.db.QueryRow(ctx, `
		INSERT INTO case_matches (id, case_id, provider_role, provider_id, match_score, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (case_id, provider_role, provider_id) DO NOTHING
		RETURNING `+caseMatchColumns,
		m.ID, m.CaseID, string(m.Provider.Role()), m.Provider.ID(), m.Score, string(m.Status)))
	if err == nil {
		*m = row
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	existing, err := q.GetCaseMatch(ctx, m.CaseID, m.Provider)
	if err != nil {
		return false, err
	}
	*m = existing
	return false, nil
}

func (q queries) GetCaseMatch(ctx context.Context, caseID int64, provider model.Party) (model.CaseMatch, error) {
	m, err := scanCaseMatch(q.db.QueryRow(ctx, `
		SELECT `+caseMatchColumns+`
		FROM case_matches
		WHERE case_id = $1 AND provider_role = $2 AND provider_id = $3`+q.lockClause(),
		caseID, string(provider.Role()), provider.ID()))
	if db.IsNoRows(err) {
		return model.CaseMatch{}, model.NotFound("case match")
	}
	return m, err
}

func (q queries) SaveCaseMatch(ctx context.Context, m *model.CaseMatch) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	var appointmentID *string
	if m.AppointmentID != "" {
		appointmentID = &m.AppointmentID
	}
	return q.db.QueryRow(ctx, `
		INSERT INTO case_matches (id, case_id, provider_role, provider_id, match_score, status, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (case_id, provider_role, provider_id) DO UPDATE
		SET match_score = EXCLUDED.match_score,
			status = EXCLUDED.status,
			appointment_id = EXCLUDED.appointment_id,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`, m.ID, m.CaseID, string(m.Provider.Role()), m.Provider.ID(), m.Score, string(m.Status), appointmentID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (q queries) ListCaseMatches(ctx context.Context, caseID int64) ([]model.CaseMatch, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+caseMatchColumns+`
		FROM case_matches
		WHERE case_id = $1
		ORDER BY match_score DESC, provider_role, provider_id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CaseMatch
	for rows.Next() {
		m, err := scanCaseMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
