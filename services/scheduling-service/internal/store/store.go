// Package store defines the persistence contract shared by the scheduling
// components. pgstore backs it with Postgres, memstore with process memory.
package store

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

// Querier is usable both inside and outside Atomic. Getters return an error
// satisfying model.IsNotFound when the row does not exist. Inside Atomic,
// GetAppointment and GetCaseMatch lock the row until commit.
type Querier interface {
	intervals.Store

	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status model.Status, reason string, at time.Time) error
	ListAppointmentsForParty(ctx context.Context, p model.Party, limit int) ([]model.Appointment, error)

	InsertUnavailability(ctx context.Context, u *model.Unavailability) error
	GetUnavailability(ctx context.Context, id string) (model.Unavailability, error)
	UpdateUnavailability(ctx context.Context, u *model.Unavailability) error
	DeleteUnavailability(ctx context.Context, id string) error
	ListUnavailability(ctx context.Context, lawyerID int64, window intervals.Interval) ([]model.Unavailability, error)

	// InsertCaseMatchIfAbsent inserts m unless a row already exists for
	// (CaseID, Provider). It reports whether a row was created and fills m
	// with the stored row either way.
	InsertCaseMatchIfAbsent(ctx context.Context, m *model.CaseMatch) (bool, error)
	GetCaseMatch(ctx context.Context, caseID int64, provider model.Party) (model.CaseMatch, error)
	// SaveCaseMatch upserts on the natural key, overwriting status, score and appointment.
	SaveCaseMatch(ctx context.Context, m *model.CaseMatch) error
	ListCaseMatches(ctx context.Context, caseID int64) ([]model.CaseMatch, error)
}

type Store interface {
	Querier
	// Atomic runs fn in one transaction while holding an exclusive lock on
	// each key. Keys are acquired in sorted order. Returning an error from fn
	// rolls back every write made through q.
	Atomic(ctx context.Context, fn func(q Querier) error, keys ...LockKey) error
}

type LockKey string

// PartyLock serialises booking decisions that read time held by p.
func PartyLock(p model.Party) LockKey {
	return LockKey("party:" + p.Key())
}

// CaseLock serialises CaseMatch writes for one case.
func CaseLock(caseID int64) LockKey {
	return LockKey("case:" + strconv.FormatInt(caseID, 10))
}

// SortedKeys de-duplicates and orders keys so concurrent callers lock in the same order.
func SortedKeys(keys []LockKey) []LockKey {
	seen := make(map[LockKey]struct{}, len(keys))
	out := make([]LockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
