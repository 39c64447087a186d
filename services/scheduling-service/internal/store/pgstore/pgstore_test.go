package pgstore

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = Migrator(pool).Up(ctx)
	require.NoError(t, err)
	return New(pool)
}

// uniqueID keeps runs against a shared database from colliding.
func uniqueID() int64 {
	return time.Now().UnixNano()%1_000_000_000 + rand.Int63n(1000)
}

func TestMigrationsEmbedded(t *testing.T) {
	migs, err := db.LoadMigrations(Migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, 1, migs[0].Version)
	assert.Contains(t, migs[0].SQL, "appointments_provider_no_overlap")
}

func TestAppointmentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lawyer := model.Lawyer(uniqueID())
	start := time.Date(2031, 5, 1, 10, 0, 0, 0, time.UTC)
	caseID := uniqueID()

	appt := model.Appointment{
		Requester: model.Citizen(uniqueID()), RequesterName: "Citizen",
		Provider: lawyer, ProviderName: "Lawyer",
		StartTime: start, EndTime: start.Add(time.Hour),
		Type: "video", Status: model.StatusPending, CaseID: &caseID,
	}
	require.NoError(t, s.InsertAppointment(ctx, &appt))
	require.NotEmpty(t, appt.ID)

	got, err := s.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.Provider, got.Provider)
	assert.Equal(t, caseID, *got.CaseID)
	assert.Equal(t, model.StatusPending, got.Status)

	held, err := s.ProviderAppointmentsOverlapping(ctx, lawyer, intervals.New(start.Add(30*time.Minute), start.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Len(t, held, 1)

	require.NoError(t, s.UpdateAppointmentStatus(ctx, appt.ID, model.StatusConfirmed, "", time.Now()))
	require.NoError(t, s.UpdateAppointmentStatus(ctx, appt.ID, model.StatusCancelled, "moved", time.Now()))
	got, err = s.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, "moved", got.CancelReason)
	require.NotNil(t, got.CancelledAt)

	_, err = s.GetAppointment(ctx, "not-a-uuid")
	assert.True(t, model.IsNotFound(err))
}

func TestExclusionConstraintIsHardConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lawyer := model.Lawyer(uniqueID())
	start := time.Date(2031, 6, 1, 10, 0, 0, 0, time.UTC)

	insert := func(requester int64) error {
		a := model.Appointment{Requester: model.Citizen(requester), Provider: lawyer, StartTime: start, EndTime: start.Add(time.Hour), Type: "call", Status: model.StatusPending}
		return s.InsertAppointment(ctx, &a)
	}
	require.NoError(t, insert(uniqueID()))
	err := insert(uniqueID())
	assert.True(t, model.IsHardConflict(err), "got %v", err)
}

func TestAtomicSerialisesOnLockKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lawyer := model.Lawyer(uniqueID())
	start := time.Date(2031, 7, 1, 10, 0, 0, 0, time.UTC)
	window := intervals.New(start, start.Add(time.Hour))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Atomic(ctx, func(q store.Querier) error {
				held, err := q.ProviderAppointmentsOverlapping(ctx, lawyer, window)
				if err != nil {
					return err
				}
				if len(held) > 0 {
					return &model.ConflictError{Kind: model.HardConflict, Message: "busy"}
				}
				a := model.Appointment{Requester: model.Citizen(uniqueID()), Provider: lawyer, StartTime: window.Start, EndTime: window.End, Type: "call", Status: model.StatusPending}
				return q.InsertAppointment(ctx, &a)
			}, store.PartyLock(lawyer))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, model.IsHardConflict(err), "got %v", err)
	}
	assert.Equal(t, 1, ok)
}

func TestCaseMatchInsertIfAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	caseID := uniqueID()
	lawyer := model.Lawyer(uniqueID())

	m := model.CaseMatch{CaseID: caseID, Provider: lawyer, Score: 1, Status: model.MatchSuggested}
	created, err := s.InsertCaseMatchIfAbsent(ctx, &m)
	require.NoError(t, err)
	assert.True(t, created)

	m.Status = model.MatchAccepted
	require.NoError(t, s.SaveCaseMatch(ctx, &m))

	again := model.CaseMatch{CaseID: caseID, Provider: lawyer, Score: 0.75, Status: model.MatchSuggested}
	created, err = s.InsertCaseMatchIfAbsent(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.MatchAccepted, again.Status)
	assert.Equal(t, m.ID, again.ID)

	all, err := s.ListCaseMatches(ctx, caseID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUnavailabilityOverlapRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	lawyerID := uniqueID()
	start := time.Date(2031, 8, 1, 9, 0, 0, 0, time.UTC)

	first := model.Unavailability{LawyerID: lawyerID, StartTime: start, EndTime: start.Add(2 * time.Hour), Reason: "court"}
	require.NoError(t, s.InsertUnavailability(ctx, &first))

	second := model.Unavailability{LawyerID: lawyerID, StartTime: start.Add(time.Hour), EndTime: start.Add(3 * time.Hour)}
	assert.True(t, model.IsHardConflict(s.InsertUnavailability(ctx, &second)))

	touching := model.Unavailability{LawyerID: lawyerID, StartTime: start.Add(2 * time.Hour), EndTime: start.Add(3 * time.Hour)}
	require.NoError(t, s.InsertUnavailability(ctx, &touching))

	require.NoError(t, s.DeleteUnavailability(ctx, first.ID))
	assert.True(t, model.IsNotFound(s.DeleteUnavailability(ctx, first.ID)))
}
