package booking_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/booking"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/directory"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify/notifytest"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store/memstore"
)

var (
	day      = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	citizen  = model.Citizen(1)
	lawyerA  = model.Lawyer(10)
	lawyerB  = model.Lawyer(11)
	ngo      = model.NGO(20)
	stranger = model.Citizen(99)
)

func at(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

type fixture struct {
	store *memstore.Store
	rec   *notifytest.Recorder
	svc   *booking.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := directory.NewStatic().
		Add(model.Provider{Party: citizen, Name: "Citizen C", Email: "c@example.org"}).
		Add(model.Provider{Party: model.Citizen(2), Name: "Citizen D"}).
		Add(model.Provider{Party: stranger, Name: "Stranger"}).
		Add(model.Provider{Party: lawyerA, Name: "Lawyer A", Email: "a@example.org", Approved: true}).
		Add(model.Provider{Party: lawyerB, Name: "Lawyer B", Email: "b@example.org", Approved: true}).
		Add(model.Provider{Party: ngo, Name: "Aid Org", Email: "ngo@example.org", Approved: true})
	for i := int64(100); i < 140; i++ {
		dir.Add(model.Provider{Party: model.Citizen(i), Name: fmt.Sprintf("Citizen %d", i)})
	}
	st := memstore.New()
	rec := notifytest.New()
	return fixture{store: st, rec: rec, svc: booking.NewService(st, dir, rec, nil)}
}

func (f fixture) book(t *testing.T, requester, provider model.Party, start, end time.Time) model.Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), booking.CreateRequest{Requester: requester, Provider: provider, Start: start, End: end})
	require.NoError(t, err)
	return a
}

func TestCreate_PendingWithNamesAndNotifications(t *testing.T) {
	f := newFixture(t)
	caseID := int64(5)
	a, err := f.svc.Create(context.Background(), booking.CreateRequest{
		Requester: citizen, Provider: lawyerA, Start: at(10), End: at(11),
		Type: " Video ", Description: "tenancy dispute", CaseID: &caseID,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, "Lawyer A", a.ProviderName)
	assert.Equal(t, "Citizen C", a.RequesterName)
	assert.Equal(t, "video", a.Type)
	assert.Equal(t, int64(5), *a.CaseID)

	toProvider := f.rec.For(lawyerA)
	require.Len(t, toProvider, 1)
	assert.Equal(t, notify.TypeAppointmentRequest, toProvider[0].Type)
	assert.Contains(t, toProvider[0].Message, "Citizen C")

	toRequester := f.rec.For(citizen)
	require.Len(t, toRequester, 1)
	assert.Equal(t, notify.TypeAppointmentSent, toRequester[0].Type)

	emails := f.rec.AppointmentEmails()
	require.Len(t, emails, 1)
	assert.Equal(t, lawyerA, emails[0].To)
	assert.Equal(t, "a@example.org", emails[0].Contact.Email)
	assert.Equal(t, a.ID, emails[0].AppointmentID)
}

func TestCreate_DefaultsType(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, citizen, ngo, at(9), at(10))
	assert.Equal(t, model.DefaultAppointmentType, a.Type)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	bad := int64(0)
	for name, req := range map[string]booking.CreateRequest{
		"no requester":      {Provider: lawyerA, Start: at(9), End: at(10)},
		"citizen provider":  {Requester: citizen, Provider: model.Citizen(2), Start: at(9), End: at(10)},
		"self booking":      {Requester: lawyerA, Provider: lawyerA, Start: at(9), End: at(10)},
		"missing start":     {Requester: citizen, Provider: lawyerA, End: at(10)},
		"end before start":  {Requester: citizen, Provider: lawyerA, Start: at(10), End: at(9)},
		"zero length":       {Requester: citizen, Provider: lawyerA, Start: at(10), End: at(10)},
		"non-positive case": {Requester: citizen, Provider: lawyerA, Start: at(9), End: at(10), CaseID: &bad},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), req)
			assert.True(t, model.IsValidation(err), "got %v", err)
		})
	}
	assert.Empty(t, f.rec.Notifications())
}

func TestCreate_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), booking.CreateRequest{Requester: citizen, Provider: model.Lawyer(404), Start: at(9), End: at(10)})
	assert.True(t, model.IsNotFound(err), "got %v", err)
}

func TestCreate_ProviderConflictsAreHard(t *testing.T) {
	f := newFixture(t)
	f.book(t, model.Citizen(2), lawyerA, at(10), at(11))

	_, err := f.svc.Create(context.Background(), booking.CreateRequest{
		Requester: citizen, Provider: lawyerA, Start: at(10), End: at(11), Override: true,
	})
	assert.True(t, model.IsHardConflict(err), "got %v", err)

	require.NoError(t, f.store.InsertUnavailability(context.Background(), &model.Unavailability{LawyerID: lawyerA.ID(), StartTime: at(13), EndTime: at(15)}))
	_, err = f.svc.Create(context.Background(), booking.CreateRequest{
		Requester: citizen, Provider: lawyerA, Start: at(14), End: at(15), Override: true,
	})
	assert.True(t, model.IsHardConflict(err), "got %v", err)
}

func TestCreate_RequesterConflictIsSoftAndOverridable(t *testing.T) {
	f := newFixture(t)
	f.book(t, citizen, lawyerA, at(14), at(15))

	_, err := f.svc.Create(context.Background(), booking.CreateRequest{Requester: citizen, Provider: lawyerB, Start: at(14), End: at(15)})
	var cerr *model.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, model.SoftConflict, cerr.Kind)
	assert.Equal(t, "Lawyer A", cerr.ProviderName)

	a, err := f.svc.Create(context.Background(), booking.CreateRequest{Requester: citizen, Provider: lawyerB, Start: at(14), End: at(15), Override: true})
	require.NoError(t, err)
	assert.True(t, a.Override)
	assert.Equal(t, model.StatusPending, a.Status)
}

func TestCreate_RejectedSlotIsFreedAgain(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, model.Citizen(2), lawyerA, at(10), at(11))
	_, err := f.svc.SetStatus(context.Background(), a.ID, lawyerA, model.StatusRejected)
	require.NoError(t, err)

	f.book(t, citizen, lawyerA, at(10), at(11))
}

func TestCreate_ConcurrentSameSlotExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.svc.Create(context.Background(), booking.CreateRequest{
				Requester: model.Citizen(int64(100 + i)), Provider: lawyerA, Start: at(10), End: at(11),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, errs, n-1)
	for _, err := range errs {
		assert.True(t, model.IsHardConflict(err), "got %v", err)
	}

	held, err := f.store.ProviderAppointmentsOverlapping(context.Background(), lawyerA, intervals.New(at(0), at(24)))
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestCreate_RandomizedNoProviderOverlap(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))
	providers := []model.Party{lawyerA, lawyerB, ngo}
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		seed := rng.Int63()
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 60; i++ {
				start := day.Add(time.Duration(r.Intn(48)) * 15 * time.Minute)
				end := start.Add(time.Duration(1+r.Intn(8)) * 15 * time.Minute)
				a, err := f.svc.Create(ctx, booking.CreateRequest{
					Requester: model.Citizen(int64(100 + r.Intn(40))),
					Provider:  providers[r.Intn(len(providers))],
					Start:     start,
					End:       end,
					Override:  r.Intn(2) == 0,
				})
				if err == nil && r.Intn(3) == 0 {
					_, _ = f.svc.SetStatus(ctx, a.ID, a.Provider, model.StatusRejected)
				}
			}
		}()
	}
	wg.Wait()

	for _, p := range providers {
		held, err := f.store.ProviderAppointmentsOverlapping(ctx, p, intervals.New(at(0), at(24)))
		require.NoError(t, err)
		for i := range held {
			for j := i + 1; j < len(held); j++ {
				assert.False(t, intervals.Overlaps(intervals.OfAppointment(held[i]), intervals.OfAppointment(held[j])),
					"%s: %s overlaps %s", p, held[i].ID, held[j].ID)
			}
		}
	}
}

func TestSetStatus_ConfirmNotifiesBothSides(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, citizen, lawyerA, at(10), at(11))
	f.rec.Reset()

	got, err := f.svc.SetStatus(context.Background(), a.ID, lawyerA, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)

	require.Len(t, f.rec.For(citizen), 1)
	assert.Equal(t, notify.TypeAppointmentConfirmed, f.rec.For(citizen)[0].Type)
	require.Len(t, f.rec.For(lawyerA), 1)
	assert.Contains(t, f.rec.For(lawyerA)[0].Message, "You confirmed")
}

func TestSetStatus_RejectNotifiesRequesterOnly(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, citizen, lawyerA, at(10), at(11))
	f.rec.Reset()

	_, err := f.svc.SetStatus(context.Background(), a.ID, lawyerA, model.StatusRejected)
	require.NoError(t, err)
	require.Len(t, f.rec.Notifications(), 1)
	n := f.rec.Notifications()[0]
	assert.Equal(t, citizen, n.Recipient)
	assert.Contains(t, n.Message, "rejected")
}

func TestSetStatus_NoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, citizen, lawyerA, at(10), at(11))

	_, err := f.svc.SetStatus(ctx, a.ID, lawyerA, model.StatusConfirmed)
	require.NoError(t, err)
	f.rec.Reset()

	// Same state.
	got, err := f.svc.SetStatus(ctx, a.ID, lawyerA, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)

	b := f.book(t, citizen, lawyerA, at(12), at(13))
	_, err = f.svc.SetStatus(ctx, b.ID, lawyerA, model.StatusRejected)
	require.NoError(t, err)
	f.rec.Reset()

	// Terminal state.
	got, err = f.svc.SetStatus(ctx, b.ID, lawyerA, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Empty(t, f.rec.Notifications())
}

func TestSetStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, citizen, lawyerA, at(10), at(11))

	_, err := f.svc.SetStatus(ctx, a.ID, citizen, model.StatusConfirmed)
	assert.True(t, model.IsValidation(err), "requester cannot confirm: %v", err)

	_, err = f.svc.SetStatus(ctx, a.ID, lawyerB, model.StatusConfirmed)
	assert.True(t, model.IsNotFound(err), "other provider: %v", err)

	_, err = f.svc.SetStatus(ctx, "missing", lawyerA, model.StatusConfirmed)
	assert.True(t, model.IsNotFound(err), "unknown id: %v", err)
}

func TestSetStatus_ConfirmedIsSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, citizen, lawyerA, at(10), at(11))
	_, err := f.svc.SetStatus(ctx, a.ID, lawyerA, model.StatusConfirmed)
	require.NoError(t, err)
	f.rec.Reset()

	for _, next := range []model.Status{model.StatusRejected, model.StatusPending} {
		got, err := f.svc.SetStatus(ctx, a.ID, lawyerA, next)
		require.NoError(t, err, "confirmed -> %s", next)
		assert.Equal(t, model.StatusConfirmed, got.Status)
	}
	assert.Empty(t, f.rec.Notifications())

	stored, err := f.svc.Get(ctx, a.ID, lawyerA)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, citizen, lawyerA, at(10), at(11))

	_, err := f.svc.Cancel(ctx, a.ID, citizen, "")
	assert.True(t, model.IsValidation(err), "pending cannot be cancelled: %v", err)

	_, err = f.svc.SetStatus(ctx, a.ID, lawyerA, model.StatusConfirmed)
	require.NoError(t, err)
	f.rec.Reset()

	_, err = f.svc.Cancel(ctx, a.ID, stranger, "x")
	assert.True(t, model.IsNotFound(err))

	got, err := f.svc.Cancel(ctx, a.ID, citizen, " travelling ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, "travelling", got.CancelReason)
	require.NotNil(t, got.CancelledAt)

	toProvider := f.rec.For(lawyerA)
	require.Len(t, toProvider, 1)
	assert.Equal(t, notify.TypeAppointmentCancelled, toProvider[0].Type)
	assert.Contains(t, toProvider[0].Message, "Citizen C")
	assert.Contains(t, toProvider[0].Message, "travelling")

	emails := f.rec.CancellationEmails()
	require.Len(t, emails, 1)
	assert.Equal(t, lawyerA, emails[0].To)
	assert.Equal(t, "Citizen C", emails[0].CancelledBy)

	// Cancelled is terminal: no-op, no further messages.
	f.rec.Reset()
	_, err = f.svc.Cancel(ctx, a.ID, lawyerA, "")
	require.NoError(t, err)
	assert.Empty(t, f.rec.Notifications())

	// The slot is free again.
	f.book(t, model.Citizen(2), lawyerA, at(10), at(11))
}

func TestGetAndListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := f.book(t, citizen, lawyerA, at(9), at(10))
	late := f.book(t, citizen, ngo, at(15), at(16))
	f.book(t, model.Citizen(2), lawyerA, at(11), at(12))

	got, err := f.svc.Get(ctx, early.ID, lawyerA)
	require.NoError(t, err)
	assert.Equal(t, early.ID, got.ID)

	_, err = f.svc.Get(ctx, early.ID, stranger)
	assert.True(t, model.IsNotFound(err))

	mine, err := f.svc.ListMine(ctx, citizen, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, late.ID, mine[0].ID)
	assert.Equal(t, early.ID, mine[1].ID)

	asProvider, err := f.svc.ListMine(ctx, lawyerA, 10)
	require.NoError(t, err)
	assert.Len(t, asProvider, 2)
}
