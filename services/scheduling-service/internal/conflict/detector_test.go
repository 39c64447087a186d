package conflict_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/conflict"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store/memstore"
)

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

func seed(t *testing.T, s *memstore.Store, a model.Appointment) model.Appointment {
	t.Helper()
	require.NoError(t, s.InsertAppointment(context.Background(), &a))
	return a
}

func TestCheck_UnavailabilityIsHard(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	require.NoError(t, s.InsertUnavailability(ctx, &model.Unavailability{LawyerID: 7, StartTime: at(10), EndTime: at(12), Reason: "court"}))

	d, err := conflict.NewDetector().Check(ctx, s, conflict.Request{
		Provider: model.Lawyer(7), Requester: model.Citizen(1), Start: at(11), End: at(12), Override: true,
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.BlockedConfirmed, d.Outcome)
	assert.Contains(t, d.Message, "unavailable")
	assert.True(t, model.IsHardConflict(d.Err()))
}

func TestCheck_UnavailabilityIgnoredForNGO(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	// Same numeric id as a lawyer with a blocked period.
	require.NoError(t, s.InsertUnavailability(ctx, &model.Unavailability{LawyerID: 7, StartTime: at(10), EndTime: at(12)}))

	d, err := conflict.NewDetector().Check(ctx, s, conflict.Request{
		Provider: model.NGO(7), Requester: model.Citizen(1), Start: at(10), End: at(11),
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.OK, d.Outcome)
}

func TestCheck_ProviderBusy(t *testing.T) {
	for _, tc := range []struct {
		status model.Status
		want   string
	}{
		{model.StatusConfirmed, "already booked"},
		{model.StatusPending, "pending request"},
	} {
		t.Run(tc.status.String(), func(t *testing.T) {
			s := memstore.New()
			seed(t, s, model.Appointment{Requester: model.Citizen(2), Provider: model.Lawyer(7), StartTime: at(10), EndTime: at(11), Status: tc.status})

			d, err := conflict.NewDetector().Check(context.Background(), s, conflict.Request{
				Provider: model.Lawyer(7), Requester: model.Citizen(1), Start: at(10), End: at(11), Override: true,
			})
			require.NoError(t, err)
			assert.Equal(t, conflict.BlockedConfirmed, d.Outcome)
			assert.Contains(t, d.Message, tc.want)
		})
	}
}

func TestCheck_InactiveAppointmentsDoNotBlock(t *testing.T) {
	s := memstore.New()
	a := seed(t, s, model.Appointment{Requester: model.Citizen(1), Provider: model.Lawyer(7), StartTime: at(10), EndTime: at(11), Status: model.StatusPending})
	require.NoError(t, s.UpdateAppointmentStatus(context.Background(), a.ID, model.StatusRejected, "", at(0)))

	d, err := conflict.NewDetector().Check(context.Background(), s, conflict.Request{
		Provider: model.Lawyer(7), Requester: model.Citizen(1), Start: at(10), End: at(11),
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.OK, d.Outcome)
}

func TestCheck_TouchingEndpointsDoNotConflict(t *testing.T) {
	s := memstore.New()
	seed(t, s, model.Appointment{Requester: model.Citizen(1), Provider: model.Lawyer(7), StartTime: at(10), EndTime: at(11), Status: model.StatusConfirmed})

	d, err := conflict.NewDetector().Check(context.Background(), s, conflict.Request{
		Provider: model.Lawyer(7), Requester: model.Citizen(1), Start: at(11), End: at(12),
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.OK, d.Outcome)
}

func TestCheck_RequesterOverlapIsSoft(t *testing.T) {
	s := memstore.New()
	seed(t, s, model.Appointment{
		Requester: model.Citizen(1), Provider: model.Lawyer(10), ProviderName: "Lawyer A",
		StartTime: at(14), EndTime: at(15), Status: model.StatusPending,
	})
	det := conflict.NewDetector()
	req := conflict.Request{Provider: model.Lawyer(20), Requester: model.Citizen(1), Start: at(14), End: at(15)}

	d, err := det.Check(context.Background(), s, req)
	require.NoError(t, err)
	assert.Equal(t, conflict.BlockedOverridable, d.Outcome)
	assert.Equal(t, "Lawyer A", d.ProviderName)

	var cerr *model.ConflictError
	require.ErrorAs(t, d.Err(), &cerr)
	assert.True(t, cerr.Overridable())
	assert.Equal(t, "Lawyer A", cerr.ProviderName)

	req.Override = true
	d, err = det.Check(context.Background(), s, req)
	require.NoError(t, err)
	assert.Equal(t, conflict.OK, d.Outcome)
	assert.NoError(t, d.Err())
}

func TestCheck_Deterministic(t *testing.T) {
	s := memstore.New()
	seed(t, s, model.Appointment{Requester: model.Citizen(1), Provider: model.Lawyer(10), ProviderName: "A", StartTime: at(9), EndTime: at(10), Status: model.StatusPending})
	seed(t, s, model.Appointment{Requester: model.Citizen(1), Provider: model.Lawyer(11), ProviderName: "B", StartTime: at(9), EndTime: at(10), Status: model.StatusConfirmed})

	det := conflict.NewDetector()
	req := conflict.Request{Provider: model.Lawyer(20), Requester: model.Citizen(1), Start: at(9), End: at(10)}
	first, err := det.Check(context.Background(), s, req)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := det.Check(context.Background(), s, req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
