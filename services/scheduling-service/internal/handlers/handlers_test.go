package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/assignment"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/availability"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/booking"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/cases"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/directory"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/handlers"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/matching"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify/notifytest"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store/memstore"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/unavailability"
)

type caller struct {
	role string
	id   int64
}

var (
	citizen = caller{"citizen", 1}
	lawyerA = caller{"lawyer", 10}
	lawyerB = caller{"lawyer", 11}
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := directory.NewStatic().
		Add(model.Provider{Party: model.Citizen(1), Name: "Citizen C"}).
		Add(model.Provider{Party: model.Citizen(2), Name: "Citizen D"}).
		Add(model.Provider{Party: model.Lawyer(10), Name: "Lawyer A", Category: "Criminal", Approved: true}).
		Add(model.Provider{Party: model.Lawyer(11), Name: "Lawyer B", Category: "Family", Approved: true})
	cs := cases.NewStatic(model.Case{ID: 7, CitizenID: 1, Title: "Theft", Specialization: "criminal"})
	st := memstore.New()
	rec := notifytest.New()

	b := booking.NewService(st, dir, rec, nil)
	grid, err := availability.NewGrid(st, availability.DefaultConfig())
	require.NoError(t, err)
	m := matching.NewEngine(st, cs, dir, rec, nil)
	a := assignment.NewService(st, cs, b, dir, rec, nil)

	mux := http.NewServeMux()
	handlers.Routes{
		Appointments:   handlers.NewAppointmentHandler(b, nil),
		Availability:   handlers.NewAvailabilityHandler(grid, nil),
		Unavailability: handlers.NewUnavailabilityHandler(unavailability.NewService(st, nil), nil),
		Cases:          handlers.NewCaseHandler(m, a, nil),
	}.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, who *caller, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if who != nil {
		req.Header.Set("X-Role", who.role)
		req.Header.Set("X-User-Id", strconv.FormatInt(who.id, 10))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw := new(bytes.Buffer)
	_, _ = raw.ReadFrom(resp.Body)
	if raw.Len() > 0 && raw.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(raw.Bytes(), &out))
	}
	return resp.StatusCode, out
}

func booking10(provider caller, override bool) map[string]any {
	return map[string]any{
		"provider_role":  provider.role,
		"provider_id":    provider.id,
		"start_time":     "2024-05-01T10:00:00Z",
		"end_time":       "2024-05-01T11:00:00Z",
		"force_override": override,
	}
}

func TestCreateAppointmentAndConflicts(t *testing.T) {
	srv := newServer(t)

	code, body := do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, booking10(lawyerA, false))
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "Lawyer A", body["provider_name"])
	assert.Equal(t, "meeting", body["appointment_type"])

	code, body = do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, booking10(lawyerB, false))
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, true, body["overridable"])
	assert.Equal(t, "Lawyer A", body["provider_name"])

	code, _ = do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, booking10(lawyerB, true))
	require.Equal(t, http.StatusCreated, code)

	other := caller{"citizen", 2}
	code, body = do(t, srv, http.MethodPost, "/api/v1/appointments", &other, booking10(lawyerA, true))
	require.Equal(t, http.StatusConflict, code)
	assert.Nil(t, body["overridable"])

	// Parties are resolved before the slot is checked.
	unknown := caller{"citizen", 99}
	code, _ = do(t, srv, http.MethodPost, "/api/v1/appointments", &unknown, booking10(lawyerA, true))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateAppointmentBadInput(t *testing.T) {
	srv := newServer(t)

	code, _ := do(t, srv, http.MethodPost, "/api/v1/appointments", nil, booking10(lawyerA, false))
	assert.Equal(t, http.StatusBadRequest, code)

	bad := booking10(lawyerA, false)
	bad["start_time"] = "tomorrow"
	code, body := do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "start_time", body["field"])

	code, _ = do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, booking10(caller{"citizen", 3}, false))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, booking10(caller{"lawyer", 404}, false))
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodDelete, "/api/v1/appointments", &citizen, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestStatusCancelAndList(t *testing.T) {
	srv := newServer(t)
	_, created := do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, booking10(lawyerA, false))
	id := created["appointment_id"]

	code, _ := do(t, srv, http.MethodPost, "/api/v1/appointments/status", &lawyerB, map[string]any{"appointment_id": id, "status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/appointments/status", &lawyerA, map[string]any{"appointment_id": id, "status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, srv, http.MethodPost, "/api/v1/appointments/status", &lawyerA, map[string]any{"appointment_id": id, "status": "CONFIRMED"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "confirmed", body["status"])

	code, body = do(t, srv, http.MethodPost, "/api/v1/appointments/cancel", &citizen, map[string]any{"appointment_id": id, "reason": "ill"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "ill", body["cancellation_reason"])
	assert.NotEmpty(t, body["cancelled_at"])

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/appointments", nil)
	require.NoError(t, err)
	req.Header.Set("X-Role", "lawyer")
	req.Header.Set("X-User-Id", "10")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0]["appointment_id"])
}

func TestAvailabilityGrid(t *testing.T) {
	srv := newServer(t)
	code, _ := do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, booking10(lawyerA, false))
	require.Equal(t, http.StatusCreated, code)

	code, body := do(t, srv, http.MethodGet, "/api/v1/availability?provider_role=lawyer&provider_id=10&date=2024-05-01", nil, nil)
	require.Equal(t, http.StatusOK, code)
	slots := body["slots"].([]any)
	require.Len(t, slots, 8)
	assert.Equal(t, "10:00", slots[1].(map[string]any)["slot"])
	assert.Equal(t, "BOOKED", slots[1].(map[string]any)["status"])
	assert.Equal(t, "AVAILABLE", slots[0].(map[string]any)["status"])

	code, body = do(t, srv, http.MethodGet, "/api/v1/availability?provider_role=lawyer&provider_id=11&date=2024-05-01", &citizen, nil)
	require.Equal(t, http.StatusOK, code)
	slot := body["slots"].([]any)[1].(map[string]any)
	assert.Equal(t, "CONFLICT", slot["status"])
	assert.Equal(t, "Lawyer A", slot["conflict_with"])

	code, _ = do(t, srv, http.MethodGet, "/api/v1/availability?provider_role=lawyer&provider_id=10&date=01-05-2024", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUnavailabilityRoutes(t *testing.T) {
	srv := newServer(t)
	period := map[string]any{"start_time": "2024-05-01T13:00:00Z", "end_time": "2024-05-01T15:00:00Z", "reason": "court"}

	code, body := do(t, srv, http.MethodPost, "/api/v1/unavailability", &lawyerA, period)
	require.Equal(t, http.StatusCreated, code)
	id := body["id"]

	code, _ = do(t, srv, http.MethodPost, "/api/v1/unavailability", &lawyerA, period)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/unavailability", &citizen, period)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, map[string]any{
		"provider_role": "lawyer", "provider_id": 10,
		"start_time": "2024-05-01T14:00:00Z", "end_time": "2024-05-01T15:00:00Z", "force_override": true,
	})
	assert.Equal(t, http.StatusConflict, code)

	update := map[string]any{"id": id, "start_time": "2024-05-01T13:00:00Z", "end_time": "2024-05-01T14:00:00Z"}
	code, _ = do(t, srv, http.MethodPost, "/api/v1/unavailability/update", &lawyerB, update)
	assert.Equal(t, http.StatusNotFound, code)
	code, body = do(t, srv, http.MethodPost, "/api/v1/unavailability/update", &lawyerA, update)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2024-05-01T14:00:00Z", body["end_time"])

	code, _ = do(t, srv, http.MethodPost, "/api/v1/unavailability/delete", &lawyerA, map[string]any{"id": id})
	assert.Equal(t, http.StatusNoContent, code)
}

func TestCaseRoutes(t *testing.T) {
	srv := newServer(t)

	code, body := do(t, srv, http.MethodPost, "/api/v1/cases/match", &citizen, map[string]any{"case_id": 7})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, _ = do(t, srv, http.MethodPost, "/api/v1/cases/match", &citizen, map[string]any{"case_id": 404})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodGet, "/api/v1/cases/assignment?case_id=7", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	req := booking10(lawyerA, false)
	req["case_id"] = 7
	_, created := do(t, srv, http.MethodPost, "/api/v1/appointments", &citizen, req)
	id := created["appointment_id"]

	code, _ = do(t, srv, http.MethodPost, "/api/v1/cases/assign", &lawyerA, map[string]any{"case_id": 7, "appointment_id": id})
	assert.Equal(t, http.StatusBadRequest, code, "pending appointment")

	code, _ = do(t, srv, http.MethodPost, "/api/v1/appointments/status", &lawyerA, map[string]any{"appointment_id": id, "status": "confirmed"})
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, srv, http.MethodPost, "/api/v1/cases/assign", &lawyerA, map[string]any{"case_id": 7, "appointment_id": id})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "accepted", body["status"])

	code, body = do(t, srv, http.MethodGet, "/api/v1/cases/assignment?case_id=7", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["appointment_id"])

	code, body = do(t, srv, http.MethodPost, "/api/v1/cases/unassign", &citizen, map[string]any{"case_id": 7, "reason": "resolved"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", body["status"])
}
