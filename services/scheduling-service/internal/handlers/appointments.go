package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/booking"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type AppointmentHandler struct {
	booking *booking.Service
	logger  *slog.Logger
}

func NewAppointmentHandler(svc *booking.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{booking: svc, logger: orDefault(logger)}
}

type createAppointmentRequest struct {
	ProviderRole  string `json:"provider_role"`
	ProviderID    int64  `json:"provider_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Type          string `json:"appointment_type"`
	Description   string `json:"description"`
	CaseID        *int64 `json:"case_id"`
	ForceOverride bool   `json:"force_override"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type appointmentItem struct {
	AppointmentID      string `json:"appointment_id"`
	RequesterRole      string `json:"requester_role"`
	RequesterID        int64  `json:"requester_id"`
	RequesterName      string `json:"requester_name"`
	ProviderRole       string `json:"provider_role"`
	ProviderID         int64  `json:"provider_id"`
	ProviderName       string `json:"provider_name"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	Type               string `json:"appointment_type"`
	Status             string `json:"status"`
	Description        string `json:"description,omitempty"`
	CaseID             *int64 `json:"case_id,omitempty"`
	Override           bool   `json:"override"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:      a.ID,
		RequesterRole:      string(a.Requester.Role()),
		RequesterID:        a.Requester.ID(),
		RequesterName:      a.RequesterName,
		ProviderRole:       string(a.Provider.Role()),
		ProviderID:         a.Provider.ID(),
		ProviderName:       a.ProviderName,
		StartTime:          formatTime(a.StartTime),
		EndTime:            formatTime(a.EndTime),
		Type:               a.Type,
		Status:             a.Status.String(),
		Description:        a.Description,
		CaseID:             a.CaseID,
		Override:           a.Override,
		CancellationReason: a.CancelReason,
		CreatedAt:          formatTime(a.CreatedAt),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = formatTime(*a.CancelledAt)
	}
	return item
}

// Appointments serves POST (create) and GET (list mine) on one path.
func (h *AppointmentHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createAppointmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	provider, err := model.ParseProvider(req.ProviderRole, req.ProviderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := parseTime("start_time", req.StartTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	end, err := parseTime("end_time", req.EndTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	appt, err := h.booking.Create(r.Context(), booking.CreateRequest{
		Requester:   actor,
		Provider:    provider,
		Start:       start,
		End:         end,
		Type:        req.Type,
		Description: req.Description,
		CaseID:      req.CaseID,
		Override:    req.ForceOverride,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, r, h.logger, model.Invalid("limit", "must be an integer"))
			return
		}
	}
	appts, err := h.booking.ListMine(r.Context(), actor, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.booking.SetStatus(r.Context(), strings.TrimSpace(req.AppointmentID), actor, status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.booking.Cancel(r.Context(), strings.TrimSpace(req.AppointmentID), actor, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}
