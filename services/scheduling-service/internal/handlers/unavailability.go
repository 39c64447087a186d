package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/intervals"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/unavailability"
)

type UnavailabilityHandler struct {
	svc    *unavailability.Service
	logger *slog.Logger
}

func NewUnavailabilityHandler(svc *unavailability.Service, logger *slog.Logger) *UnavailabilityHandler {
	return &UnavailabilityHandler{svc: svc, logger: orDefault(logger)}
}

type periodRequest struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

type periodItem struct {
	ID        string `json:"id"`
	LawyerID  int64  `json:"lawyer_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

func toPeriodItem(u model.Unavailability) periodItem {
	return periodItem{
		ID:        u.ID,
		LawyerID:  u.LawyerID,
		StartTime: formatTime(u.StartTime),
		EndTime:   formatTime(u.EndTime),
		Reason:    u.Reason,
	}
}

func (req periodRequest) period() (unavailability.Period, error) {
	start, err := parseTime("start_time", req.StartTime)
	if err != nil {
		return unavailability.Period{}, err
	}
	end, err := parseTime("end_time", req.EndTime)
	if err != nil {
		return unavailability.Period{}, err
	}
	return unavailability.Period{Start: start, End: end, Reason: req.Reason}, nil
}

// Periods serves GET (list) and POST (create).
func (h *UnavailabilityHandler) Periods(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.List(w, r)
	case http.MethodPost:
		h.Create(w, r)
	default:
		methodNotAllowed(w)
	}
}

// List shows the periods of lawyer_id, defaulting to the calling lawyer.
// from/to narrow the result to periods overlapping that window.
func (h *UnavailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var lawyerID int64
	if raw := q.Get("lawyer_id"); raw != "" {
		id, err := parseID("lawyer_id", raw)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		lawyerID = id
	} else {
		actor, err := identity(r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if !actor.IsLawyer() {
			writeError(w, r, h.logger, model.Invalid("lawyer_id", "is required"))
			return
		}
		lawyerID = actor.ID()
	}

	var window intervals.Interval
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, err := parseTime("from", from)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		end, err := parseTime("to", to)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		window = intervals.New(start, end)
	}

	periods, err := h.svc.List(r.Context(), lawyerID, window)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]periodItem, 0, len(periods))
	for _, u := range periods {
		items = append(items, toPeriodItem(u))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *UnavailabilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.read(w, r)
	if !ok {
		return
	}
	p, err := req.period()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.Create(r.Context(), actor, p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodItem(u))
}

func (h *UnavailabilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, req, ok := h.read(w, r)
	if !ok {
		return
	}
	p, err := req.period()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.svc.Update(r.Context(), actor, strings.TrimSpace(req.ID), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodItem(u))
}

func (h *UnavailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, req, ok := h.read(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor, strings.TrimSpace(req.ID)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UnavailabilityHandler) read(w http.ResponseWriter, r *http.Request) (model.Party, periodRequest, bool) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return model.Party{}, periodRequest{}, false
	}
	var req periodRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return model.Party{}, periodRequest{}, false
	}
	return actor, req, true
}
