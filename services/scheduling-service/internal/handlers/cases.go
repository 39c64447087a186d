package handlers

import (
	"log/slog"
	"net/http"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/assignment"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/matching"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type CaseHandler struct {
	matching   *matching.Engine
	assignment *assignment.Service
	logger     *slog.Logger
}

func NewCaseHandler(engine *matching.Engine, assign *assignment.Service, logger *slog.Logger) *CaseHandler {
	return &CaseHandler{matching: engine, assignment: assign, logger: orDefault(logger)}
}

type caseRequest struct {
	CaseID        int64  `json:"case_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type providerItem struct {
	Role     string `json:"role"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type matchResponse struct {
	CaseID  int64          `json:"case_id"`
	Total   int            `json:"total"`
	Lawyers []providerItem `json:"lawyers"`
	NGOs    []providerItem `json:"ngos"`
}

type caseMatchItem struct {
	CaseID        int64   `json:"case_id"`
	ProviderRole  string  `json:"provider_role"`
	ProviderID    int64   `json:"provider_id"`
	Score         float64 `json:"score"`
	Status        string  `json:"status"`
	AppointmentID string  `json:"appointment_id,omitempty"`
	UpdatedAt     string  `json:"updated_at"`
}

func toProviderItems(ps []model.Provider) []providerItem {
	out := make([]providerItem, 0, len(ps))
	for _, p := range ps {
		out = append(out, providerItem{Role: string(p.Party.Role()), ID: p.Party.ID(), Name: p.Name, Category: p.Category})
	}
	return out
}

func toCaseMatchItem(m model.CaseMatch) caseMatchItem {
	return caseMatchItem{
		CaseID:        m.CaseID,
		ProviderRole:  string(m.Provider.Role()),
		ProviderID:    m.Provider.ID(),
		Score:         m.Score,
		Status:        string(m.Status),
		AppointmentID: m.AppointmentID,
		UpdatedAt:     formatTime(m.UpdatedAt),
	}
}

func (h *CaseHandler) Match(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req caseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.CaseID <= 0 {
		writeError(w, r, h.logger, model.Invalid("case_id", "must be a positive integer"))
		return
	}
	res, err := h.matching.MatchCase(r.Context(), req.CaseID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{
		CaseID:  req.CaseID,
		Total:   res.Total(),
		Lawyers: toProviderItems(res.Lawyers),
		NGOs:    toProviderItems(res.NGOs),
	})
}

func (h *CaseHandler) Matches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	caseID, err := parseID("case_id", r.URL.Query().Get("case_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	matches, err := h.matching.ListMatches(r.Context(), caseID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]caseMatchItem, 0, len(matches))
	for _, m := range matches {
		items = append(items, toCaseMatchItem(m))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CaseHandler) Assignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	caseID, err := parseID("case_id", r.URL.Query().Get("case_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.assignment.GetAssignment(r.Context(), caseID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseMatchItem(m))
}

func (h *CaseHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.read(w, r)
	if !ok {
		return
	}
	m, err := h.assignment.AssignCase(r.Context(), req.CaseID, req.AppointmentID, actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseMatchItem(m))
}

func (h *CaseHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.read(w, r)
	if !ok {
		return
	}
	m, err := h.assignment.UnassignCase(r.Context(), req.CaseID, actor, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseMatchItem(m))
}

func (h *CaseHandler) read(w http.ResponseWriter, r *http.Request) (model.Party, caseRequest, bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return model.Party{}, caseRequest{}, false
	}
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return model.Party{}, caseRequest{}, false
	}
	var req caseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return model.Party{}, caseRequest{}, false
	}
	if req.CaseID <= 0 {
		writeError(w, r, h.logger, model.Invalid("case_id", "must be a positive integer"))
		return model.Party{}, caseRequest{}, false
	}
	return actor, req, true
}
