package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/legalaid-connect/legalaid/libs/httpx"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/availability"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type AvailabilityHandler struct {
	grid   *availability.Grid
	logger *slog.Logger
}

func NewAvailabilityHandler(grid *availability.Grid, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{grid: grid, logger: orDefault(logger)}
}

type slotItem struct {
	Slot         string `json:"slot"`
	Display      string `json:"display"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	ConflictWith string `json:"conflict_with,omitempty"`
}

type availabilityResponse struct {
	ProviderRole string     `json:"provider_role"`
	ProviderID   int64      `json:"provider_id"`
	Date         string     `json:"date"`
	Slots        []slotItem `json:"slots"`
}

// Get renders the day grid of a provider. When the caller identifies itself
// the grid also marks slots clashing with the caller's own appointments.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	id, err := parseID("provider_id", q.Get("provider_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	provider, err := model.ParseProvider(q.Get("provider_role"), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	date := strings.TrimSpace(q.Get("date"))

	query := availability.Query{Provider: provider, Date: date}
	if r.Header.Get(httpx.UserIDHeader) != "" {
		requester, err := identity(r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		query.Requester = &requester
	}

	slots, err := h.grid.Compute(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := availabilityResponse{
		ProviderRole: string(provider.Role()),
		ProviderID:   provider.ID(),
		Date:         date,
		Slots:        make([]slotItem, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			Slot:         s.Label,
			Display:      s.Display,
			StartTime:    formatTime(s.Start),
			EndTime:      formatTime(s.End),
			Status:       string(s.Status),
			ConflictWith: s.ConflictWith,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
