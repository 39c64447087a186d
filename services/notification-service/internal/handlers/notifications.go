package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/legalaid-connect/legalaid/libs/httpx"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/storage"
)

type Repository interface {
	ListForRecipient(ctx context.Context, role string, id int64, limit int) ([]storage.Notification, error)
	MarkRead(ctx context.Context, role string, recipientID, id int64) (bool, error)
}

type NotificationHandler struct {
	repo   Repository
	logger *slog.Logger
}

func NewNotificationHandler(repo Repository, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{repo: repo, logger: logger}
}

type notificationItem struct {
	ID          int64  `json:"id"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id,omitempty"`
	Read        bool   `json:"is_read"`
	CreatedAt   string `json:"created_at"`
}

type markReadRequest struct {
	ID int64 `json:"id"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	role, id, ok := recipient(r)
	if !ok {
		http.Error(w, "X-User-Id and X-Role headers required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.repo.ListForRecipient(r.Context(), role, id, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list notifications failed", "err", err)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	items := make([]notificationItem, 0, len(rows))
	for _, n := range rows {
		items = append(items, notificationItem{
			ID:          n.ID,
			Message:     n.Message,
			Type:        n.Type,
			ReferenceID: n.ReferenceID,
			Read:        n.Read,
			CreatedAt:   n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	role, id, ok := recipient(r)
	if !ok {
		http.Error(w, "X-User-Id and X-Role headers required", http.StatusBadRequest)
		return
	}
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	found, err := h.repo.MarkRead(r.Context(), role, id, req.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "mark read failed", "err", err)
		http.Error(w, "failed to update notification", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func recipient(r *http.Request) (string, int64, bool) {
	c, ok := httpx.CallerFromRequest(r)
	if !ok {
		return "", 0, false
	}
	switch c.Role {
	case "citizen", "lawyer", "ngo":
		return c.Role, c.ID, true
	}
	return "", 0, false
}
