package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/legalaid-connect/legalaid/libs/httpx"
	"github.com/legalaid-connect/legalaid/libs/reqid"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type errorResponse struct {
	Error        string `json:"error"`
	Field        string `json:"field,omitempty"`
	Overridable  bool   `json:"overridable,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr *model.ValidationError
		cerr *model.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:        cerr.Message,
			Overridable:  cerr.Overridable(),
			ProviderName: cerr.ProviderName,
		})
	case model.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, reqid.Attr(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// identity reads the caller set by the upstream gateway.
func identity(r *http.Request) (model.Party, error) {
	c, ok := httpx.CallerFromRequest(r)
	if !ok {
		return model.Party{}, model.Invalid("user", "missing or invalid "+httpx.UserIDHeader+"/"+httpx.RoleHeader+" headers")
	}
	p, err := model.ParseParty(c.Role, c.ID)
	if err != nil {
		return model.Party{}, model.Invalid("user", "unknown role in "+httpx.RoleHeader+" header")
	}
	return p, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.Invalid("body", "invalid json body")
	}
	return nil
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, model.Invalid(field, "must be an RFC3339 timestamp")
	}
	return t, nil
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Invalid(field, "must be a positive integer")
	}
	return id, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
