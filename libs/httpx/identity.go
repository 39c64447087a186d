package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

// Identity headers are set by the upstream gateway after authentication.
const (
	UserIDHeader = "X-User-Id"
	RoleHeader   = "X-Role"
)

// Caller is the raw gateway identity. Role is lower-cased; services decide
// which roles they accept.
type Caller struct {
	Role string
	ID   int64
}

func (c Caller) String() string {
	return c.Role + ":" + strconv.FormatInt(c.ID, 10)
}

// CallerFromRequest reports false when either header is missing or the id is
// not a positive integer.
func CallerFromRequest(r *http.Request) (Caller, bool) {
	role := strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader)))
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(UserIDHeader)), 10, 64)
	if role == "" || err != nil || id <= 0 {
		return Caller{}, false
	}
	return Caller{Role: role, ID: id}, true
}
