package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ReadyCheck is a named dependency probe for /readyz.
type ReadyCheck struct {
	Name string
	// Optional failures are reported but leave the service ready.
	Optional bool
	Check    func(context.Context) error
}

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

const checkTimeout = 2 * time.Second

// NewBaseMuxWithReady serves /healthz (process liveness) and /readyz, which
// runs every check concurrently and answers 503 when a required one fails.
// Status is "ok", "degraded" (optional failures only) or "unavailable".
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeReport(w, http.StatusOK, readyReport{Status: "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report, ready := probe(r.Context(), checks)
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, report)
	})
	return mux
}

func probe(ctx context.Context, checks []ReadyCheck) (readyReport, bool) {
	results := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		if c.Check == nil {
			continue
		}
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			results[i] = c.Check(cctx)
		}()
	}
	wg.Wait()

	report := readyReport{Status: "ok", Checks: map[string]string{}}
	ready := true
	for i, c := range checks {
		if c.Check == nil {
			continue
		}
		name := c.Name
		if name == "" {
			name = "dependency"
		}
		if results[i] == nil {
			report.Checks[name] = "ok"
			continue
		}
		report.Checks[name] = results[i].Error()
		if c.Optional {
			if ready {
				report.Status = "degraded"
			}
			continue
		}
		ready = false
		report.Status = "unavailable"
	}
	return report, ready
}

func writeReport(w http.ResponseWriter, code int, report readyReport) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
