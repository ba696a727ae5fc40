package health

import (
	"encoding/json"
	"net/http"
)

// Check reports whether one dependency is usable.
type Check func() bool

// Readiness answers 503 until every named check passes.
func Readiness(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status   string          `json:"status"`
			Checks   map[string]bool `json:"checks,omitempty"`
			NotReady []string        `json:"not_ready,omitempty"`
		}
		out := resp{Status: "ready", Checks: map[string]bool{}}
		for name, c := range checks {
			ok := c()
			out.Checks[name] = ok
			if !ok {
				out.NotReady = append(out.NotReady, name)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if len(out.NotReady) > 0 {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
