package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves liveness and readiness. Without checks it answers
// {"status":"alive"}. With checks it runs each one against the request
// context and answers 200 "ready" or 503 "not_ready" with per-check results.
func HealthHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if len(checks) == 0 {
			writeHealth(w, http.StatusOK, healthReport{Status: "alive"})
			return
		}

		report := healthReport{Status: "ready", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				report.Checks[c.Name] = err.Error()
				report.Status = "not_ready"
				code = http.StatusServiceUnavailable
				continue
			}
			report.Checks[c.Name] = "ok"
		}
		writeHealth(w, code, report)
	}
}

func writeHealth(w http.ResponseWriter, code int, report healthReport) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
