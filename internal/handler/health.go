package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rafflio/platform/internal/infra"
)

// HealthHandler pings every named dependency. Any failure reports 503 with
// the failing dependency's error.
func HealthHandler(deps map[string]infra.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string, len(deps))
		healthy := true
		for name, p := range deps {
			if err := infra.HealthCheck(r.Context(), p); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		status := "healthy"
		if !healthy {
			status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}
