package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthRecorder is told the result of every health check run.
type HealthRecorder interface {
	RecordHealthCheck(name string, healthy bool)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

const healthCheckTimeout = 2 * time.Second

// NewOpsRouter serves /metrics from gatherer and /healthz from checks. Health
// is 200 when every check passes and 503 otherwise.
func NewOpsRouter(gatherer prometheus.Gatherer, checks map[string]HealthCheck, recorder HealthRecorder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, name := range names {
			err := checks[name](ctx)
			if recorder != nil {
				recorder.RecordHealthCheck(name, err == nil)
			}
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
	return r
}
