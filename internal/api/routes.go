package api

import (
	"net/http"

	"laserops/internal/health"
	"laserops/internal/job"
	"laserops/internal/machine"
	"laserops/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService      *job.Service
	MachineRegistry *machine.Registry
	Metrics         *observability.Metrics
	HealthChecker   *health.Checker
	APIKey          string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.MachineRegistry, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Authenticated API surface
	authMiddleware := AuthMiddleware(cfg.APIKey)
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	mux.Handle("POST /v1/jobs", protected(handler.CreateJob))
	mux.Handle("GET /v1/jobs", protected(handler.ListJobs))
	mux.Handle("GET /v1/jobs/{jobId}", protected(handler.GetJob))
	mux.Handle("POST /v1/jobs/{jobId}/send", protected(handler.SendJob))
	mux.Handle("POST /v1/jobs/{jobId}/progress", protected(handler.UpdateProgress))
	mux.Handle("POST /v1/jobs/{jobId}/cancel", protected(handler.CancelJob))

	mux.Handle("POST /v1/machines", protected(handler.CreateMachine))
	mux.Handle("GET /v1/machines", protected(handler.ListMachines))
	mux.Handle("GET /v1/machines/{machineId}", protected(handler.GetMachine))
	mux.Handle("POST /v1/machines/{machineId}/ping", protected(handler.PingMachine))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
