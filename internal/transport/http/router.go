// Package httptransport assembles the public HTTP surface. Routing stays
// thin: feature handlers register themselves, the router only owns the shared
// middleware chain and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loanflow/internal/platform/middleware"
	"loanflow/pkg/platform/httputil"
)

// Registrar is implemented by feature handlers that mount their own routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports the readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a plain function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

type namedChecker struct {
	name    string
	checker HealthChecker
}

// Router builds the top-level chi router.
type Router struct {
	logger   *slog.Logger
	timeout  time.Duration
	checkers []namedChecker
	handlers []Registrar
}

func NewRouter(logger *slog.Logger, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Router{logger: logger, timeout: timeout}
}

// WithHealthCheck adds a dependency to the readiness probe. A nil checker is
// skipped so optional dependencies (redis) wire cleanly.
func (rt *Router) WithHealthCheck(name string, checker HealthChecker) *Router {
	if checker != nil {
		rt.checkers = append(rt.checkers, namedChecker{name: name, checker: checker})
	}
	return rt
}

// WithHandler mounts a feature handler.
func (rt *Router) WithHandler(h Registrar) *Router {
	rt.handlers = append(rt.handlers, h)
	return rt
}

// Build assembles the router with the shared middleware chain.
func (rt *Router) Build() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(rt.logger))
	r.Use(middleware.Timeout(rt.timeout))

	r.Get("/healthz", rt.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range rt.handlers {
		h.Register(r)
	}
	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(rt.checkers))
	for _, c := range rt.checkers {
		if err := c.checker.Health(ctx); err != nil {
			deps[c.name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[c.name] = "ok"
	}

	httputil.WriteJSON(w, status, map[string]any{
		"status":       healthWord(status),
		"dependencies": deps,
	})
}

func healthWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
