package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// storePingTimeout bounds the store check on readiness probes.
const storePingTimeout = 2 * time.Second

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnavailable  = "unavailable"
)

// HealthChecker serves the liveness and readiness probes. Readiness covers
// the drain flag, the server context and the ledger store.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time
}

// NewHealthChecker creates a checker that starts ready. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, startTime: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness, typically to false when draining.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status       string   `json:"status"`
	Uptime       string   `json:"uptime"`
	Store        string   `json:"store"`
	Google       string   `json:"google"`
	Integrations []string `json:"integrations"`
}

type readiness struct {
	ready, shutdown, store string
}

// status returns the first failing check, or ok.
func (r readiness) status() string {
	switch {
	case r.store != healthStatusOK:
		return healthStatusUnavailable
	case r.ready != healthStatusOK:
		return healthStatusNotReady
	case r.shutdown != healthStatusOK:
		return healthStatusShuttingDown
	}
	return healthStatusOK
}

func (h *HealthChecker) evaluate(ctx context.Context) readiness {
	r := readiness{ready: healthStatusOK, shutdown: healthStatusOK, store: healthStatusOK}
	if !h.ready.Load() {
		r.ready = healthStatusNotReady
	}
	if h.sc == nil {
		return r
	}
	if h.sc.IsShutdown() {
		r.shutdown = healthStatusShuttingDown
	}
	ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := h.sc.Ping(ctx); err != nil {
		r.store = healthStatusUnavailable
	}
	return r
}

// Liveness answers ok while the process can serve requests at all.
func (h *HealthChecker) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: healthStatusOK})
}

// Readiness fails with 503 while draining, after shutdown or when the store
// does not answer.
func (h *HealthChecker) Readiness(c echo.Context) error {
	r := h.evaluate(c.Request().Context())
	resp := HealthResponse{
		Status: healthStatusOK,
		Checks: map[string]string{"ready": r.ready, "shutdown": r.shutdown, "store": r.store},
	}
	if r.status() != healthStatusOK {
		resp.Status = healthStatusNotReady
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Detailed reports uptime, the registered integrations and whether Google
// OAuth is configured. The Google state never fails the probe.
func (h *HealthChecker) Detailed(c echo.Context) error {
	r := h.evaluate(c.Request().Context())
	resp := DetailedHealthResponse{
		Status:       r.status(),
		Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
		Store:        r.store,
		Google:       "not configured",
		Integrations: []string{},
	}
	if h.sc != nil {
		resp.Integrations = h.sc.Registry().Integrations()
		if h.sc.Credentials() != nil {
			resp.Google = "configured"
		}
	}
	code := http.StatusOK
	if resp.Status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// RegisterHealthEndpoints mounts the probes on e, outside any auth group.
func (h *HealthChecker) RegisterHealthEndpoints(e *echo.Echo) {
	e.GET("/healthz", h.Liveness)
	e.GET("/readyz", h.Readiness)
	e.GET("/healthz/detailed", h.Detailed)
}
