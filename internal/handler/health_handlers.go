package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// pinger is satisfied by *pgxpool.Pool and *cache.Cache (both already
// expose Ping(ctx) error) — narrowed so Ready is testable with fakes
// instead of a live Postgres/Redis, the same narrow-interface idiom used
// for beginner across the service/relay/processor/consumer packages.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler implements the §4.8 liveness/readiness probes.
type HealthHandler struct {
	db    pinger
	cache pinger
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db, cache pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Register mounts /health/live, /health/ready, and /metrics on e.
func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health/live", h.Live)
	e.GET("/health/ready", h.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Live handles GET /health/live: unconditional 200.
func (h *HealthHandler) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /health/ready: checks the database and the fast store
// in parallel, both must pass or the response is 503 with a per-dependency
// status map (§4.8).
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	healthy := true

	check := func(name string, ping func(context.Context) error) {
		defer wg.Done()
		status := "ok"
		if err := ping(ctx); err != nil {
			status = "error: " + err.Error()
			mu.Lock()
			healthy = false
			mu.Unlock()
		}
		mu.Lock()
		checks[name] = status
		mu.Unlock()
	}

	wg.Add(2)
	go check("database", h.db.Ping)
	go check("redis", h.cache.Ping)
	wg.Wait()

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "not ready"
	}
	return c.JSON(status, map[string]interface{}{"status": overall, "checks": checks})
}
