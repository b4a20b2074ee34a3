package health

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Ramsey-B/moss/internal/database"
	"github.com/Ramsey-B/moss/pkg/search"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Checker handles health check endpoints
type Checker struct {
	db        database.DB
	redis     *redis.Client
	es        *search.Client
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a new health checker. redis may be nil when the
// checkpoint lives on disk.
func NewChecker(db database.DB, redisClient *redis.Client, es *search.Client, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redisClient,
		es:        es,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult represents an individual check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health returns the overall health status
func (c *Checker) Health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now(),
	}

	status.Checks["database"] = c.check(func() error {
		if c.db == nil {
			return errNotConfigured
		}
		return c.db.PingContext(reqCtx)
	})

	status.Checks["elasticsearch"] = c.check(func() error {
		if c.es == nil {
			return errNotConfigured
		}
		return c.es.Ping(reqCtx)
	})

	if c.redis != nil {
		status.Checks["redis"] = c.check(func() error {
			return c.redis.Ping(reqCtx).Err()
		})
	}

	httpStatus := http.StatusOK
	for _, result := range status.Checks {
		if result.Status == "unhealthy" {
			status.Status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	return ctx.JSON(httpStatus, status)
}

// Live returns the liveness status (is the service running)
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready returns the readiness status (is the service ready to sync)
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

var errNotConfigured = errors.New("not configured")

func (c *Checker) check(ping func() error) *CheckResult {
	start := time.Now()
	if err := ping(); err != nil {
		return &CheckResult{
			Status:  "unhealthy",
			Message: err.Error(),
		}
	}
	return &CheckResult{
		Status:  "healthy",
		Latency: time.Since(start).String(),
	}
}
