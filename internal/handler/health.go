package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/estimator"
)

const healthCheckTimeout = 2 * time.Second

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// EstimatorHealth reports the estimation service's health.
type EstimatorHealth interface {
	Health(ctx context.Context) estimator.Health
}

// SessionCounter reports open realtime sessions.
type SessionCounter interface {
	SessionCount() int
}

// HealthHandler serves liveness and dependency checks.
type HealthHandler struct {
	estimator EstimatorHealth
	database  Pinger
	redis     Pinger // nil when Redis is not configured
	sessions  SessionCounter
	started   time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(est EstimatorHealth, database, redis Pinger, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{
		estimator: est,
		database:  database,
		redis:     redis,
		sessions:  sessions,
		started:   time.Now(),
	}
}

// DependencyStatus is the health of one dependency.
type DependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the HTTP response for the dependency check.
type HealthResponse struct {
	OK        bool             `json:"ok"`
	Uptime    float64          `json:"uptime"`
	Time      string           `json:"time"`
	Estimator estimator.Health `json:"estimator"`
	Redis     DependencyStatus `json:"redis"`
	Database  DependencyStatus `json:"database"`
	Sockets   int              `json:"sockets"`
}

// Live handles GET /health
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Check handles GET /api/health. The service stays "ok" while optional
// dependencies are down; only the database is required.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Uptime:    time.Since(h.started).Seconds(),
		Time:      time.Now().UTC().Format(time.RFC3339),
		Estimator: h.estimator.Health(ctx),
		Redis:     ping(ctx, h.redis),
		Database:  ping(ctx, h.database),
	}
	if h.sessions != nil {
		resp.Sockets = h.sessions.SessionCount()
	}
	resp.OK = resp.Database.Status == "ok"

	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func ping(ctx context.Context, p Pinger) DependencyStatus {
	if p == nil {
		return DependencyStatus{Status: "disabled"}
	}
	if err := p.Ping(ctx); err != nil {
		return DependencyStatus{Status: "unavailable", Error: err.Error()}
	}
	return DependencyStatus{Status: "ok"}
}
