package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Pinger is anything the readiness check can probe (database, redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler pings the pool plus any extra dependencies and reports pool stats.
func HealthHandler(pool *pgxpool.Pool, extra map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		checks := map[string]Pinger{"database": pool}
		for name, p := range extra {
			checks[name] = p
		}
		report, ok := RunChecks(ctx, checks)

		body := map[string]interface{}{"checks": report, "pool": GetPoolStats(pool)}
		if !ok {
			body["status"] = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}

// RunChecks pings every dependency and returns "ok" or the error text per name.
func RunChecks(ctx context.Context, checks map[string]Pinger) (map[string]string, bool) {
	report := make(map[string]string, len(checks))
	healthy := true
	for name, p := range checks {
		if err := p.Ping(ctx); err != nil {
			report[name] = err.Error()
			healthy = false
			continue
		}
		report[name] = "ok"
	}
	return report, healthy
}
