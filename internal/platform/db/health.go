package db

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

const healthTimeout = 5 * time.Second

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// HealthReport is the body of a successful /health/db response.
type HealthReport struct {
	Status string        `json:"status"`
	Schema SchemaVersion `json:"schema"`
	Pool   PoolStats     `json:"pool"`
}

// HealthSource is what the database health check reads.
type HealthSource interface {
	Ping(ctx context.Context) error
	Stats() PoolStats
	Version(ctx context.Context, schema string) (SchemaVersion, error)
}

// PoolHealth answers the health check from the live pool and the shipped
// migrations.
type PoolHealth struct {
	pool     *pgxpool.Pool
	migrator *Migrator
}

func NewPoolHealth(pool *pgxpool.Pool, migrations fs.FS) *PoolHealth {
	return &PoolHealth{pool: pool, migrator: NewMigrator(pool, migrations)}
}

func (h *PoolHealth) Ping(ctx context.Context) error { return h.pool.Ping(ctx) }

func (h *PoolHealth) Stats() PoolStats {
	s := h.pool.Stat()
	return PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
	}
}

func (h *PoolHealth) Version(ctx context.Context, schema string) (SchemaVersion, error) {
	return h.migrator.Version(ctx, schema)
}

// HealthHandler pings the database and reports the migration level of the
// default clinic's schema. Failures go to the error handler, so clients get
// the usual error envelope and never the driver's message.
func HealthHandler(src HealthSource, tenantID string) echo.HandlerFunc {
	schema := SchemaName(tenantID)
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		if err := src.Ping(ctx); err != nil {
			return apperr.Wrap(apperr.CategoryNetwork, err, "database unreachable")
		}
		v, err := src.Version(ctx, schema)
		if err != nil {
			return apperr.Wrap(apperr.CategoryDatabase, err, "read schema version of "+schema)
		}

		status := "healthy"
		if !v.Current() {
			status = "migrations_pending"
		}
		return c.JSON(http.StatusOK, HealthReport{Status: status, Schema: v, Pool: src.Stats()})
	}
}
