package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"
)

// Clinic identifiers become unquoted schema names, which Postgres folds to
// lower case, so they are normalized before matching.
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

var (
	ErrInvalidTenant = apperr.New(apperr.CategoryValidation, "invalid clinic identifier")
	errAcquire       = errors.New("acquire connection")
)

// NormalizeTenantID lower-cases and validates a clinic identifier.
func NormalizeTenantID(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if !tenantIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenant, raw)
	}
	return id, nil
}

// SchemaName returns the PostgreSQL schema holding a clinic's data.
func SchemaName(tenantID string) string {
	return "tenant_" + tenantID
}

// TenantMiddleware pins one pooled connection to the request and points its
// search_path at the clinic schema. Repositories pick the connection up
// through ConnFromContext, and TxManager begins transactions on it.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, err := NormalizeTenantID(tenantOf(c, defaultTenant))
			if err != nil {
				return err
			}

			ctx, release, err := WithTenant(c.Request().Context(), pool, tenantID)
			if err != nil {
				if errors.Is(err, errAcquire) {
					return apperr.Wrap(apperr.CategoryNetwork, err, "database unavailable")
				}
				return apperr.Wrap(apperr.CategoryDatabase, err, "select clinic schema")
			}
			defer release()

			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)
			return next(c)
		}
	}
}

// tenantOf picks the clinic of a request: the token claim, then the
// X-Tenant-ID header, then the tenant_id query parameter.
func tenantOf(c echo.Context, defaultTenant string) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	if tid := c.QueryParam("tenant_id"); tid != "" {
		return tid
	}
	return defaultTenant
}

// WithTenant pins a pooled connection to ctx with its search_path set to the
// clinic schema. Callers must invoke release when done.
func WithTenant(ctx context.Context, pool *pgxpool.Pool, tenantID string) (context.Context, func(), error) {
	tenantID, err := NormalizeTenantID(tenantID)
	if err != nil {
		return ctx, nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("%w: %v", errAcquire, err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(tenantID))); err != nil {
		conn.Release()
		return ctx, nil, fmt.Errorf("set search_path: %w", err)
	}
	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return ctx, conn.Release, nil
}

func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// CreateTenantSchema creates the schema of a clinic and migrates it. A nil
// source only creates the schema.
func CreateTenantSchema(ctx context.Context, pool *pgxpool.Pool, tenantID string, source fs.FS) error {
	tenantID, err := NormalizeTenantID(tenantID)
	if err != nil {
		return err
	}
	schema := SchemaName(tenantID)
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if source == nil {
		return nil
	}
	if _, err := NewMigrator(pool, source).Up(ctx, schema); err != nil {
		return fmt.Errorf("migrate %s: %w", schema, err)
	}
	return nil
}
