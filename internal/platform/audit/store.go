package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/middleware"
)

// Record is a stored audit entry.
type Record struct {
	ID int64 `json:"id"`
	middleware.AuditEntry
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	UserID     string
	Resource   string
	ResourceID string
	Action     string
	From       *time.Time
	To         *time.Time
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store writes audit entries to the audit_log table of the clinic schema.
// Writes go through the tenant connection pinned to the request so each
// clinic keeps its own trail.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

// RecordAccess implements middleware.AuditRecorder.
func (s *Store) RecordAccess(ctx context.Context, e middleware.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.UserRoles == nil {
		e.UserRoles = []string{}
	}
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO audit_log (
			user_id, user_name, user_roles, tenant_id, action, resource, resource_id,
			method, path, status_code, request_id, ip_address, user_agent,
			payload_digest, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.UserID, e.UserName, e.UserRoles, e.TenantID, e.Action, e.Resource, e.ResourceID,
		e.Method, e.Path, e.StatusCode, e.RequestID, e.IPAddress, e.UserAgent,
		e.PayloadDigest, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// List returns entries newest first together with the unpaged total.
func (s *Store) List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	where, args := f.where()

	var total int
	if err := s.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count entries: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, user_name, user_roles, tenant_id, action, resource, resource_id,
			method, path, status_code, request_id, ip_address, user_agent,
			payload_digest, recorded_at
		FROM audit_log%s
		ORDER BY recorded_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.UserName, &r.UserRoles, &r.TenantID,
			&r.Action, &r.Resource, &r.ResourceID, &r.Method, &r.Path, &r.StatusCode,
			&r.RequestID, &r.IPAddress, &r.UserAgent, &r.PayloadDigest, &r.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("audit: scan entry: %w", err)
		}
		out = append(out, &r)
	}
	return out, total, rows.Err()
}

func (f Filter) where() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Resource != "" {
		add("resource = $%d", f.Resource)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.From != nil {
		add("recorded_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("recorded_at < $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
