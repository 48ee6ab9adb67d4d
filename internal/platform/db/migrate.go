package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one numbered SQL file of a clinic schema.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// SchemaVersion compares what a schema has applied with what the binary
// ships.
type SchemaVersion struct {
	Schema  string `json:"schema"`
	Applied int    `json:"applied"`
	Latest  int    `json:"latest"`
	Pending int    `json:"pending"`
}

func (v SchemaVersion) Current() bool { return v.Pending == 0 }

// Migrator applies the numbered SQL files of a filesystem to a clinic schema.
// The server passes the embedded migrations package; tests pass an
// fstest.MapFS.
type Migrator struct {
	pool   *pgxpool.Pool
	source fs.FS
}

func NewMigrator(pool *pgxpool.Pool, source fs.FS) *Migrator {
	return &Migrator{pool: pool, source: source}
}

// parseMigrationName takes the version from the numeric prefix of a file
// such as "001_inventory.sql".
func parseMigrationName(name string) (int, bool) {
	if !strings.HasSuffix(name, ".sql") {
		return 0, false
	}
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// LoadMigrations reads the .sql files at the root of the source in version
// order. Files without a numeric prefix are skipped; two files with the same
// version are an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := parseMigrationName(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, entry.Name(), version)
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(m.source, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: entry.Name(), SQL: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func trackingTable(schema string) string {
	return pgx.Identifier{schema, "_migrations"}.Sanitize()
}

func (m *Migrator) ensureTrackingTable(ctx context.Context, schema string) error {
	_, err := m.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+trackingTable(schema)+` (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("create migration table in %s: %w", schema, err)
	}
	return nil
}

// applied returns when each recorded version of the schema was applied.
func (m *Migrator) applied(ctx context.Context, schema string) (map[int]time.Time, error) {
	rows, err := m.pool.Query(ctx, `SELECT version, applied_at FROM `+trackingTable(schema))
	if err != nil {
		return nil, fmt.Errorf("read applied migrations of %s: %w", schema, err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Up applies every pending migration to schema and returns how many ran.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	if err := m.ensureTrackingTable(ctx, schema); err != nil {
		return 0, err
	}
	migs, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migs {
		ran, err := m.apply(ctx, schema, mig)
		if err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if ran {
			count++
		}
	}
	return count, nil
}

// apply runs one migration in its own transaction. A transaction-scoped
// advisory lock on the schema serializes servers migrating the same clinic,
// and the version is re-checked under it.
func (m *Migrator) apply(ctx context.Context, schema string, mig Migration) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "migrate:"+schema); err != nil {
		return false, fmt.Errorf("lock schema: %w", err)
	}
	var done bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+trackingTable(schema)+` WHERE version = $1)`,
		mig.Version).Scan(&done); err != nil {
		return false, fmt.Errorf("check version: %w", err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
		return false, fmt.Errorf("set search_path: %w", err)
	}
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return false, fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO `+trackingTable(schema)+` (version, name) VALUES ($1, $2)`,
		mig.Version, mig.Name); err != nil {
		return false, fmt.Errorf("record: %w", err)
	}
	return true, tx.Commit(ctx)
}

// Status lists every shipped migration with whether schema has applied it.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	if err := m.ensureTrackingTable(ctx, schema); err != nil {
		return nil, err
	}
	migs, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx, schema)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migs))
	for _, mig := range migs {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			st.Applied = true
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

// Version reports the schema's migration level without creating anything, so
// it is safe to call from a health check.
func (m *Migrator) Version(ctx context.Context, schema string) (SchemaVersion, error) {
	migs, err := m.LoadMigrations()
	if err != nil {
		return SchemaVersion{}, err
	}
	applied, err := m.applied(ctx, schema)
	if err != nil {
		return SchemaVersion{}, err
	}
	return compareVersions(schema, migs, applied), nil
}

func compareVersions(schema string, migs []Migration, applied map[int]time.Time) SchemaVersion {
	v := SchemaVersion{Schema: schema}
	for version := range applied {
		if version > v.Applied {
			v.Applied = version
		}
	}
	for _, mig := range migs {
		if mig.Version > v.Latest {
			v.Latest = mig.Version
		}
		if _, ok := applied[mig.Version]; !ok {
			v.Pending++
		}
	}
	return v
}
