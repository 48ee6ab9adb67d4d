package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/catalog"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/invoice"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/patient"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/procedure"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/report"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	"github.com/GScandelari/curva-mestra-system-sub005/migrations"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
// It stays nil when neither TEST_DATABASE_URL nor Docker is available.
var globalDB *testDB

var testActor = auth.Actor{ID: "integration", Name: "Integration Suite"}

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration database unavailable, tests will be skipped: %v\n", err)
		os.Exit(m.Run())
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupPostgres connects to TEST_DATABASE_URL when set and otherwise starts a
// throwaway Postgres 16 container.
func setupPostgres(ctx context.Context) (*testDB, func(), error) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		var err error
		connStr, cleanup, err = startPostgresContainer(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, connStr, 10, 2)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	return &testDB{Pool: pool, ConnStr: connStr}, func() {
		pool.Close()
		cleanup()
	}, nil
}

func requireDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if globalDB == nil {
		t.Skip("no integration database")
	}
	return globalDB.Pool
}

func uniqueTenantID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
}

var (
	sharedOnce sync.Once
	sharedErr  error
)

// newClinic creates and migrates a fresh clinic schema, dropped when the test
// ends. The shared schema is migrated once per run.
func newClinic(t *testing.T, prefix string) string {
	t.Helper()
	pool := requireDB(t)
	ctx := context.Background()
	tenantID := uniqueTenantID(prefix)

	sharedOnce.Do(func() {
		_, sharedErr = db.NewMigrator(pool, migrations.GlobalFS).Up(ctx, migrations.GlobalSchema)
	})
	if sharedErr != nil {
		t.Fatalf("migrate shared schema: %v", sharedErr)
	}

	if err := db.CreateTenantSchema(ctx, pool, tenantID, migrations.FS); err != nil {
		t.Fatalf("create tenant schema %s: %v", tenantID, err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", db.SchemaName(tenantID))); err != nil {
			t.Logf("warning: failed to drop schema for %s: %v", tenantID, err)
		}
	})
	return tenantID
}

// clinicCtx pins a connection of the clinic to the returned context, the way
// TenantMiddleware does for a request.
func clinicCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, release, err := db.WithTenant(context.Background(), requireDB(t), tenantID)
	if err != nil {
		t.Fatalf("with tenant %s: %v", tenantID, err)
	}
	t.Cleanup(release)
	return ctx
}

// services wires the domain services against the shared pool. Procedures
// accept any patient code; RegistryProcedures require registered ones.
type services struct {
	Inventory          *inventory.Service
	Procedures         *procedure.Service
	RegistryProcedures *procedure.Service
	Invoices           *invoice.Service
	Patients           *patient.Service
	Reports            *report.Service
	Catalog            *catalog.Service
}

func newServices(t *testing.T) *services {
	t.Helper()
	pool := requireDB(t)
	tx := db.NewTxManager(pool)
	inv := inventory.NewService(inventory.NewItemRepoPG(pool), inventory.NewActivityRepoPG(pool), tx,
		inventory.Config{LowStockThreshold: 10, ExpiryWarningDays: 30})
	patients := patient.NewService(patient.NewRepoPG(pool), tx)
	registry := procedure.NewService(procedure.NewRepoPG(pool), inv, tx)
	registry.SetPatients(patients)
	reports := report.NewService(report.NewRepoPG(pool))
	reports.SetPatients(patients)
	return &services{
		Inventory:          inv,
		Procedures:         procedure.NewService(procedure.NewRepoPG(pool), inv, tx),
		RegistryProcedures: registry,
		Invoices:           invoice.NewService(invoice.NewRepoPG(pool), inv, tx),
		Patients:           patients,
		Reports:            reports,
		Catalog:            catalog.NewService(catalog.NewRepoPG(pool)),
	}
}

func receiveLot(t *testing.T, ctx context.Context, svc *services, code, batch string, qty int, expires string) *inventory.Item {
	t.Helper()
	exp, err := inventory.ParseDate(expires)
	if err != nil {
		t.Fatalf("parse %q: %v", expires, err)
	}
	it := &inventory.Item{
		ProductCode:    code,
		ProductName:    "Product " + code,
		Batch:          batch,
		QuantityOnHand: qty,
		ExpirationDate: exp,
		UnitPrice:      decimal.RequireFromString("12.50"),
	}
	if err := svc.Inventory.ReceiveItem(ctx, it, testActor); err != nil {
		t.Fatalf("receive %s/%s: %v", code, batch, err)
	}
	return it
}

func tomorrow() time.Time { return time.Now().UTC().AddDate(0, 0, 1) }
