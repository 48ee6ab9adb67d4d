package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) ConsumptionRows(ctx context.Context, f Filter) ([]ConsumptionRow, error) {
	where := ` WHERE pr.status = ANY($1)`
	args := []interface{}{ConsumedStatuses}
	idx := 2

	if !f.From.IsZero() {
		where += fmt.Sprintf(` AND pr.scheduled_for >= $%d`, idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		where += fmt.Sprintf(` AND pr.scheduled_for <= $%d`, idx)
		args = append(args, f.To)
		idx++
	}
	if f.PatientCode != "" {
		where += fmt.Sprintf(` AND pr.patient_code = $%d`, idx)
		args = append(args, f.PatientCode)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT pr.id, pr.patient_code, pr.patient_name, pr.scheduled_for, pr.status,
			i.product_code, i.product_name, i.quantity, i.unit_price
		FROM procedure pr
		JOIN procedure_item i ON i.procedure_id = pr.id`+where+`
		ORDER BY pr.scheduled_for DESC, pr.created_at DESC, i.product_code`, args...)
	if err != nil {
		return nil, fmt.Errorf("query consumption: %w", err)
	}
	defer rows.Close()

	var out []ConsumptionRow
	for rows.Next() {
		var c ConsumptionRow
		if err := rows.Scan(&c.ProcedureID, &c.PatientCode, &c.PatientName, &c.ScheduledFor, &c.Status,
			&c.ProductCode, &c.ProductName, &c.Quantity, &c.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) StockRows(ctx context.Context) ([]StockRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT product_code, product_name, quantity_on_hand, unit_price
		FROM inventory_item
		WHERE active AND quantity_on_hand > 0
		ORDER BY product_code, expiration_date, id`)
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	defer rows.Close()

	var out []StockRow
	for rows.Next() {
		var s StockRow
		if err := rows.Scan(&s.ProductCode, &s.ProductName, &s.QuantityOnHand, &s.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
