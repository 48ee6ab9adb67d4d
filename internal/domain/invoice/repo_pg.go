package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
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

const invoiceCols = `id, number, supplier, issued_at, total, created_by, created_by_name, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Supplier, &inv.IssuedAt, &inv.Total,
		&inv.CreatedBy, &inv.CreatedByName, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice (id, number, supplier, issued_at, total, created_by, created_by_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		inv.ID, inv.Number, inv.Supplier, inv.IssuedAt, inv.Total, inv.CreatedBy, inv.CreatedByName,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateInvoice, inv.Number)
	}
	return err
}

func (r *repoPG) AddLine(ctx context.Context, invoiceID uuid.UUID, l *Line) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_item (id, invoice_id, item_id, product_code, product_name, batch,
			quantity, expiration_date, unit_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		l.ID, invoiceID, l.ItemID, l.ProductCode, l.ProductName, l.Batch,
		l.Quantity, l.ExpirationDate, l.UnitPrice)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, item_id, product_code, product_name, batch, quantity, expiration_date, unit_price
		FROM invoice_item WHERE invoice_id = $1 ORDER BY product_code, batch`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ItemID, &l.ProductCode, &l.ProductName, &l.Batch,
			&l.Quantity, &l.ExpirationDate, &l.UnitPrice); err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["number"]; ok {
		where += fmt.Sprintf(` AND number = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["supplier"]; ok {
		where += fmt.Sprintf(` AND supplier ILIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + invoiceCols + ` FROM invoice` + where +
		fmt.Sprintf(` ORDER BY issued_at DESC, created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}
