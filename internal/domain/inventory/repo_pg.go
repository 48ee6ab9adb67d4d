package inventory

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

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// ---- Item Repo ----

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) queryable {
	return connFor(ctx, r.pool)
}

const itemCols = `id, product_code, product_name, batch, initial_quantity,
	quantity_on_hand, quantity_reserved, expiration_date, unit_price,
	invoice_id, invoice_number, active, created_at, updated_at`

func (r *itemRepoPG) scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.ProductCode, &it.ProductName, &it.Batch, &it.InitialQuantity,
		&it.QuantityOnHand, &it.QuantityReserved, &it.ExpirationDate, &it.UnitPrice,
		&it.InvoiceID, &it.InvoiceNumber, &it.Active, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *itemRepoPG) Create(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_item (id, product_code, product_name, batch, initial_quantity,
			quantity_on_hand, quantity_reserved, expiration_date, unit_price,
			invoice_id, invoice_number, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		it.ID, it.ProductCode, it.ProductName, it.Batch, it.InitialQuantity,
		it.QuantityOnHand, it.QuantityReserved, it.ExpirationDate, it.UnitPrice,
		it.InvoiceID, it.InvoiceNumber, it.Active,
	).Scan(&it.CreatedAt, &it.UpdatedAt)
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM inventory_item WHERE id = $1`, id))
}

func (r *itemRepoPG) Update(ctx context.Context, it *Item) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE inventory_item SET product_name=$2, batch=$3, quantity_on_hand=$4,
			quantity_reserved=$5, expiration_date=$6, unit_price=$7, active=$8,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		it.ID, it.ProductName, it.Batch, it.QuantityOnHand,
		it.QuantityReserved, it.ExpirationDate, it.UnitPrice, it.Active,
	).Scan(&it.UpdatedAt)
}

func (r *itemRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Item, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["product_code"]; ok {
		where += fmt.Sprintf(` AND product_code = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["batch"]; ok {
		where += fmt.Sprintf(` AND batch = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["active"]; ok {
		where += fmt.Sprintf(` AND active = $%d`, idx)
		args = append(args, p == "true")
		idx++
	}
	if params["available"] == "true" {
		where += ` AND active AND quantity_on_hand - quantity_reserved > 0`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inventory_item`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + itemCols + ` FROM inventory_item` + where +
		fmt.Sprintf(` ORDER BY product_code, expiration_date, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.queryItems(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *itemRepoPG) ListAllocatable(ctx context.Context, productCodes []string) ([]*Item, error) {
	query := `SELECT ` + itemCols + ` FROM inventory_item
		WHERE active AND quantity_on_hand - quantity_reserved > 0`
	if len(productCodes) == 0 {
		return r.queryItems(ctx, query+` ORDER BY expiration_date, id`)
	}
	return r.queryItems(ctx, query+` AND product_code = ANY($1) ORDER BY expiration_date, id`, productCodes)
}

func (r *itemRepoPG) ListByProductCodes(ctx context.Context, productCodes []string) ([]*Item, error) {
	return r.queryItems(ctx, `SELECT `+itemCols+` FROM inventory_item
		WHERE active AND product_code = ANY($1) ORDER BY expiration_date, id`, productCodes)
}

func (r *itemRepoPG) ListInStock(ctx context.Context) ([]*Item, error) {
	return r.queryItems(ctx, `SELECT `+itemCols+` FROM inventory_item
		WHERE active AND quantity_on_hand > 0 ORDER BY expiration_date, id`)
}

func (r *itemRepoPG) LockByProductCodes(ctx context.Context, productCodes []string) ([]*Item, error) {
	return r.queryItems(ctx, `SELECT `+itemCols+` FROM inventory_item
		WHERE active AND product_code = ANY($1)
		ORDER BY id FOR UPDATE`, productCodes)
}

func (r *itemRepoPG) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*Item, error) {
	return r.queryItems(ctx, `SELECT `+itemCols+` FROM inventory_item
		WHERE id = ANY($1)
		ORDER BY id FOR UPDATE`, ids)
}

func (r *itemRepoPG) queryItems(ctx context.Context, query string, args ...interface{}) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ---- Activity Repo ----

type activityRepoPG struct{ pool *pgxpool.Pool }

func NewActivityRepoPG(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepoPG{pool: pool}
}

func (r *activityRepoPG) conn(ctx context.Context) queryable {
	return connFor(ctx, r.pool)
}

const activityCols = `id, item_id, product_code, product_name, type, quantity,
	quantity_before, quantity_after, description, procedure_id, invoice_id,
	user_id, user_name, created_at`

func (r *activityRepoPG) scanActivity(row pgx.Row) (*Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.ItemID, &a.ProductCode, &a.ProductName, &a.Type, &a.Quantity,
		&a.QuantityBefore, &a.QuantityAfter, &a.Description, &a.ProcedureID, &a.InvoiceID,
		&a.UserID, &a.UserName, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *activityRepoPG) Create(ctx context.Context, a *Activity) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_activity (id, item_id, product_code, product_name, type, quantity,
			quantity_before, quantity_after, description, procedure_id, invoice_id,
			user_id, user_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at`,
		a.ID, a.ItemID, a.ProductCode, a.ProductName, a.Type, a.Quantity,
		a.QuantityBefore, a.QuantityAfter, a.Description, a.ProcedureID, a.InvoiceID,
		a.UserID, a.UserName,
	).Scan(&a.CreatedAt)
}

func (r *activityRepoPG) ListRecent(ctx context.Context, limit int) ([]*Activity, error) {
	return r.queryActivities(ctx, `SELECT `+activityCols+` FROM inventory_activity
		ORDER BY created_at DESC, id LIMIT $1`, limit)
}

func (r *activityRepoPG) ListByProcedure(ctx context.Context, procedureID uuid.UUID) ([]*Activity, error) {
	return r.queryActivities(ctx, `SELECT `+activityCols+` FROM inventory_activity
		WHERE procedure_id = $1 ORDER BY created_at, id`, procedureID)
}

func (r *activityRepoPG) queryActivities(ctx context.Context, query string, args ...interface{}) ([]*Activity, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Activity
	for rows.Next() {
		a, err := r.scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
