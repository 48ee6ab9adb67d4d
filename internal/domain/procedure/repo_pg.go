package procedure

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

const procCols = `id, patient_code, patient_name, scheduled_for, status, notes,
	created_by, created_by_name, created_at, updated_at, patient_id`

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var p Procedure
	err := row.Scan(&p.ID, &p.PatientCode, &p.PatientName, &p.ScheduledFor, &p.Status, &p.Notes,
		&p.CreatedBy, &p.CreatedByName, &p.CreatedAt, &p.UpdatedAt, &p.PatientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Procedure) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO procedure (id, patient_code, patient_name, scheduled_for, status, notes,
			created_by, created_by_name, patient_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientCode, p.PatientName, p.ScheduledFor, p.Status, p.Notes,
		p.CreatedBy, p.CreatedByName, p.PatientID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert procedure: %w", err)
	}

	for i := range p.Items {
		it := &p.Items[i]
		it.ID = uuid.New()
		_, err := q.Exec(ctx, `
			INSERT INTO procedure_item (id, procedure_id, lot_id, product_code, product_name,
				batch, expiration_date, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, p.ID, it.LotID, it.ProductCode, it.ProductName,
			it.Batch, it.ExpirationDate, it.Quantity, it.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert procedure item: %w", err)
		}
	}

	for _, h := range p.History {
		if err := r.insertHistory(ctx, q, p.ID, h); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) insertHistory(ctx context.Context, q queryable, id uuid.UUID, h StatusChange) error {
	_, err := q.Exec(ctx, `
		INSERT INTO procedure_status_history (id, procedure_id, status, changed_by, changed_by_name, note, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.New(), id, h.Status, h.ChangedBy, h.ChangedByName, h.Note, h.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return r.load(ctx, `SELECT `+procCols+` FROM procedure WHERE id = $1`, id)
}

func (r *repoPG) LockByID(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return r.load(ctx, `SELECT `+procCols+` FROM procedure WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) load(ctx context.Context, query string, id uuid.UUID) (*Procedure, error) {
	p, err := scanProcedure(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if p.Items, err = r.items(ctx, id); err != nil {
		return nil, err
	}
	if p.History, err = r.history(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) items(ctx context.Context, id uuid.UUID) ([]Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, lot_id, product_code, product_name, batch, expiration_date, quantity, unit_price
		FROM procedure_item WHERE procedure_id = $1
		ORDER BY product_code, expiration_date, lot_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.LotID, &it.ProductCode, &it.ProductName, &it.Batch,
			&it.ExpirationDate, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repoPG) history(ctx context.Context, id uuid.UUID) ([]StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, changed_by, changed_by_name, changed_at, note
		FROM procedure_status_history WHERE procedure_id = $1
		ORDER BY changed_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusChange
	for rows.Next() {
		var h StatusChange
		if err := rows.Scan(&h.Status, &h.ChangedBy, &h.ChangedByName, &h.ChangedAt, &h.Note); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) error {
	q := r.conn(ctx)
	tag, err := q.Exec(ctx, `UPDATE procedure SET status = $2, updated_at = NOW() WHERE id = $1`, id, change.Status)
	if err != nil {
		return fmt.Errorf("update procedure status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.insertHistory(ctx, q, id, change)
}

// Search lists procedures without their items; Get loads a full procedure.
func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Procedure, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["status"]; ok {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient_code"]; ok {
		where += fmt.Sprintf(` AND patient_code = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["from"]; ok {
		where += fmt.Sprintf(` AND scheduled_for >= $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["to"]; ok {
		where += fmt.Sprintf(` AND scheduled_for <= $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM procedure`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + procCols + ` FROM procedure` + where +
		fmt.Sprintf(` ORDER BY scheduled_for DESC, created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM procedure GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}
