package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The catalog lives in the shared public schema, so every query names it
// and runs on the pool rather than on a clinic connection.
const table = `public.master_product`

const productCols = `id, code, name, active, created_at, updated_at`

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Product) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO `+table+` (id, code, name, active)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		p.ID, p.Code, p.Name, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, p.Code)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productCols+` FROM `+table+` WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productCols+` FROM `+table+` WHERE code = $1`, code))
}

func (r *repoPG) Update(ctx context.Context, p *Product) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE `+table+` SET name = $2, active = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, p.ID, p.Name, p.Active).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Product, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.ActiveOnly {
		where += ` AND active`
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += fmt.Sprintf(` AND (lower(code) LIKE $%d OR lower(name) LIKE $%d)`, idx, idx)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(s))+"%")
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productCols + ` FROM ` + table + where +
		fmt.Sprintf(` ORDER BY lower(name), code LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
