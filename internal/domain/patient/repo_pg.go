package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

const patientCols = `id, code, name, phone, email, birth_date, cpf, notes,
	created_by, created_by_name, created_at, updated_at`

func scanPatient(row pgx.Row, extra ...any) (*Patient, error) {
	var (
		p   Patient
		cpf *string
	)
	dest := append([]any{&p.ID, &p.Code, &p.Name, &p.Phone, &p.Email, &p.BirthDate, &cpf, &p.Notes,
		&p.CreatedBy, &p.CreatedByName, &p.CreatedAt, &p.UpdatedAt}, extra...)
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cpf != nil {
		p.CPF = *cpf
	}
	return &p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, code, name, phone, email, birth_date, cpf, notes, created_by, created_by_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.Code, p.Name, p.Phone, p.Email, p.BirthDate, nullable(p.CPF), p.Notes,
		p.CreatedBy, p.CreatedByName,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, p.Code)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE code = $1`, code))
}

func (r *repoPG) LockByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET name = $2, phone = $3, email = $4, birth_date = $5, cpf = $6, notes = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Phone, p.Email, p.BirthDate, nullable(p.CPF), p.Notes,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// likeEscaper keeps user input literal inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func contains(s string) string { return "%" + likeEscaper.Replace(s) + "%" }

func (r *repoPG) Search(ctx context.Context, term string, field SearchField, limit int) ([]*Patient, error) {
	t := strings.ToLower(strings.TrimSpace(term))
	num := digits(t)

	var (
		conds []string
		args  []any
	)
	placeholder := func(v string) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if field == FieldAll || field == FieldName || field == FieldCode {
		text := placeholder(contains(t))
		if field != FieldCode {
			conds = append(conds, `lower(name) LIKE `+text)
		}
		if field != FieldName {
			conds = append(conds, `lower(code) LIKE `+text)
		}
	}
	if num != "" && (field == FieldAll || field == FieldPhone) {
		n := placeholder(contains(num))
		conds = append(conds, `regexp_replace(phone, '\D', '', 'g') LIKE `+n)
		if field == FieldAll {
			conds = append(conds, `cpf LIKE `+n)
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}
	args = append(args, limit)

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient
		WHERE `+strings.Join(conds, " OR ")+
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// procedureTotals aggregates the procedures of patient p, joined by id or by
// the code used before the patient was registered.
const procedureTotals = `
	LEFT JOIN LATERAL (
		SELECT COUNT(*) AS procedures,
			MAX(pr.scheduled_for) AS last_procedure,
			COALESCE(SUM(v.value) FILTER (WHERE pr.status IN ('aprovada', 'concluida')), 0) AS spent
		FROM procedure pr
		CROSS JOIN LATERAL (
			SELECT COALESCE(SUM(i.quantity * i.unit_price), 0) AS value
			FROM procedure_item i WHERE i.procedure_id = pr.id
		) v
		WHERE pr.patient_id = p.id OR pr.patient_code = p.code
	) t ON TRUE`

func (r *repoPG) ListSummaries(ctx context.Context, limit, offset int) ([]*Summary, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}

	cols := strings.ReplaceAll(patientCols, "\n\t", " ")
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+prefixed("p.", cols)+`, t.procedures, t.last_procedure, t.spent
		FROM patient p`+procedureTotals+`
		ORDER BY p.created_at DESC, p.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var s Summary
		p, err := scanPatient(rows, &s.Procedures, &s.LastProcedure, &s.Spent)
		if err != nil {
			return nil, 0, err
		}
		s.Patient = *p
		out = append(out, &s)
	}
	return out, total, rows.Err()
}

// prefixed qualifies every column of a comma separated list.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

func (r *repoPG) HasProcedures(ctx context.Context, p *Patient) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM procedure WHERE patient_id = $1 OR patient_code = $2)`,
		p.ID, p.Code).Scan(&ok)
	return ok, err
}

func (r *repoPG) History(ctx context.Context, code string) ([]HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT pr.id, pr.scheduled_for, pr.status,
			COALESCE(SUM(i.quantity), 0),
			COALESCE(SUM(i.quantity * i.unit_price), 0)
		FROM procedure pr
		LEFT JOIN procedure_item i ON i.procedure_id = pr.id
		WHERE pr.patient_code = $1
		GROUP BY pr.id
		ORDER BY pr.scheduled_for DESC, pr.created_at DESC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ProcedureID, &h.ScheduledFor, &h.Status, &h.Units, &h.Value); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *repoPG) AddEditLog(ctx context.Context, l *EditLog) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_edit_log (id, patient_id, patient_code, changes, edited_by, edited_by_name)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING edited_at`,
		l.ID, l.PatientID, l.PatientCode, l.Changes, l.EditedBy, l.EditedByName,
	).Scan(&l.EditedAt)
}

func (r *repoPG) EditLogs(ctx context.Context, patientID uuid.UUID) ([]*EditLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, patient_code, changes, edited_by, edited_by_name, edited_at
		FROM patient_edit_log WHERE patient_id = $1
		ORDER BY edited_at DESC, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*EditLog
	for rows.Next() {
		var l EditLog
		if err := rows.Scan(&l.ID, &l.PatientID, &l.PatientCode, &l.Changes,
			&l.EditedBy, &l.EditedByName, &l.EditedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (r *repoPG) CountCreated(ctx context.Context, since1, since2 time.Time) (total, n1, n2 int, err error) {
	err = r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $1),
			COUNT(*) FILTER (WHERE created_at >= $2)
		FROM patient`, since1, since2).Scan(&total, &n1, &n2)
	return total, n1, n2, err
}
