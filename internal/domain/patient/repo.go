package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the patient. A code already in use yields
	// ErrDuplicateCode.
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByCode(ctx context.Context, code string) (*Patient, error)
	// LockByID loads the patient and locks its row until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Search returns up to limit patients matching term on field, newest
	// first. It filters the way Matches does.
	Search(ctx context.Context, term string, field SearchField, limit int) ([]*Patient, error)
	// ListSummaries pages patients, newest first, with their procedure totals.
	ListSummaries(ctx context.Context, limit, offset int) ([]*Summary, int, error)
	// HasProcedures reports whether any procedure refers to the patient by
	// id or by code.
	HasProcedures(ctx context.Context, p *Patient) (bool, error)
	History(ctx context.Context, code string) ([]HistoryEntry, error)
	AddEditLog(ctx context.Context, l *EditLog) error
	EditLogs(ctx context.Context, patientID uuid.UUID) ([]*EditLog, error)
	// CountCreated returns the total and the patients created at or after
	// each of the two instants.
	CountCreated(ctx context.Context, since1, since2 time.Time) (total, n1, n2 int, err error)
}
