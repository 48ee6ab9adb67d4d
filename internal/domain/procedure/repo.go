package procedure

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the procedure with its items and history. p.ID must be
	// set by the caller.
	Create(ctx context.Context, p *Procedure) error
	GetByID(ctx context.Context, id uuid.UUID) (*Procedure, error)
	// LockByID loads the procedure and locks its row until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*Procedure, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Procedure, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
