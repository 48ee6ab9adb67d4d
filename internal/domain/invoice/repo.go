package invoice

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the invoice header. A number already in use yields
	// ErrDuplicateInvoice.
	Create(ctx context.Context, inv *Invoice) error
	AddLine(ctx context.Context, invoiceID uuid.UUID, l *Line) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error)
}
