package inventory

import (
	"context"

	"github.com/google/uuid"
)

type ItemRepository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, it *Item) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Item, int, error)
	// ListAllocatable returns active lots with unreserved units. An empty
	// productCodes lists every product.
	ListAllocatable(ctx context.Context, productCodes []string) ([]*Item, error)
	// ListByProductCodes returns every active lot of the products, including
	// lots with no unreserved units left.
	ListByProductCodes(ctx context.Context, productCodes []string) ([]*Item, error)
	// ListInStock returns active lots with units on hand.
	ListInStock(ctx context.Context) ([]*Item, error)
	// LockByProductCodes and LockByIDs take row locks that are held until the
	// surrounding transaction ends.
	LockByProductCodes(ctx context.Context, productCodes []string) ([]*Item, error)
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*Item, error)
}

type ActivityRepository interface {
	Create(ctx context.Context, a *Activity) error
	ListRecent(ctx context.Context, limit int) ([]*Activity, error)
	ListByProcedure(ctx context.Context, procedureID uuid.UUID) ([]*Activity, error)
}
