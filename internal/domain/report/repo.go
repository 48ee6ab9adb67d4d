package report

import "context"

type Repository interface {
	// ConsumptionRows returns the allocations of procedures in
	// ConsumedStatuses matching f, newest procedure first.
	ConsumptionRows(ctx context.Context, f Filter) ([]ConsumptionRow, error)
	// StockRows returns every active lot with units on hand.
	StockRows(ctx context.Context) ([]StockRow, error)
}
