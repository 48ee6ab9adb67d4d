package inventory

import (
	"fmt"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

var (
	ErrInvalidQuantity   = apperr.New(apperr.CategoryValidation, "requested quantity must be a positive integer")
	ErrInsufficientStock = apperr.New(apperr.CategoryInsufficientStock, "insufficient stock")
	ErrUnknownProduct    = apperr.New(apperr.CategoryInsufficientStock, "unknown product")

	ErrItemNotFound    = apperr.New(apperr.CategoryNotFound, "inventory item not found")
	ErrBelowReserved   = apperr.New(apperr.CategoryBusiness, "quantity on hand cannot drop below the reserved quantity")
	ErrLotReserved     = apperr.New(apperr.CategoryBusiness, "lot has reserved units")
	ErrInactiveLot     = apperr.New(apperr.CategoryBusiness, "lot is inactive")
	ErrInvalidMovement = apperr.New(apperr.CategoryValidation, "invalid stock movement")
	ErrNotInCatalog    = apperr.New(apperr.CategoryValidation, "product is not active in the catalog")
)

// InsufficientStockError reports the units that could not be allocated. It
// matches ErrInsufficientStock, and ErrUnknownProduct as well when no lot of
// the product exists.
type InsufficientStockError struct {
	ProductCode string
	Requested   int
	Available   int
	Shortfall   int
	Unknown     bool
}

func (e *InsufficientStockError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("unknown product %q: insufficient stock, short by %d", e.ProductCode, e.Shortfall)
	}
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d, short by %d",
		e.ProductCode, e.Requested, e.Available, e.Shortfall)
}

func (e *InsufficientStockError) Is(target error) bool {
	if target == ErrInsufficientStock {
		return true
	}
	return e.Unknown && target == ErrUnknownProduct
}

func (e *InsufficientStockError) ErrorCategory() apperr.Category {
	return apperr.CategoryInsufficientStock
}

func (e *InsufficientStockError) ErrorDetails() map[string]any {
	return map[string]any{
		"product_code": e.ProductCode,
		"requested":    e.Requested,
		"available":    e.Available,
		"shortfall":    e.Shortfall,
	}
}

func invalid(format string, args ...any) error {
	return apperr.New(apperr.CategoryValidation, fmt.Sprintf(format, args...))
}
