// Package catalog keeps the master product list shared by every clinic.
// Lots can only be received for products that are active in it.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

type Product struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows List. Search matches code or name, ignoring case.
type ListFilter struct {
	ActiveOnly bool
	Search     string
}

var (
	ErrNotFound      = apperr.New(apperr.CategoryNotFound, "catalog product not found")
	ErrDuplicateCode = apperr.New(apperr.CategoryConflict, "catalog product code already exists")
	ErrStillActive   = apperr.New(apperr.CategoryBusiness, "deactivate the product before deleting it")
)

func invalid(format string, args ...any) error {
	return apperr.New(apperr.CategoryValidation, fmt.Sprintf(format, args...))
}

func normalizeCode(code string) string { return strings.TrimSpace(code) }
