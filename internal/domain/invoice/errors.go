package invoice

import (
	"fmt"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

var (
	ErrNotFound         = apperr.New(apperr.CategoryNotFound, "invoice not found")
	ErrDuplicateInvoice = apperr.New(apperr.CategoryConflict, "invoice number already registered")
)

func invalid(format string, args ...any) error {
	return apperr.New(apperr.CategoryValidation, fmt.Sprintf(format, args...))
}
