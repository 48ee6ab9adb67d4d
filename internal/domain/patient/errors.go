package patient

import (
	"fmt"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

var (
	ErrNotFound       = apperr.New(apperr.CategoryNotFound, "patient not found")
	ErrDuplicateCode  = apperr.New(apperr.CategoryConflict, "patient code already registered")
	ErrHasProcedures  = apperr.New(apperr.CategoryBusiness, "patient has procedures and cannot be deleted")
	ErrInvalidCPF     = apperr.New(apperr.CategoryValidation, "cpf must have 11 digits")
	ErrSearchTooShort = apperr.New(apperr.CategoryValidation, "search term must have at least 2 characters")
)

func invalid(format string, args ...any) error {
	return apperr.New(apperr.CategoryValidation, fmt.Sprintf(format, args...))
}
