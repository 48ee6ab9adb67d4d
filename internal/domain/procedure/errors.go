package procedure

import (
	"fmt"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

var (
	ErrNotFound          = apperr.New(apperr.CategoryNotFound, "procedure not found")
	ErrInvalidTransition = apperr.New(apperr.CategoryBusiness, "invalid status transition")
	ErrUnknownPatient    = apperr.New(apperr.CategoryValidation, "patient code is not registered")
)

func invalid(format string, args ...any) error {
	return apperr.New(apperr.CategoryValidation, fmt.Sprintf(format, args...))
}
