// Package apperr classifies errors into a small set of categories and maps
// each category to the way the server recovers from it.
package apperr

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

type Category string

const (
	CategoryValidation        Category = "validation"
	CategoryAuth              Category = "auth"
	CategoryNotFound          Category = "not_found"
	CategoryConflict          Category = "conflict"
	CategoryInsufficientStock Category = "insufficient_stock"
	CategoryNetwork           Category = "network"
	CategoryDatabase          Category = "database"
	CategoryBusiness          Category = "business"
	CategoryUnknown           Category = "unknown"
)

// Categorized is implemented by errors that know their own category.
type Categorized interface {
	ErrorCategory() Category
}

// Detailed is implemented by errors that carry structured details for the
// client, such as the shortfall of a failed allocation.
type Detailed interface {
	ErrorDetails() map[string]any
}

// Error is a categorized error with an optional cause.
type Error struct {
	Kind    Category
	Message string
	Err     error
}

func New(kind Category, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Category, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCategory() Category { return e.Kind }

// Is matches another *Error of the same category and message, so sentinel
// values declared with New work with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message && t.Err == nil
}

// Classify reports the category of err. Errors that categorize themselves
// win over driver and transport errors found deeper in the chain.
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	var c Categorized
	if errors.As(err, &c) {
		return c.ErrorCategory()
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return CategoryNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPG(pgErr)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return classifyStatus(he.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}

	return CategoryUnknown
}

// Details returns the structured details carried by err, or nil.
func Details(err error) map[string]any {
	var d Detailed
	if errors.As(err, &d) {
		return d.ErrorDetails()
	}
	return nil
}

func classifyPG(pgErr *pgconn.PgError) Category {
	switch pgErr.Code {
	case "23505":
		return CategoryConflict
	case "23503", "23514", "23502", "22P02", "22001", "22003":
		return CategoryValidation
	}
	return CategoryDatabase
}

func classifyStatus(code int) Category {
	switch {
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return CategoryValidation
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return CategoryAuth
	case code == http.StatusNotFound, code == http.StatusMethodNotAllowed:
		return CategoryNotFound
	case code == http.StatusConflict:
		return CategoryConflict
	case code == http.StatusTooManyRequests:
		return CategoryBusiness
	case code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return CategoryNetwork
	}
	return CategoryUnknown
}

// transient reports whether a PostgreSQL error is worth retrying
// (serialization failure, deadlock, connection loss).
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "57P01", "08006", "08003":
		return true
	}
	return false
}
