package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery describes how the server answers an error of one category.
type Recovery struct {
	Status    int
	Message   string
	Retryable bool
	// Expose passes the error text to the client instead of Message.
	Expose bool
}

// Dispatcher maps categories to recoveries. It is built once at startup and
// installed as the Echo HTTPErrorHandler.
type Dispatcher struct {
	logger     zerolog.Logger
	strategies map[Category]Recovery
}

func DefaultStrategies() map[Category]Recovery {
	return map[Category]Recovery{
		CategoryValidation:        {Status: http.StatusBadRequest, Message: "invalid request", Expose: true},
		CategoryAuth:              {Status: http.StatusUnauthorized, Message: "authentication required", Expose: true},
		CategoryNotFound:          {Status: http.StatusNotFound, Message: "resource not found", Expose: true},
		CategoryConflict:          {Status: http.StatusConflict, Message: "resource already exists", Expose: true},
		CategoryInsufficientStock: {Status: http.StatusConflict, Message: "insufficient stock", Expose: true},
		CategoryBusiness:          {Status: http.StatusUnprocessableEntity, Message: "operation not allowed", Expose: true},
		CategoryNetwork:           {Status: http.StatusServiceUnavailable, Message: "upstream service unavailable", Retryable: true},
		CategoryDatabase:          {Status: http.StatusInternalServerError, Message: "database error"},
		CategoryUnknown:           {Status: http.StatusInternalServerError, Message: "internal server error"},
	}
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger, strategies: DefaultStrategies()}
}

// Register replaces the recovery of a category.
func (d *Dispatcher) Register(cat Category, r Recovery) {
	d.strategies[cat] = r
}

// Resolve classifies err and returns its category and recovery.
func (d *Dispatcher) Resolve(err error) (Category, Recovery) {
	cat := Classify(err)
	r, ok := d.strategies[cat]
	if !ok {
		cat = CategoryUnknown
		r = d.strategies[CategoryUnknown]
	}
	return cat, r
}

// Retryable reports whether retrying the failed operation may succeed.
func (d *Dispatcher) Retryable(err error) bool {
	if err == nil {
		return false
	}
	cat, r := d.Resolve(err)
	if r.Retryable {
		return true
	}
	return cat == CategoryDatabase && transient(err)
}

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Category  Category       `json:"category"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorHandler writes err using the recovery of its category.
func (d *Dispatcher) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	cat, r := d.Resolve(err)
	status := r.Status
	msg := r.Message

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	} else if r.Expose {
		msg = err.Error()
	}

	rid, _ := c.Get("request_id").(string)
	if status >= http.StatusInternalServerError {
		d.logger.Error().Err(err).
			Str("request_id", rid).
			Str("category", string(cat)).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	body := ErrorBody{Error: ErrorPayload{
		Category:  cat,
		Message:   msg,
		RequestID: rid,
		Details:   Details(err),
	}}
	if werr := c.JSON(status, body); werr != nil {
		d.logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
	}
}
