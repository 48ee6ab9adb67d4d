package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type stockErr struct{ short int }

func (e stockErr) Error() string                { return fmt.Sprintf("short by %d", e.short) }
func (e stockErr) ErrorCategory() Category      { return CategoryInsufficientStock }
func (e stockErr) ErrorDetails() map[string]any { return map[string]any{"shortfall": e.short} }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, ""},
		{"app error", New(CategoryValidation, "bad"), CategoryValidation},
		{"wrapped app error", fmt.Errorf("create: %w", New(CategoryBusiness, "nope")), CategoryBusiness},
		{"self categorized", fmt.Errorf("allocate: %w", stockErr{3}), CategoryInsufficientStock},
		{"no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), CategoryNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, CategoryConflict},
		{"fk violation", &pgconn.PgError{Code: "23503"}, CategoryValidation},
		{"serialization", &pgconn.PgError{Code: "40001"}, CategoryDatabase},
		{"echo 403", echo.NewHTTPError(http.StatusForbidden, "no"), CategoryAuth},
		{"echo 404", echo.ErrNotFound, CategoryNotFound},
		{"deadline", context.DeadlineExceeded, CategoryNetwork},
		{"net timeout", timeoutErr{}, CategoryNetwork},
		{"plain", errors.New("boom"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIs_SentinelSurvivesWrapping(t *testing.T) {
	sentinel := New(CategoryBusiness, "invalid transition")
	err := fmt.Errorf("update: %w", sentinel)
	if !errors.Is(err, sentinel) {
		t.Error("expected errors.Is to match the sentinel")
	}
	if errors.Is(err, New(CategoryBusiness, "other")) {
		t.Error("expected different message not to match")
	}
}

func TestDispatcher_Retryable(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	if !d.Retryable(timeoutErr{}) {
		t.Error("network errors should be retryable")
	}
	if !d.Retryable(&pgconn.PgError{Code: "40P01"}) {
		t.Error("deadlock should be retryable")
	}
	if d.Retryable(&pgconn.PgError{Code: "42P01"}) {
		t.Error("undefined table should not be retryable")
	}
	if d.Retryable(stockErr{1}) {
		t.Error("insufficient stock should not be retryable")
	}
	if d.Retryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestDispatcher_Register(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	d.Register(CategoryBusiness, Recovery{Status: http.StatusConflict, Message: "blocked", Retryable: true})
	cat, r := d.Resolve(New(CategoryBusiness, "x"))
	if cat != CategoryBusiness || r.Status != http.StatusConflict || !r.Retryable {
		t.Errorf("unexpected recovery %+v for %s", r, cat)
	}
}

func TestHTTPErrorHandler_InsufficientStock(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/procedures", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")

	NewDispatcher(zerolog.Nop()).HTTPErrorHandler(fmt.Errorf("allocate: %w", stockErr{4}), c)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Category != CategoryInsufficientStock {
		t.Errorf("expected insufficient_stock, got %s", body.Error.Category)
	}
	if body.Error.RequestID != "req-1" {
		t.Errorf("expected request id req-1, got %s", body.Error.RequestID)
	}
	if body.Error.Details["shortfall"] != float64(4) {
		t.Errorf("expected shortfall 4, got %v", body.Error.Details["shortfall"])
	}
}

func TestHTTPErrorHandler_HidesInternalErrors(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewDispatcher(zerolog.Nop()).HTTPErrorHandler(errors.New("password=secret leaked"), c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body ErrorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error.Message != "internal server error" {
		t.Errorf("expected generic message, got %q", body.Error.Message)
	}
}

func TestHTTPErrorHandler_EchoError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewDispatcher(zerolog.Nop()).HTTPErrorHandler(echo.NewHTTPError(http.StatusBadRequest, "invalid id"), c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body ErrorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error.Message != "invalid id" || body.Error.Category != CategoryValidation {
		t.Errorf("unexpected body %+v", body.Error)
	}
}

func TestRetry(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	policy := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := d.Retry(context.Background(), policy, func(context.Context) error {
			calls++
			if calls < 3 {
				return timeoutErr{}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		want := New(CategoryValidation, "bad input")
		err := d.Retry(context.Background(), policy, func(context.Context) error {
			calls++
			return want
		})
		if !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := d.Retry(context.Background(), policy, func(context.Context) error {
			calls++
			return timeoutErr{}
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})
}
