package middleware

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
)

// maxAuditCapture bounds how much of a response body is kept for the digest
// and the resource id lookup.
const maxAuditCapture = 64 << 10

// AuditEntry records one mutating request: who sent it, what it touched and
// a digest of the state the server answered with.
type AuditEntry struct {
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name,omitempty"`
	UserRoles     []string  `json:"user_roles"`
	TenantID      string    `json:"tenant_id"`
	Action        string    `json:"action"` // create, update, delete
	Resource      string    `json:"resource"`
	ResourceID    string    `json:"resource_id,omitempty"`
	Method        string    `json:"method"`
	Path          string    `json:"path"`
	StatusCode    int       `json:"status_code"`
	RequestID     string    `json:"request_id"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	PayloadDigest string    `json:"payload_digest,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AuditRecorder persists audit entries. The audit package provides the
// PostgreSQL implementation.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records every POST, PUT, PATCH and DELETE under /api/v1. Reads are
// not audited. Failed requests are recorded too, with the status the error
// handler answered with. A recorder failure is logged and never fails the
// request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			res := c.Response()
			capture := &captureWriter{ResponseWriter: res.Writer}
			res.Writer = capture

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			res.Writer = capture.ResponseWriter

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserName:   auth.UserNameFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     methodToAction(req.Method),
				Resource:   resourceOf(req.URL.Path),
				ResourceID: c.Param("id"),
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: res.Status,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Timestamp:  time.Now().UTC(),
			}
			entry.TenantID, _ = c.Get("tenant_id").(string)
			entry.RequestID, _ = c.Get("request_id").(string)

			if body := capture.buf.Bytes(); len(body) > 0 {
				sum := sha256.Sum256(body)
				entry.PayloadDigest = hex.EncodeToString(sum[:])
				if entry.ResourceID == "" {
					entry.ResourceID = idFromBody(body)
				}
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("tenant_id", entry.TenantID).
				Str("user_id", entry.UserID).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Int("status", entry.StatusCode).
				Msg("audit")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodDelete:
		return "delete"
	default:
		return "update"
	}
}

// resourceOf returns the first path segment after /api/v1:
// /api/v1/procedures/123/status -> procedures.
func resourceOf(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/api/v1/"), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}

func idFromBody(body []byte) string {
	var v struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &v); err != nil || len(v.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.ID, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v.ID))
}

// captureWriter tees the first maxAuditCapture bytes of the response.
type captureWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if room := maxAuditCapture - w.buf.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		w.buf.Write(p[:room])
	}
	return w.ResponseWriter.Write(p)
}

func (w *captureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *captureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
