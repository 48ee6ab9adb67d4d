package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
)

func serve(f *fixture, role, method, target, body string) *httptest.ResponseRecorder {
	e := echo.New()
	e.HTTPErrorHandler = apperr.NewDispatcher(zerolog.Nop()).HTTPErrorHandler
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "user-1")
			ctx = context.WithValue(ctx, auth.UserRolesKey, []string{role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Create(t *testing.T) {
	f := newFixture()
	rec := serve(f, auth.RoleClinicUser, http.MethodPost, "/api/v1/patients",
		`{"code":"PAC-1","name":"Maria","birth_date":"1990-02-01","cpf":"123.456.789-09"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Code != "PAC-1" || p.CPF != "12345678909" || p.BirthDate == nil {
		t.Errorf("unexpected patient %+v", p)
	}

	if rec := serve(f, auth.RoleClinicUser, http.MethodPost, "/api/v1/patients", `{"code":"PAC-1","name":"Bia"}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a taken code, got %d", rec.Code)
	}
	if rec := serve(f, auth.RoleClinicUser, http.MethodPost, "/api/v1/patients", `{"name":"Bia","birth_date":"01/02/1990"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad date, got %d", rec.Code)
	}
}

func TestHandler_SearchAndLookup(t *testing.T) {
	f := newFixture()
	p := f.register(t, CreateInput{Code: "PAC-1", Name: "Maria Souza"})

	rec := serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/search?q=sou", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var found []Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &found); err != nil || len(found) != 1 {
		t.Fatalf("expected one match, got %s (%v)", rec.Body.String(), err)
	}

	rec = serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/search?q=zz", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected an empty list, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/search?q=m", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a short term, got %d", rec.Code)
	}
	if rec := serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/code/pac-1", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 by code, got %d", rec.Code)
	}
	if rec := serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/"+p.ID.String(), ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 by id, got %d", rec.Code)
	}
	if rec := serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad id, got %d", rec.Code)
	}
	if rec := serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/code/PAC-404/history", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown history, got %d", rec.Code)
	}
}

func TestHandler_UpdateAndEditLogs(t *testing.T) {
	f := newFixture()
	p := f.register(t, CreateInput{Code: "PAC-1", Name: "Maria"})
	target := "/api/v1/patients/" + p.ID.String()

	rec := serve(f, auth.RoleClinicUser, http.MethodPut, target, `{"phone":"11 5555-0000","birth_date":"1985-07-03"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(f, auth.RoleClinicUser, http.MethodGet, target+"/edit-logs", "")
	var logs []EditLog
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 1 || len(logs[0].Changes) != 2 {
		t.Errorf("unexpected edit logs %s", rec.Body.String())
	}
}

func TestHandler_DeleteIsAdminOnly(t *testing.T) {
	f := newFixture()
	p := f.register(t, CreateInput{Code: "PAC-1", Name: "Maria"})
	target := "/api/v1/patients/" + p.ID.String()

	if rec := serve(f, auth.RoleClinicUser, http.MethodDelete, target, ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for clinic user, got %d", rec.Code)
	}

	f.repo.history["PAC-1"] = []HistoryEntry{{Status: "concluida"}}
	if rec := serve(f, auth.RoleClinicAdmin, http.MethodDelete, target, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 while procedures refer to the patient, got %d", rec.Code)
	}

	delete(f.repo.history, "PAC-1")
	if rec := serve(f, auth.RoleClinicAdmin, http.MethodDelete, target, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ListAndStats(t *testing.T) {
	f := newFixture()
	f.register(t, CreateInput{Code: "PAC-1", Name: "Maria"})

	rec := serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients?limit=5", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("unexpected list response %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(f, auth.RoleClinicUser, http.MethodGet, "/api/v1/patients/stats", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"new_this_month":1`) {
		t.Errorf("unexpected stats response %d %s", rec.Code, rec.Body.String())
	}
}
