package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/patient"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/telemetry"
)

// Patients resolves the patient of a per-patient report. *patient.Service
// implements it.
type Patients interface {
	GetByCode(ctx context.Context, code string) (*patient.Patient, error)
}

type Service struct {
	repo     Repository
	patients Patients
	now      func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetPatients makes patient reports reject codes that are not registered.
func (s *Service) SetPatients(p Patients) {
	s.patients = p
}

func checkPeriod(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return apperr.New(apperr.CategoryValidation, "from must not be after to")
	}
	return nil
}

// Consumption reports the stock consumed by procedures scheduled between
// from and to, both inclusive. With neither set it covers the current month.
func (s *Service) Consumption(ctx context.Context, from, to time.Time) (*ConsumptionReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "report.Consumption")
	defer span.End()

	now := s.now()
	if from.IsZero() && to.IsZero() {
		y, m, _ := now.Date()
		from = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, -1)
	}
	if err := checkPeriod(from, to); err != nil {
		return nil, err
	}

	f := Filter{From: from, To: to}
	rows, err := s.repo.ConsumptionRows(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load consumption: %w", err)
	}
	span.SetAttributes(attribute.Int("report.rows", len(rows)))
	return Consumption(f, rows, now), nil
}

// PatientConsumption reports every procedure of one patient that consumed
// stock, optionally limited to a period.
func (s *Service) PatientConsumption(ctx context.Context, code string, from, to time.Time) (*PatientReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "report.PatientConsumption")
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.New(apperr.CategoryValidation, "patient code is required")
	}
	if err := checkPeriod(from, to); err != nil {
		return nil, err
	}

	var name string
	if s.patients != nil {
		p, err := s.patients.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		code, name = p.Code, p.Name
	}

	f := Filter{From: from, To: to, PatientCode: code}
	rows, err := s.repo.ConsumptionRows(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load consumption of %s: %w", code, err)
	}
	return ForPatient(code, name, f, rows, s.now()), nil
}

func (s *Service) StockValue(ctx context.Context) (*StockValueReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "report.StockValue")
	defer span.End()

	rows, err := s.repo.StockRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}
	return StockValue(rows, s.now()), nil
}
