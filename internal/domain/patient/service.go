package patient

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/events"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/telemetry"
)

// codeAttempts bounds how often Create regenerates a code that collided.
const codeAttempts = 3

type Service struct {
	repo      Repository
	tx        inventory.Transactor
	publisher events.Publisher
	now       func() time.Time
}

func NewService(repo Repository, tx inventory.Transactor) *Service {
	return &Service{repo: repo, tx: tx, publisher: events.NopPublisher{}, now: time.Now}
}

func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

type CreateInput struct {
	// Code is generated when blank.
	Code      string
	Name      string
	Phone     string
	Email     string
	BirthDate *time.Time
	CPF       string
	Notes     string
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Name      *string
	Phone     *string
	Email     *string
	BirthDate *time.Time
	CPF       *string
	Notes     *string
}

func normalizeCPF(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	d := digits(raw)
	if len(d) != 11 {
		return "", fmt.Errorf("%w: got %d digits", ErrInvalidCPF, len(d))
	}
	return d, nil
}

func normalizeEmail(raw string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(raw))
	if e == "" {
		return "", nil
	}
	if _, err := mail.ParseAddress(e); err != nil {
		return "", invalid("invalid email %q", raw)
	}
	return e, nil
}

func (s *Service) checkBirthDate(d *time.Time) error {
	if d != nil && d.After(s.now()) {
		return invalid("birth_date is in the future")
	}
	return nil
}

// generateCode derives a code from the clock. attempt shifts it past codes
// that already collided.
func (s *Service) generateCode(attempt int) string {
	return fmt.Sprintf("PAC%08d", (s.now().UnixMilli()+int64(attempt))%100_000_000)
}

// Create registers a patient. A generated code that collides is regenerated;
// a code chosen by the caller is not.
func (s *Service) Create(ctx context.Context, in CreateInput, actor auth.Actor) (*Patient, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "patient.Create")
	defer span.End()

	p := &Patient{
		ID:            uuid.New(),
		Code:          strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:          strings.TrimSpace(in.Name),
		Phone:         strings.TrimSpace(in.Phone),
		BirthDate:     in.BirthDate,
		Notes:         in.Notes,
		CreatedBy:     actor.ID,
		CreatedByName: actor.Name,
	}
	if p.Name == "" {
		return nil, invalid("name is required")
	}
	var err error
	if p.CPF, err = normalizeCPF(in.CPF); err != nil {
		return nil, err
	}
	if p.Email, err = normalizeEmail(in.Email); err != nil {
		return nil, err
	}
	if err := s.checkBirthDate(p.BirthDate); err != nil {
		return nil, err
	}

	generated := p.Code == ""
	for attempt := 0; ; attempt++ {
		if generated {
			p.Code = s.generateCode(attempt)
		}
		err = s.repo.Create(ctx, p)
		if !generated || !errors.Is(err, ErrDuplicateCode) || attempt+1 >= codeAttempts {
			break
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("patient.code", p.Code))

	s.publish(ctx, events.PatientRegistered, p.Code, p)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Patient, error) {
	p, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", code, err)
	}
	return p, nil
}

// Search finds patients for autocomplete. limit <= 0 means
// DefaultSearchLimit; an empty field means FieldAll.
func (s *Service) Search(ctx context.Context, term string, field SearchField, limit int) ([]*Patient, error) {
	if len([]rune(strings.TrimSpace(term))) < MinSearchTerm {
		return nil, ErrSearchTooShort
	}
	if field == "" {
		field = FieldAll
	}
	if !field.Valid() {
		return nil, invalid("unknown search field %q", field)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return s.repo.Search(ctx, term, field, limit)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Summary, int, error) {
	return s.repo.ListSummaries(ctx, limit, offset)
}

// apply writes the set fields of in into p and returns what changed.
func (s *Service) apply(p *Patient, in UpdateInput) ([]Change, error) {
	var changes []Change
	set := func(field string, dst *string, v string) {
		if *dst != v {
			changes = append(changes, Change{Field: field, Old: *dst, New: v})
			*dst = v
		}
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("name cannot be blank")
		}
		set("name", &p.Name, name)
	}
	if in.Phone != nil {
		set("phone", &p.Phone, strings.TrimSpace(*in.Phone))
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		set("email", &p.Email, email)
	}
	if in.CPF != nil {
		cpf, err := normalizeCPF(*in.CPF)
		if err != nil {
			return nil, err
		}
		set("cpf", &p.CPF, cpf)
	}
	if in.Notes != nil {
		set("notes", &p.Notes, *in.Notes)
	}
	if in.BirthDate != nil {
		if err := s.checkBirthDate(in.BirthDate); err != nil {
			return nil, err
		}
		old := formatDate(p.BirthDate)
		if nu := formatDate(in.BirthDate); old != nu {
			changes = append(changes, Change{Field: "birth_date", Old: old, New: nu})
			d := *in.BirthDate
			p.BirthDate = &d
		}
	}
	return changes, nil
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(time.DateOnly)
}

// Update changes a patient and records an edit log of the fields that
// actually changed. An update that changes nothing writes nothing.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput, actor auth.Actor) (*Patient, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "patient.Update")
	defer span.End()
	span.SetAttributes(attribute.String("patient.id", id.String()))

	var (
		p       *Patient
		changes []Change
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.repo.LockByID(ctx, id); err != nil {
			return err
		}
		if changes, err = s.apply(p, in); err != nil || len(changes) == 0 {
			return err
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		return s.repo.AddEditLog(ctx, &EditLog{
			PatientID:    p.ID,
			PatientCode:  p.Code,
			Changes:      changes,
			EditedBy:     actor.ID,
			EditedByName: actor.Name,
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(changes) > 0 {
		s.publish(ctx, events.PatientUpdated, p.Code, map[string]any{
			"patient_id": p.ID, "changes": changes, "edited_by": actor.ID,
		})
	}
	return p, nil
}

// Delete removes a patient no procedure refers to.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.LockByID(ctx, id)
		if err != nil {
			return err
		}
		used, err := s.repo.HasProcedures(ctx, p)
		if err != nil {
			return fmt.Errorf("check procedures: %w", err)
		}
		if used {
			return fmt.Errorf("%w: %s", ErrHasProcedures, p.Code)
		}
		return s.repo.Delete(ctx, id)
	})
}

func (s *Service) History(ctx context.Context, code string) ([]HistoryEntry, error) {
	p, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, p.Code)
}

func (s *Service) EditLogs(ctx context.Context, id uuid.UUID) ([]*EditLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.EditLogs(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	monthStart, threeMonthsAgo := statsWindows(s.now())
	total, month, quarter, err := s.repo.CountCreated(ctx, monthStart, threeMonthsAgo)
	if err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	return &Stats{Total: total, NewThisMonth: month, NewLast3Months: quarter}, nil
}

func (s *Service) publish(ctx context.Context, typ, key string, payload any) {
	events.Emit(ctx, s.publisher, events.Event{
		Type:     typ,
		Key:      key,
		TenantID: db.TenantFromContext(ctx),
		Payload:  payload,
	})
}
