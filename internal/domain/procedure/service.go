package procedure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/patient"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/events"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/telemetry"
)

// Stock is the part of the inventory service procedures depend on.
// *inventory.Service implements it.
type Stock interface {
	AllocateLocked(ctx context.Context, requests []inventory.Request) ([]inventory.LockedAllocation, error)
	Apply(ctx context.Context, moves []inventory.Movement, actor auth.Actor) error
}

// Patients resolves patient codes against the registry. *patient.Service
// implements it.
type Patients interface {
	GetByCode(ctx context.Context, code string) (*patient.Patient, error)
}

type Service struct {
	repo      Repository
	stock     Stock
	patients  Patients
	tx        inventory.Transactor
	publisher events.Publisher
	now       func() time.Time
}

func NewService(repo Repository, stock Stock, tx inventory.Transactor) *Service {
	return &Service{repo: repo, stock: stock, tx: tx, publisher: events.NopPublisher{}, now: time.Now}
}

func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// SetPatients makes Create require registered patient codes. Without it
// procedures keep the code and name they were given.
func (s *Service) SetPatients(p Patients) {
	s.patients = p
}

// CreateInput is a new request for products. Products may repeat a code;
// repeated codes are merged.
type CreateInput struct {
	PatientCode  string
	PatientName  string
	ScheduledFor time.Time
	Notes        string
	Products     []inventory.Request
	// Draft records the allocation as criada without touching stock. The
	// lots are re-checked when the draft is approved.
	Draft bool
}

func (in *CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.PatientCode) == "":
		return invalid("patient_code is required")
	case in.ScheduledFor.IsZero():
		return invalid("scheduled_for is required")
	case len(in.Products) == 0:
		return invalid("at least one product is required")
	}
	for _, p := range in.Products {
		if strings.TrimSpace(p.ProductCode) == "" {
			return invalid("product_code is required")
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("%w: product %s, got %d", inventory.ErrInvalidQuantity, p.ProductCode, p.Quantity)
		}
	}
	return nil
}

// mergeProducts sums the quantities of repeated codes, keeping the order in
// which codes first appear.
func mergeProducts(in []inventory.Request) []inventory.Request {
	index := make(map[string]int, len(in))
	out := make([]inventory.Request, 0, len(in))
	for _, p := range in {
		code := strings.TrimSpace(p.ProductCode)
		if i, ok := index[code]; ok {
			out[i].Quantity += p.Quantity
			continue
		}
		index[code] = len(out)
		out = append(out, inventory.Request{ProductCode: code, Quantity: p.Quantity})
	}
	return out
}

// Create allocates stock for the procedure and records it. Procedures dated
// today or earlier are approved and consume stock; later ones are scheduled
// and reserve it. Drafts only record the allocation. Allocation, stock
// movements and the procedure rows are written in one transaction, so a
// shortfall in any product leaves no trace.
func (s *Service) Create(ctx context.Context, in CreateInput, actor auth.Actor) (*Procedure, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "procedure.Create")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	p := &Procedure{
		ID:            uuid.New(),
		PatientCode:   strings.TrimSpace(in.PatientCode),
		PatientName:   strings.TrimSpace(in.PatientName),
		ScheduledFor:  dateOf(in.ScheduledFor),
		Status:        initialStatus(in.ScheduledFor, now, in.Draft),
		Notes:         in.Notes,
		CreatedBy:     actor.ID,
		CreatedByName: actor.Name,
	}
	if err := s.resolvePatient(ctx, p); err != nil {
		return nil, err
	}
	p.History = []StatusChange{{
		Status:        p.Status,
		ChangedBy:     actor.ID,
		ChangedByName: actor.Name,
		ChangedAt:     now,
		Note:          "procedure created",
	}}
	span.SetAttributes(attribute.String("procedure.id", p.ID.String()), attribute.String("procedure.status", string(p.Status)))

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		allocs, err := s.stock.AllocateLocked(ctx, mergeProducts(in.Products))
		if err != nil {
			return err
		}
		moveType, moving := movementFor(p.Status)
		moves := make([]inventory.Movement, 0, len(allocs))
		for _, a := range allocs {
			p.Items = append(p.Items, Item{
				LotID:          a.Item.ID,
				ProductCode:    a.Item.ProductCode,
				ProductName:    a.Item.ProductName,
				Batch:          a.Batch,
				ExpirationDate: a.ExpirationDate,
				Quantity:       a.Quantity,
				UnitPrice:      a.UnitPrice,
			})
			if !moving {
				continue
			}
			moves = append(moves, inventory.Movement{
				ItemID:      a.Item.ID,
				Type:        moveType,
				Quantity:    a.Quantity,
				ProcedureID: &p.ID,
				Description: fmt.Sprintf("procedure for patient %s", p.PatientCode),
			})
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create procedure: %w", err)
		}
		if len(moves) == 0 {
			return nil
		}
		return s.stock.Apply(ctx, moves, actor)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.publish(ctx, events.ProcedureCreated, p.ID.String(), p)
	return p, nil
}

// resolvePatient links p to the registered patient of its code, whose name
// wins over the one typed in.
func (s *Service) resolvePatient(ctx context.Context, p *Procedure) error {
	if s.patients != nil {
		reg, err := s.patients.GetByCode(ctx, p.PatientCode)
		switch {
		case errors.Is(err, patient.ErrNotFound):
			return fmt.Errorf("%w: %s", ErrUnknownPatient, p.PatientCode)
		case err != nil:
			return fmt.Errorf("resolve patient: %w", err)
		}
		p.PatientID = &reg.ID
		p.PatientCode = reg.Code
		p.PatientName = reg.Name
	}
	if p.PatientName == "" {
		return invalid("patient_name is required")
	}
	return nil
}

// UpdateStatus moves a procedure to another status and applies the stock
// movements the change implies.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, note string, actor auth.Actor) (*Procedure, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "procedure.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("procedure.id", id.String()), attribute.String("procedure.status", string(to)))

	if !to.Valid() {
		return nil, invalid("unknown status %q", to)
	}

	var (
		p    *Procedure
		from Status
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.LockByID(ctx, id)
		if err != nil {
			return err
		}
		from = p.Status
		plan, err := Plan(from, to)
		if err != nil {
			return err
		}

		var moves []inventory.Movement
		for _, typ := range plan {
			for _, it := range p.Items {
				moves = append(moves, inventory.Movement{
					ItemID:      it.LotID,
					Type:        typ,
					Quantity:    it.Quantity,
					ProcedureID: &p.ID,
					Description: fmt.Sprintf("procedure %s: %s to %s", p.PatientCode, from, to),
				})
			}
		}
		if len(moves) > 0 {
			if err := s.stock.Apply(ctx, moves, actor); err != nil {
				return err
			}
		}

		change := StatusChange{
			Status:        to,
			ChangedBy:     actor.ID,
			ChangedByName: actor.Name,
			ChangedAt:     s.now(),
			Note:          note,
		}
		if err := s.repo.UpdateStatus(ctx, p.ID, change); err != nil {
			return err
		}
		p.Status = to
		p.History = append(p.History, change)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.publish(ctx, events.ProcedureStatusChanged, p.ID.String(), map[string]any{
		"procedure_id": p.ID, "from": from, "to": to, "changed_by": actor.ID,
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get procedure %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Procedure, int, error) {
	if st, ok := params["status"]; ok && !Status(st).Valid() {
		return nil, 0, invalid("unknown status %q", st)
	}
	return s.repo.Search(ctx, params, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count procedures: %w", err)
	}
	st := &Stats{ByStatus: make(map[Status]int, len(statuses))}
	for _, status := range statuses {
		st.ByStatus[status] = counts[status]
		st.Total += counts[status]
	}
	return st, nil
}

func (s *Service) publish(ctx context.Context, typ, key string, payload any) {
	events.Emit(ctx, s.publisher, events.Event{
		Type:     typ,
		Key:      key,
		TenantID: db.TenantFromContext(ctx),
		Payload:  payload,
	})
}
