package invoice

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/events"
)

// Receiver creates a lot inside the caller's transaction.
// *inventory.Service implements it.
type Receiver interface {
	Receive(ctx context.Context, it *inventory.Item, actor auth.Actor, description string) error
}

type Service struct {
	repo      Repository
	stock     Receiver
	tx        inventory.Transactor
	publisher events.Publisher
}

func NewService(repo Repository, stock Receiver, tx inventory.Transactor) *Service {
	return &Service{repo: repo, stock: stock, tx: tx, publisher: events.NopPublisher{}}
}

func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

func validate(inv *Invoice) error {
	if strings.TrimSpace(inv.Number) == "" {
		return invalid("number is required")
	}
	if inv.IssuedAt.IsZero() {
		return invalid("issued_at is required")
	}
	if len(inv.Lines) == 0 {
		return invalid("at least one line is required")
	}
	for i, l := range inv.Lines {
		switch {
		case strings.TrimSpace(l.ProductCode) == "":
			return invalid("line %d: product_code is required", i+1)
		case strings.TrimSpace(l.ProductName) == "":
			return invalid("line %d: product_name is required", i+1)
		case strings.TrimSpace(l.Batch) == "":
			return invalid("line %d: batch is required", i+1)
		case l.Quantity <= 0:
			return invalid("line %d: quantity must be greater than 0", i+1)
		case l.ExpirationDate.IsZero():
			return invalid("line %d: expiration_date is required", i+1)
		case l.UnitPrice.IsNegative():
			return invalid("line %d: unit_price must not be negative", i+1)
		}
	}
	return nil
}

// Create registers the invoice and receives every line as a new lot, all in
// one transaction.
func (s *Service) Create(ctx context.Context, inv *Invoice, actor auth.Actor) error {
	if err := validate(inv); err != nil {
		return err
	}
	inv.ID = uuid.New()
	inv.Number = strings.TrimSpace(inv.Number)
	inv.Total = total(inv.Lines)
	inv.CreatedBy = actor.ID
	inv.CreatedByName = actor.Name

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, inv); err != nil {
			return err
		}
		for i := range inv.Lines {
			l := &inv.Lines[i]
			it := &inventory.Item{
				ProductCode:    l.ProductCode,
				ProductName:    l.ProductName,
				Batch:          l.Batch,
				QuantityOnHand: l.Quantity,
				ExpirationDate: l.ExpirationDate,
				UnitPrice:      l.UnitPrice,
				InvoiceID:      &inv.ID,
				InvoiceNumber:  &inv.Number,
			}
			if err := s.stock.Receive(ctx, it, actor, fmt.Sprintf("invoice %s", inv.Number)); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			l.ItemID = it.ID
			l.ProductCode = it.ProductCode
			if err := s.repo.AddLine(ctx, inv.ID, l); err != nil {
				return fmt.Errorf("add line %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	events.Emit(ctx, s.publisher, events.Event{
		Type:     events.InvoiceCreated,
		Key:      inv.ID.String(),
		TenantID: db.TenantFromContext(ctx),
		Payload:  inv,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}
