package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/events"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/telemetry"
)

// Transactor runs fn in one database transaction. *db.TxManager implements it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	LowStockThreshold int
	ExpiryWarningDays int
}

// Catalog checks product codes against the master product list.
// *catalog.Service implements it.
type Catalog interface {
	ProductName(ctx context.Context, code string) (name string, ok bool, err error)
}

type Service struct {
	items     ItemRepository
	activity  ActivityRepository
	tx        Transactor
	cfg       Config
	publisher events.Publisher
	catalog   Catalog
}

func NewService(items ItemRepository, activity ActivityRepository, tx Transactor, cfg Config) *Service {
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = DefaultLowStockThreshold
	}
	if cfg.ExpiryWarningDays <= 0 {
		cfg.ExpiryWarningDays = DefaultExpiryWarningDays
	}
	return &Service{items: items, activity: activity, tx: tx, cfg: cfg, publisher: events.NopPublisher{}}
}

// SetPublisher attaches the publisher used for stock events.
func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

func (s *Service) Config() Config { return s.cfg }

// ---- Items ----

// ReceiveItem registers a new lot and its intake activity.
func (s *Service) ReceiveItem(ctx context.Context, it *Item, actor auth.Actor) error {
	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.Receive(ctx, it, actor, "")
	}); err != nil {
		return err
	}
	s.publish(ctx, events.InventoryItemReceived, it.ID.String(), it)
	return nil
}

// SetCatalog makes Receive accept only active catalog products.
func (s *Service) SetCatalog(c Catalog) {
	s.catalog = c
}

// checkCatalog rejects codes missing from the catalog and fills a blank
// product name from it.
func (s *Service) checkCatalog(ctx context.Context, it *Item) error {
	if s.catalog == nil || it.ProductCode == "" {
		return nil
	}
	name, ok, err := s.catalog.ProductName(ctx, it.ProductCode)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInCatalog, it.ProductCode)
	}
	if strings.TrimSpace(it.ProductName) == "" {
		it.ProductName = name
	}
	return nil
}

// Receive does the work of ReceiveItem inside the caller's transaction and
// publishes nothing, so callers that receive several lots at once (invoice
// intake) can publish their own event after commit.
func (s *Service) Receive(ctx context.Context, it *Item, actor auth.Actor, description string) error {
	it.ProductCode = strings.TrimSpace(it.ProductCode)
	if err := s.checkCatalog(ctx, it); err != nil {
		return err
	}
	if err := validateNewItem(it); err != nil {
		return err
	}
	it.InitialQuantity = it.QuantityOnHand
	it.QuantityReserved = 0
	it.Active = true
	if err := s.items.Create(ctx, it); err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	if description == "" {
		description = fmt.Sprintf("lot %s received", it.Batch)
	}
	return s.record(ctx, it, actor, ActivityIntake, it.QuantityOnHand, 0, it.QuantityOnHand, description, nil)
}

func validateNewItem(it *Item) error {
	switch {
	case strings.TrimSpace(it.ProductCode) == "":
		return invalid("product_code is required")
	case strings.TrimSpace(it.ProductName) == "":
		return invalid("product_name is required")
	case strings.TrimSpace(it.Batch) == "":
		return invalid("batch is required")
	case it.QuantityOnHand <= 0:
		return invalid("quantity must be greater than 0")
	case it.ExpirationDate.IsZero():
		return invalid("expiration_date is required")
	case it.UnitPrice.IsNegative():
		return invalid("unit_price must not be negative")
	}
	return nil
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return it, nil
}

func (s *Service) SearchItems(ctx context.Context, params map[string]string, limit, offset int) ([]*Item, int, error) {
	return s.items.Search(ctx, params, limit, offset)
}

// ItemUpdate holds the lot fields that can change after intake. Quantities
// change only through adjustments and procedures.
type ItemUpdate struct {
	ProductName    *string          `json:"product_name"`
	Batch          *string          `json:"batch"`
	ExpirationDate *time.Time       `json:"expiration_date"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
}

func (s *Service) UpdateItem(ctx context.Context, id uuid.UUID, upd ItemUpdate) (*Item, error) {
	var out *Item
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		it, err := s.lockOne(ctx, id)
		if err != nil {
			return err
		}
		if upd.ProductName != nil {
			if strings.TrimSpace(*upd.ProductName) == "" {
				return invalid("product_name must not be empty")
			}
			it.ProductName = *upd.ProductName
		}
		if upd.Batch != nil {
			if strings.TrimSpace(*upd.Batch) == "" {
				return invalid("batch must not be empty")
			}
			it.Batch = *upd.Batch
		}
		if upd.ExpirationDate != nil {
			if upd.ExpirationDate.IsZero() {
				return invalid("expiration_date must not be empty")
			}
			it.ExpirationDate = *upd.ExpirationDate
		}
		if upd.UnitPrice != nil {
			if upd.UnitPrice.IsNegative() {
				return invalid("unit_price must not be negative")
			}
			it.UnitPrice = *upd.UnitPrice
		}
		if err := s.items.Update(ctx, it); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		out = it
		return nil
	})
	return out, err
}

// AdjustItem corrects the units on hand after a stock count. A lot cannot go
// below the units reserved for scheduled procedures.
func (s *Service) AdjustItem(ctx context.Context, id uuid.UUID, delta int, reason string, actor auth.Actor) (*Item, error) {
	if delta == 0 {
		return nil, invalid("delta must not be zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason is required")
	}

	var out *Item
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		it, err := s.lockOne(ctx, id)
		if err != nil {
			return err
		}
		before := it.QuantityOnHand
		after := before + delta
		if after < 0 || after < it.QuantityReserved {
			return fmt.Errorf("%w: on hand %d, reserved %d, delta %d", ErrBelowReserved, before, it.QuantityReserved, delta)
		}
		it.QuantityOnHand = after
		if err := s.items.Update(ctx, it); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		qty := delta
		if qty < 0 {
			qty = -qty
		}
		out = it
		return s.record(ctx, it, actor, ActivityAdjustment, qty, before, after, reason, nil)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.InventoryAdjusted, out.ID.String(), map[string]any{
		"item_id": out.ID, "delta": delta, "reason": reason, "quantity_on_hand": out.QuantityOnHand,
	})
	return out, nil
}

// Deactivate hides a lot from allocation. Lots with reservations must be
// settled first.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		it, err := s.lockOne(ctx, id)
		if err != nil {
			return err
		}
		if it.QuantityReserved > 0 {
			return fmt.Errorf("%w: %d units reserved", ErrLotReserved, it.QuantityReserved)
		}
		it.Active = false
		return s.items.Update(ctx, it)
	})
}

func (s *Service) lockOne(ctx context.Context, id uuid.UUID) (*Item, error) {
	locked, err := s.items.LockByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("lock item %s: %w", id, err)
	}
	if len(locked) == 0 {
		return nil, fmt.Errorf("item %s: %w", id, ErrItemNotFound)
	}
	return locked[0], nil
}

// ---- Allocation ----

// ProductGroups groups every allocatable lot by product for the request form.
func (s *Service) ProductGroups(ctx context.Context) ([]ProductGroup, error) {
	items, err := s.items.ListAllocatable(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list allocatable: %w", err)
	}
	return GroupByProduct(Lots(items)), nil
}

// PreviewAllocation runs the allocator on the current snapshot without
// writing anything. It sees the same lots AllocateLocked would, so a product
// whose lots are all reserved is short, not unknown. The result can go
// stale; AllocateLocked is the authoritative check.
func (s *Service) PreviewAllocation(ctx context.Context, productCode string, quantity int) ([]Allocation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "inventory.PreviewAllocation")
	defer span.End()
	span.SetAttributes(attribute.String("product.code", productCode), attribute.Int("quantity", quantity))

	if quantity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	items, err := s.items.ListByProductCodes(ctx, []string{productCode})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	allocs, err := Allocate(Lots(items), productCode, quantity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return allocs, nil
}

// Request asks for units of one product.
type Request struct {
	ProductCode string `json:"product_code"`
	Quantity    int    `json:"quantity"`
}

// LockedAllocation is an allocation together with the lot it draws from,
// still locked by the caller's transaction.
type LockedAllocation struct {
	Allocation
	Item *Item
}

// AllocateLocked locks every lot of the requested products and allocates on
// that snapshot. It must run inside a transaction; the locks make the
// snapshot authoritative until commit.
func (s *Service) AllocateLocked(ctx context.Context, requests []Request) ([]LockedAllocation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "inventory.AllocateLocked")
	defer span.End()

	productCodes := make([]string, 0, len(requests))
	for _, r := range requests {
		productCodes = append(productCodes, r.ProductCode)
	}
	span.SetAttributes(attribute.StringSlice("product.codes", productCodes))

	items, err := s.items.LockByProductCodes(ctx, productCodes)
	if err != nil {
		return nil, fmt.Errorf("lock lots: %w", err)
	}
	byID := make(map[string]*Item, len(items))
	for _, it := range items {
		byID[it.ID.String()] = it
	}
	lots := Lots(items)

	var out []LockedAllocation
	for _, r := range requests {
		allocs, err := Allocate(lots, r.ProductCode, r.Quantity)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		for _, a := range allocs {
			out = append(out, LockedAllocation{Allocation: a, Item: byID[a.LotID]})
		}
	}
	return out, nil
}

// ---- Stock movements ----

// Movement changes the counters of one lot on behalf of a procedure.
type Movement struct {
	ItemID      uuid.UUID
	Type        ActivityType
	Quantity    int
	ProcedureID *uuid.UUID
	Description string
}

// Apply performs the movements inside the caller's transaction, locking the
// lots involved and re-checking stock on the locked rows.
func (s *Service) Apply(ctx context.Context, moves []Movement, actor auth.Actor) error {
	ids := make([]uuid.UUID, 0, len(moves))
	for _, m := range moves {
		ids = append(ids, m.ItemID)
	}
	locked, err := s.items.LockByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock lots: %w", err)
	}
	byID := make(map[uuid.UUID]*Item, len(locked))
	for _, it := range locked {
		byID[it.ID] = it
	}

	for _, m := range moves {
		it, ok := byID[m.ItemID]
		if !ok {
			return fmt.Errorf("item %s: %w", m.ItemID, ErrItemNotFound)
		}
		before, after, err := applyMovement(it, m)
		if err != nil {
			return err
		}
		if err := s.items.Update(ctx, it); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if err := s.record(ctx, it, actor, m.Type, m.Quantity, before, after, m.Description, m.ProcedureID); err != nil {
			return err
		}
	}
	return nil
}

// applyMovement mutates it and returns the counter values recorded in the
// activity log.
func applyMovement(it *Item, m Movement) (before, after int, err error) {
	if m.Quantity <= 0 {
		return 0, 0, fmt.Errorf("%w: quantity %d", ErrInvalidMovement, m.Quantity)
	}
	short := func(avail int) error {
		return &InsufficientStockError{
			ProductCode: it.ProductCode,
			Requested:   m.Quantity,
			Available:   avail,
			Shortfall:   m.Quantity - avail,
		}
	}

	switch m.Type {
	case ActivityReservation:
		if !it.Active {
			return 0, 0, ErrInactiveLot
		}
		if it.Available() < m.Quantity {
			return 0, 0, short(it.Available())
		}
		before = it.QuantityReserved
		it.QuantityReserved += m.Quantity
		return before, it.QuantityReserved, nil
	case ActivityRelease:
		if it.QuantityReserved < m.Quantity {
			return 0, 0, fmt.Errorf("%w: release %d of %d reserved", ErrInvalidMovement, m.Quantity, it.QuantityReserved)
		}
		before = it.QuantityReserved
		it.QuantityReserved -= m.Quantity
		return before, it.QuantityReserved, nil
	case ActivityConsumption:
		if it.Available() < m.Quantity {
			return 0, 0, short(it.Available())
		}
		before = it.QuantityOnHand
		it.QuantityOnHand -= m.Quantity
		return before, it.QuantityOnHand, nil
	case ActivityReturn:
		before = it.QuantityOnHand
		it.QuantityOnHand += m.Quantity
		return before, it.QuantityOnHand, nil
	}
	return 0, 0, fmt.Errorf("%w: type %q", ErrInvalidMovement, m.Type)
}

func (s *Service) record(ctx context.Context, it *Item, actor auth.Actor, typ ActivityType, qty, before, after int, description string, procedureID *uuid.UUID) error {
	a := &Activity{
		ItemID:         it.ID,
		ProductCode:    it.ProductCode,
		ProductName:    it.ProductName,
		Type:           typ,
		Quantity:       qty,
		QuantityBefore: before,
		QuantityAfter:  after,
		Description:    description,
		ProcedureID:    procedureID,
		InvoiceID:      it.InvoiceID,
		UserID:         actor.ID,
		UserName:       actor.Name,
	}
	if err := s.activity.Create(ctx, a); err != nil {
		return fmt.Errorf("record %s activity: %w", typ, err)
	}
	return nil
}

// ---- Reporting ----

func (s *Service) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	items, err := s.items.ListInStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	st := ComputeStats(items, now, s.cfg.LowStockThreshold, s.cfg.ExpiryWarningDays)
	return &st, nil
}

func (s *Service) Expiring(ctx context.Context, now time.Time, days, limit int) ([]ExpiringLot, error) {
	if days <= 0 {
		days = s.cfg.ExpiryWarningDays
	}
	items, err := s.items.ListInStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return ExpiringWithin(items, now, days, limit), nil
}

func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.activity.ListRecent(ctx, limit)
}

func (s *Service) ProcedureActivity(ctx context.Context, procedureID uuid.UUID) ([]*Activity, error) {
	return s.activity.ListByProcedure(ctx, procedureID)
}

func (s *Service) publish(ctx context.Context, typ, key string, payload any) {
	events.Emit(ctx, s.publisher, events.Event{
		Type:     typ,
		Key:      key,
		TenantID: db.TenantFromContext(ctx),
		Payload:  payload,
	})
}
