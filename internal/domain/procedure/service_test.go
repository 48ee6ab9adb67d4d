package procedure

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/patient"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/events"
)

// -- In-memory stock --

type memItems struct {
	mu    sync.Mutex
	store map[uuid.UUID]inventory.Item
}

func (m *memItems) list(keep func(inventory.Item) bool) []*inventory.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*inventory.Item
	for _, it := range m.store {
		if keep(it) {
			cp := it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (m *memItems) Create(_ context.Context, it *inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it.ID = uuid.New()
	m.store[it.ID] = *it
	return nil
}

func (m *memItems) GetByID(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.store[id]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return &it, nil
}

func (m *memItems) Update(_ context.Context, it *inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[it.ID] = *it
	return nil
}

func (m *memItems) Search(context.Context, map[string]string, int, int) ([]*inventory.Item, int, error) {
	all := m.list(func(inventory.Item) bool { return true })
	return all, len(all), nil
}

func (m *memItems) ListAllocatable(_ context.Context, codes []string) ([]*inventory.Item, error) {
	return m.list(func(it inventory.Item) bool { return it.Active && it.Available() > 0 && contains(codes, it.ProductCode) }), nil
}

func (m *memItems) ListByProductCodes(_ context.Context, codes []string) ([]*inventory.Item, error) {
	return m.list(func(it inventory.Item) bool { return it.Active && contains(codes, it.ProductCode) }), nil
}

func (m *memItems) ListInStock(context.Context) ([]*inventory.Item, error) {
	return m.list(func(it inventory.Item) bool { return it.Active && it.QuantityOnHand > 0 }), nil
}

func (m *memItems) LockByProductCodes(_ context.Context, codes []string) ([]*inventory.Item, error) {
	return m.list(func(it inventory.Item) bool { return it.Active && contains(codes, it.ProductCode) }), nil
}

func (m *memItems) LockByIDs(_ context.Context, ids []uuid.UUID) ([]*inventory.Item, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.list(func(it inventory.Item) bool { return want[it.ID] }), nil
}

func contains(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

type memActivity struct {
	mu    sync.Mutex
	store []*inventory.Activity
}

func (m *memActivity) Create(_ context.Context, a *inventory.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = append(m.store, a)
	return nil
}

func (m *memActivity) ListRecent(context.Context, int) ([]*inventory.Activity, error) {
	return m.store, nil
}

func (m *memActivity) ListByProcedure(_ context.Context, id uuid.UUID) ([]*inventory.Activity, error) {
	var out []*inventory.Activity
	for _, a := range m.store {
		if a.ProcedureID != nil && *a.ProcedureID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

// -- In-memory procedures --

type memProcedures struct {
	mu    sync.Mutex
	store map[uuid.UUID]Procedure
}

func (m *memProcedures) Create(_ context.Context, p *Procedure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	cp.Items = append([]Item(nil), p.Items...)
	cp.History = append([]StatusChange(nil), p.History...)
	m.store[p.ID] = cp
	return nil
}

func (m *memProcedures) GetByID(_ context.Context, id uuid.UUID) (*Procedure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.History = append([]StatusChange(nil), p.History...)
	return &p, nil
}

func (m *memProcedures) LockByID(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return m.GetByID(ctx, id)
}

func (m *memProcedures) UpdateStatus(_ context.Context, id uuid.UUID, change StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = change.Status
	p.History = append(p.History, change)
	m.store[id] = p
	return nil
}

func (m *memProcedures) Search(_ context.Context, params map[string]string, _, _ int) ([]*Procedure, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Procedure
	for _, p := range m.store {
		if st, ok := params["status"]; ok && string(p.Status) != st {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memProcedures) CountByStatus(context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int)
	for _, p := range m.store {
		counts[p.Status]++
	}
	return counts, nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// -- Fixture --

var (
	today = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	actor = auth.Actor{ID: "user-1", Name: "Dra. Ana"}
)

type fixture struct {
	svc   *Service
	items *memItems
	acts  *memActivity
	procs *memProcedures
	pub   *recordingPublisher
}

func newFixture() *fixture {
	f := &fixture{
		items: &memItems{store: make(map[uuid.UUID]inventory.Item)},
		acts:  &memActivity{},
		procs: &memProcedures{store: make(map[uuid.UUID]Procedure)},
		pub:   &recordingPublisher{},
	}
	stock := inventory.NewService(f.items, f.acts, passTx{}, inventory.Config{})
	f.svc = NewService(f.procs, stock, passTx{})
	f.svc.SetPublisher(f.pub)
	f.svc.now = func() time.Time { return today }
	return f
}

func (f *fixture) lot(code string, onHand int, exp string) uuid.UUID {
	d, err := time.Parse(time.DateOnly, exp)
	if err != nil {
		panic(err)
	}
	it := inventory.Item{
		ID:             uuid.New(),
		ProductCode:    code,
		ProductName:    "Product " + code,
		Batch:          "L-" + exp,
		QuantityOnHand: onHand,
		ExpirationDate: d,
		UnitPrice:      decimal.RequireFromString("100"),
		Active:         true,
	}
	f.items.store[it.ID] = it
	return it.ID
}

func (f *fixture) counters(id uuid.UUID) (onHand, reserved int) {
	it := f.items.store[id]
	return it.QuantityOnHand, it.QuantityReserved
}

func input(date time.Time, products ...inventory.Request) CreateInput {
	return CreateInput{PatientCode: "PAC-1", PatientName: "Maria", ScheduledFor: date, Products: products}
}

// -- Tests --

func TestCreate_TodayConsumesFEFO(t *testing.T) {
	f := newFixture()
	a := f.lot("P1", 5, "2024-07-01")
	b := f.lot("P1", 10, "2024-08-01")

	p, err := f.svc.Create(context.Background(), input(today, inventory.Request{ProductCode: "P1", Quantity: 7}), actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusApproved {
		t.Errorf("expected aprovada, got %s", p.Status)
	}
	if len(p.Items) != 2 || p.Items[0].LotID != a || p.Items[0].Quantity != 5 || p.Items[1].LotID != b || p.Items[1].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", p.Items)
	}
	if onHand, _ := f.counters(a); onHand != 0 {
		t.Errorf("expected lot A empty, got %d", onHand)
	}
	if onHand, _ := f.counters(b); onHand != 8 {
		t.Errorf("expected lot B at 8, got %d", onHand)
	}
	if p.TotalUnits() != 7 || !p.TotalValue().Equal(decimal.NewFromInt(700)) {
		t.Errorf("unexpected totals: %d units, %s", p.TotalUnits(), p.TotalValue())
	}
	if len(p.History) != 1 || p.History[0].Status != StatusApproved || p.History[0].ChangedBy != "user-1" {
		t.Errorf("unexpected history: %+v", p.History)
	}
	if len(f.acts.store) != 2 || f.acts.store[0].Type != inventory.ActivityConsumption || *f.acts.store[0].ProcedureID != p.ID {
		t.Errorf("expected two consumption activities, got %+v", f.acts.store)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].Type != events.ProcedureCreated || f.pub.events[0].Key != p.ID.String() {
		t.Errorf("expected procedure.created event, got %+v", f.pub.events)
	}
}

func TestCreate_FutureReserves(t *testing.T) {
	f := newFixture()
	a := f.lot("P1", 5, "2024-07-01")

	p, err := f.svc.Create(context.Background(), input(today.AddDate(0, 0, 3), inventory.Request{ProductCode: "P1", Quantity: 3}), actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusScheduled {
		t.Errorf("expected agendada, got %s", p.Status)
	}
	if onHand, reserved := f.counters(a); onHand != 5 || reserved != 3 {
		t.Errorf("expected 5 on hand and 3 reserved, got %d/%d", onHand, reserved)
	}

	// reserved units are no longer allocatable
	_, err = f.svc.Create(context.Background(), input(today, inventory.Request{ProductCode: "P1", Quantity: 3}), actor)
	var ise *inventory.InsufficientStockError
	if !errors.As(err, &ise) || ise.Shortfall != 1 {
		t.Errorf("expected shortfall 1, got %v", err)
	}
}

func TestCreate_MergesDuplicateProducts(t *testing.T) {
	f := newFixture()
	a := f.lot("P1", 10, "2024-07-01")

	p, err := f.svc.Create(context.Background(), input(today,
		inventory.Request{ProductCode: "P1", Quantity: 2},
		inventory.Request{ProductCode: " P1", Quantity: 3},
	), actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].Quantity != 5 {
		t.Errorf("expected one merged item of 5, got %+v", p.Items)
	}
	if onHand, _ := f.counters(a); onHand != 5 {
		t.Errorf("expected 5 left, got %d", onHand)
	}
}

func TestCreate_ShortfallLeavesNoTrace(t *testing.T) {
	f := newFixture()
	a := f.lot("P1", 10, "2024-07-01")
	f.lot("P2", 2, "2024-07-01")

	_, err := f.svc.Create(context.Background(), input(today,
		inventory.Request{ProductCode: "P1", Quantity: 4},
		inventory.Request{ProductCode: "P2", Quantity: 3},
	), actor)
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if onHand, _ := f.counters(a); onHand != 10 {
		t.Errorf("expected P1 untouched, got %d", onHand)
	}
	if len(f.procs.store) != 0 || len(f.acts.store) != 0 || len(f.pub.events) != 0 {
		t.Error("expected nothing recorded")
	}

	_, err = f.svc.Create(context.Background(), input(today, inventory.Request{ProductCode: "P9", Quantity: 1}), actor)
	if !errors.Is(err, inventory.ErrUnknownProduct) {
		t.Errorf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestCreate_DraftHoldsNoStock(t *testing.T) {
	f := newFixture()
	lot := f.lot("P1", 10, "2024-07-01")
	ctx := context.Background()

	in := input(today.AddDate(0, 0, 2), inventory.Request{ProductCode: "P1", Quantity: 4})
	in.Draft = true
	draft, err := f.svc.Create(ctx, in, actor)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if draft.Status != StatusCreated {
		t.Fatalf("expected criada, got %s", draft.Status)
	}
	if len(draft.Items) != 1 || draft.Items[0].LotID != lot || draft.Items[0].Quantity != 4 {
		t.Errorf("expected the allocation to be recorded, got %+v", draft.Items)
	}
	if onHand, reserved := f.counters(lot); onHand != 10 || reserved != 0 {
		t.Errorf("a draft must not move stock, got %d/%d", onHand, reserved)
	}
	if len(f.acts.store) != 0 {
		t.Errorf("expected no activity, got %+v", f.acts.store)
	}

	if _, err := f.svc.UpdateStatus(ctx, draft.ID, StatusApproved, "", actor); err != nil {
		t.Fatalf("approve draft: %v", err)
	}
	if onHand, reserved := f.counters(lot); onHand != 6 || reserved != 0 {
		t.Errorf("approval should consume 4, got %d/%d", onHand, reserved)
	}
	if len(f.acts.store) != 1 || f.acts.store[0].Type != inventory.ActivityConsumption {
		t.Errorf("expected one consumption, got %+v", f.acts.store)
	}
}

func TestCreate_DraftApprovalRechecksStock(t *testing.T) {
	f := newFixture()
	lot := f.lot("P1", 5, "2024-07-01")
	ctx := context.Background()

	in := input(today, inventory.Request{ProductCode: "P1", Quantity: 4})
	in.Draft = true
	draft, err := f.svc.Create(ctx, in, actor)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := f.svc.Create(ctx, input(today, inventory.Request{ProductCode: "P1", Quantity: 3}), actor); err != nil {
		t.Fatalf("units held by a draft stay allocatable: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, draft.ID, StatusApproved, "", actor); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if onHand, _ := f.counters(lot); onHand != 2 {
		t.Errorf("failed approval must not move stock, got %d", onHand)
	}
	if _, err := f.svc.UpdateStatus(ctx, draft.ID, StatusCancelled, "no stock", actor); err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	if onHand, _ := f.counters(lot); onHand != 2 {
		t.Errorf("cancelling a draft must not move stock, got %d", onHand)
	}
}

type registry map[string]*patient.Patient

func (r registry) GetByCode(_ context.Context, code string) (*patient.Patient, error) {
	p, ok := r[strings.ToUpper(code)]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return p, nil
}

func TestCreate_LinksRegisteredPatient(t *testing.T) {
	f := newFixture()
	lot := f.lot("P1", 5, "2024-07-01")
	reg := &patient.Patient{ID: uuid.New(), Code: "PAC-1", Name: "Maria Souza"}
	f.svc.SetPatients(registry{"PAC-1": reg})

	in := input(today, inventory.Request{ProductCode: "P1", Quantity: 2})
	in.PatientCode = "pac-1"
	in.PatientName = ""
	p, err := f.svc.Create(context.Background(), in, actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PatientID == nil || *p.PatientID != reg.ID {
		t.Errorf("expected link to %s, got %v", reg.ID, p.PatientID)
	}
	if p.PatientCode != "PAC-1" || p.PatientName != "Maria Souza" {
		t.Errorf("expected registered code and name, got %q %q", p.PatientCode, p.PatientName)
	}
	if onHand, _ := f.counters(lot); onHand != 3 {
		t.Errorf("expected 3 on hand, got %d", onHand)
	}
}

func TestCreate_UnknownPatientTouchesNothing(t *testing.T) {
	f := newFixture()
	lot := f.lot("P1", 5, "2024-07-01")
	f.svc.SetPatients(registry{})

	_, err := f.svc.Create(context.Background(), input(today, inventory.Request{ProductCode: "P1", Quantity: 2}), actor)
	if !errors.Is(err, ErrUnknownPatient) {
		t.Fatalf("expected ErrUnknownPatient, got %v", err)
	}
	if apperr.Classify(err) != apperr.CategoryValidation {
		t.Errorf("expected validation category, got %s", apperr.Classify(err))
	}
	if onHand, reserved := f.counters(lot); onHand != 5 || reserved != 0 {
		t.Errorf("expected untouched lot, got %d/%d", onHand, reserved)
	}
	if len(f.procs.store) != 0 || len(f.pub.events) != 0 {
		t.Error("a rejected procedure must leave no rows and no events")
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"no patient code", CreateInput{PatientName: "M", ScheduledFor: today, Products: []inventory.Request{{ProductCode: "P1", Quantity: 1}}}, nil},
		{"no patient name", CreateInput{PatientCode: "C", ScheduledFor: today, Products: []inventory.Request{{ProductCode: "P1", Quantity: 1}}}, nil},
		{"no date", CreateInput{PatientCode: "C", PatientName: "M", Products: []inventory.Request{{ProductCode: "P1", Quantity: 1}}}, nil},
		{"no products", CreateInput{PatientCode: "C", PatientName: "M", ScheduledFor: today}, nil},
		{"blank product", input(today, inventory.Request{ProductCode: " ", Quantity: 1}), nil},
		{"zero quantity", input(today, inventory.Request{ProductCode: "P1", Quantity: 0}), inventory.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.lot("P1", 10, "2024-07-01")
			_, err := f.svc.Create(context.Background(), tt.in, actor)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUpdateStatus_StockEffects(t *testing.T) {
	tests := []struct {
		name             string
		future           bool
		steps            []Status
		onHand, reserved int
	}{
		{"scheduled approved", true, []Status{StatusApproved}, 6, 0},
		{"scheduled cancelled", true, []Status{StatusCancelled}, 10, 0},
		{"scheduled rejected", true, []Status{StatusRejected}, 10, 0},
		{"approved cancelled", false, []Status{StatusCancelled}, 10, 0},
		{"approved completed", false, []Status{StatusCompleted}, 6, 0},
		{"scheduled approved cancelled", true, []Status{StatusApproved, StatusCancelled}, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			lot := f.lot("P1", 10, "2024-07-01")
			date := today
			if tt.future {
				date = today.AddDate(0, 1, 0)
			}
			p, err := f.svc.Create(context.Background(), input(date, inventory.Request{ProductCode: "P1", Quantity: 4}), actor)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			for _, st := range tt.steps {
				if p, err = f.svc.UpdateStatus(context.Background(), p.ID, st, "ok", actor); err != nil {
					t.Fatalf("to %s: %v", st, err)
				}
			}
			if onHand, reserved := f.counters(lot); onHand != tt.onHand || reserved != tt.reserved {
				t.Errorf("expected %d/%d, got %d/%d", tt.onHand, tt.reserved, onHand, reserved)
			}
			if len(p.History) != 1+len(tt.steps) {
				t.Errorf("expected %d history entries, got %d", 1+len(tt.steps), len(p.History))
			}
			stored, _ := f.svc.Get(context.Background(), p.ID)
			if stored.Status != tt.steps[len(tt.steps)-1] {
				t.Errorf("expected stored status %s, got %s", tt.steps[len(tt.steps)-1], stored.Status)
			}
		})
	}
}

func TestUpdateStatus_Rejections(t *testing.T) {
	f := newFixture()
	f.lot("P1", 10, "2024-07-01")
	ctx := context.Background()

	p, err := f.svc.Create(ctx, input(today, inventory.Request{ProductCode: "P1", Quantity: 2}), actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, p.ID, StatusApproved, "", actor); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for same status, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, p.ID, StatusRejected, "", actor); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for aprovada to reprovada, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, p.ID, Status("pendente"), "", actor); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := f.svc.UpdateStatus(ctx, uuid.New(), StatusCancelled, "", actor); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, p.ID, StatusCancelled, "", actor); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, p.ID, StatusApproved, "", actor); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected cancelled to be final, got %v", err)
	}
}

// Approving a scheduled procedure re-checks the stock on hand, so a lot that
// lost units to an adjustment cannot be consumed below zero.
func TestUpdateStatus_ApprovalRevalidatesStock(t *testing.T) {
	f := newFixture()
	lot := f.lot("P1", 4, "2024-07-01")
	ctx := context.Background()

	p, err := f.svc.Create(ctx, input(today.AddDate(0, 0, 5), inventory.Request{ProductCode: "P1", Quantity: 4}), actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	it := f.items.store[lot]
	it.QuantityOnHand = 2
	it.QuantityReserved = 4
	f.items.store[lot] = it

	if _, err := f.svc.UpdateStatus(ctx, p.ID, StatusApproved, "", actor); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.lot("P1", 20, "2024-07-01")
	ctx := context.Background()
	for _, d := range []time.Time{today, today, today.AddDate(0, 0, 1)} {
		if _, err := f.svc.Create(ctx, input(d, inventory.Request{ProductCode: "P1", Quantity: 1}), actor); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	st, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Total != 3 || st.ByStatus[StatusApproved] != 2 || st.ByStatus[StatusScheduled] != 1 || st.ByStatus[StatusCancelled] != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if _, ok := st.ByStatus[StatusCompleted]; !ok {
		t.Error("expected every status to be reported")
	}
}

func TestSearch_RejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	if _, _, err := f.svc.Search(context.Background(), map[string]string{"status": "x"}, 10, 0); err == nil {
		t.Error("expected error")
	}
	if _, _, err := f.svc.Search(context.Background(), map[string]string{"status": "agendada"}, 10, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func inputProduct(code string, qty int) inventory.Request {
	return inventory.Request{ProductCode: code, Quantity: qty}
}
