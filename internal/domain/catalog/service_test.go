package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

type memRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]Product
}

func newMemRepo() *memRepo { return &memRepo{store: make(map[uuid.UUID]Product)} }

func (m *memRepo) Create(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.store {
		if q.Code == p.Code {
			return ErrDuplicateCode
		}
	}
	m.store[p.ID] = *p
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) GetByCode(_ context.Context, code string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Update(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p.ID]; !ok {
		return ErrNotFound
	}
	m.store[p.ID] = *p
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

func (m *memRepo) List(_ context.Context, f ListFilter, _, _ int) ([]*Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Product
	q := strings.ToLower(f.Search)
	for _, p := range m.store {
		if f.ActiveOnly && !p.Active {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Code+" "+p.Name), q) {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func seed(t *testing.T, s *Service, code, name string) *Product {
	t.Helper()
	p, err := s.Create(context.Background(), CreateInput{Code: code, Name: name})
	if err != nil {
		t.Fatalf("create %s: %v", code, err)
	}
	return p
}

func TestCreate(t *testing.T) {
	s := NewService(newMemRepo())
	p := seed(t, s, " BTX-100 ", " Toxina 100U ")
	if p.Code != "BTX-100" || p.Name != "Toxina 100U" || !p.Active {
		t.Errorf("unexpected product %+v", p)
	}

	_, err := s.Create(context.Background(), CreateInput{Code: "BTX-100", Name: "Outra"})
	if !errors.Is(err, ErrDuplicateCode) || apperr.Classify(err) != apperr.CategoryConflict {
		t.Errorf("expected conflict, got %v", err)
	}
	for _, in := range []CreateInput{{Code: " ", Name: "X"}, {Code: "X", Name: ""}} {
		if _, err := s.Create(context.Background(), in); apperr.Classify(err) != apperr.CategoryValidation {
			t.Errorf("%+v: expected validation error, got %v", in, err)
		}
	}
}

func TestProductName(t *testing.T) {
	s := NewService(newMemRepo())
	p := seed(t, s, "BTX-100", "Toxina 100U")
	ctx := context.Background()

	name, ok, err := s.ProductName(ctx, " BTX-100")
	if err != nil || !ok || name != "Toxina 100U" {
		t.Errorf("got %q %v %v", name, ok, err)
	}
	if _, ok, err := s.ProductName(ctx, "HA-200"); ok || err != nil {
		t.Errorf("unknown code: ok=%v err=%v", ok, err)
	}

	if _, err := s.Deactivate(ctx, p.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, ok, _ := s.ProductName(ctx, "BTX-100"); ok {
		t.Error("a deactivated product must not be receivable")
	}
	if _, err := s.Reactivate(ctx, p.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, ok, _ := s.ProductName(ctx, "BTX-100"); !ok {
		t.Error("a reactivated product must be receivable again")
	}
}

func TestRenameAndDelete(t *testing.T) {
	repo := newMemRepo()
	s := NewService(repo)
	p := seed(t, s, "HA-200", "Ácido")
	ctx := context.Background()

	got, err := s.Rename(ctx, p.ID, "Ácido Hialurônico 1ml")
	if err != nil || got.Name != "Ácido Hialurônico 1ml" || got.Code != "HA-200" {
		t.Fatalf("rename = %+v, %v", got, err)
	}
	if _, err := s.Rename(ctx, p.ID, " "); apperr.Classify(err) != apperr.CategoryValidation {
		t.Errorf("expected validation error, got %v", err)
	}

	err = s.Delete(ctx, p.ID)
	if !errors.Is(err, ErrStillActive) || apperr.Classify(err) != apperr.CategoryBusiness {
		t.Fatalf("expected ErrStillActive, got %v", err)
	}
	if _, err := s.Deactivate(ctx, p.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := s.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Deactivate(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}
