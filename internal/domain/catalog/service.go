package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	Code string
	Name string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	p := &Product{
		ID:     uuid.New(),
		Code:   normalizeCode(in.Code),
		Name:   strings.TrimSpace(in.Name),
		Active: true,
	}
	switch {
	case p.Code == "":
		return nil, invalid("code is required")
	case p.Name == "":
		return nil, invalid("name is required")
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get catalog product %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Product, error) {
	p, err := s.repo.GetByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("get catalog product %s: %w", code, err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Product, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Rename changes the display name. The code is the product's identity and
// never changes.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, name string) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name is required")
	}
	return s.change(ctx, id, func(p *Product) { p.Name = name })
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.change(ctx, id, func(p *Product) { p.Active = false })
}

func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.change(ctx, id, func(p *Product) { p.Active = true })
}

func (s *Service) change(ctx context.Context, id uuid.UUID, fn func(*Product)) (*Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(p)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update catalog product: %w", err)
	}
	return p, nil
}

// Delete removes a deactivated product.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Active {
		return fmt.Errorf("%w: %s", ErrStillActive, p.Code)
	}
	return s.repo.Delete(ctx, id)
}

// ProductName reports the name of an active catalog product. ok is false
// when the code is unknown or deactivated.
func (s *Service) ProductName(ctx context.Context, code string) (name string, ok bool, err error) {
	p, err := s.repo.GetByCode(ctx, normalizeCode(code))
	switch {
	case errors.Is(err, ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("look up catalog product %s: %w", code, err)
	}
	return p.Name, p.Active, nil
}
