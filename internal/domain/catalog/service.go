package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medbook/medbook/internal/platform/apperror"
)

type Service struct {
	categories Repository
}

func NewService(categories Repository) *Service {
	return &Service{categories: categories}
}

// CreateInput carries a new category request.
type CreateInput struct {
	Name        string
	Description *string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Category, error) {
	if in.Name == "" {
		return nil, apperror.BadRequest("Category name is required")
	}

	if _, err := s.categories.GetByName(ctx, in.Name); err == nil {
		return nil, apperror.BadRequest("Category already exists")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	category := &Category{Name: in.Name, Description: in.Description}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Category, error) {
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Category not found")
		}
		return nil, err
	}
	return category, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Category, int, error) {
	return s.categories.List(ctx, limit, offset)
}

// UpdateInput carries a partial category update. Nil fields stay untouched.
type UpdateInput struct {
	Name        *string
	Description *string
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Category, error) {
	category, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil && *in.Name != category.Name {
		if _, err := s.categories.GetByName(ctx, *in.Name); err == nil {
			return nil, apperror.BadRequest("Category name already exists")
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		category.Name = *in.Name
	}
	if in.Description != nil {
		category.Description = in.Description
	}

	if err := s.categories.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.categories.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("Category not found")
		}
		// 23503 is the postgres foreign_key_violation class.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperror.BadRequest("Category is in use and cannot be deleted")
		}
		return err
	}
	return nil
}

// Exists lets other domains validate category ids without importing the
// repository.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.categories.Exists(ctx, id)
}
