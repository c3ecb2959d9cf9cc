package service

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type CatalogService struct {
	repo repository.CatalogStore
}

func NewCatalogService(repo repository.CatalogStore) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *CatalogService) UpsertProduct(ctx context.Context, p *domain.Product) error {
	if p.ID <= 0 || p.Name == "" {
		return validationError("product id and name are required")
	}
	if p.Price.IsNegative() || p.Stock < 0 {
		return validationError("price and stock must not be negative")
	}
	return s.repo.UpsertProduct(ctx, p)
}
