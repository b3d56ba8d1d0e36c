package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "queenbee-api/common/errors"
	"queenbee-api/models"
	"queenbee-api/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProductListResult struct {
	Products []models.Product `json:"products"`
	Meta     ListMeta         `json:"meta"`
}

type ProductService interface {
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	ListProducts(ctx context.Context, limit, offset int) (*ProductListResult, error)
}

type productService struct {
	repo   repository.ProductRepository
	cache  ProductCache
	logger *zap.Logger
}

// NewProductService builds the storefront product reader. cache may be nil.
func NewProductService(repo repository.ProductRepository, cache ProductCache, logger *zap.Logger) ProductService {
	return &productService{repo: repo, cache: cache, logger: logger}
}

func (s *productService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	if s.cache != nil {
		if product, ok := s.cache.GetProduct(ctx, id); ok {
			return product, nil
		}
	}

	product, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !product.IsActive) {
		return nil, apperrors.NotFound(fmt.Sprintf("product %d not found", id))
	}
	if err != nil {
		return nil, apperrors.Storage("failed to fetch product", err)
	}

	if s.cache != nil {
		s.cache.SetProduct(ctx, product)
	}
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context, limit, offset int) (*ProductListResult, error) {
	limit, offset = clampListParams(limit, offset)

	if s.cache != nil {
		if result, ok := s.cache.GetProductList(ctx, limit, offset); ok {
			return result, nil
		}
	}

	products, total, err := s.repo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Storage("failed to list products", err)
	}
	if products == nil {
		products = []models.Product{}
	}

	result := &ProductListResult{
		Products: products,
		Meta: ListMeta{
			Limit:   limit,
			Offset:  offset,
			Total:   total,
			HasMore: int64(offset+len(products)) < total,
		},
	}
	if s.cache != nil {
		s.cache.SetProductList(ctx, limit, offset, result)
	}
	return result, nil
}
