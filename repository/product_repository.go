package repository

import (
	"context"

	"queenbee-api/models"

	"gorm.io/gorm"
)

type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Product, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.Product, int64, error)
	// DecrementStock subtracts qty only while stock_quantity >= qty and
	// reports whether exactly one row changed. A missing product and a
	// short stock both report false.
	DecrementStock(ctx context.Context, id uint, qty int) (bool, error)
}

type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *GormProductRepository) ListActive(ctx context.Context, limit, offset int) ([]models.Product, int64, error) {
	var products []models.Product
	var total int64

	active := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Product{}).Where("is_active = ?", true)
	}
	if err := active().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := active().
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&products).Error
	return products, total, err
}

func (r *GormProductRepository) DecrementStock(ctx context.Context, id uint, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", id, qty).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
