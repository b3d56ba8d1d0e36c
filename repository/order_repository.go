package repository

import (
	"context"
	"time"

	"queenbee-api/models"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	CreateItem(ctx context.Context, item *models.OrderItem) error
	FindByID(ctx context.Context, id uint) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*models.Order, error)
	FindByCustomerEmail(ctx context.Context, email string) ([]models.OrderSummary, error)
	FindAll(ctx context.Context, limit, offset int, status models.OrderStatus) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) (bool, error)
	Totals(ctx context.Context, start, end *time.Time) (*models.OrderTotals, error)
}

type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items").Create(order).Error
}

func (r *GormOrderRepository) CreateItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("order_items.id ASC")
	})
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := preloadItems(r.db.WithContext(ctx)).First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := preloadItems(r.db.WithContext(ctx)).
		Where("payment_reference = ?", ref).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByCustomerEmail(ctx context.Context, email string) ([]models.OrderSummary, error) {
	summaries := []models.OrderSummary{}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("orders.id, orders.order_reference, orders.customer_email, orders.status, orders.total_amount, " +
			"orders.currency, orders.payment_reference, orders.created_at, orders.updated_at, " +
			"COUNT(order_items.id) AS item_count").
		Joins("LEFT JOIN order_items ON order_items.order_id = orders.id").
		Where("orders.customer_email = ?", email).
		Group("orders.id").
		Order("orders.created_at DESC, orders.id DESC").
		Scan(&summaries).Error
	return summaries, err
}

func (r *GormOrderRepository) FindAll(ctx context.Context, limit, offset int, status models.OrderStatus) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	filtered := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Order{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := preloadItems(filtered()).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	return orders, total, err
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Totals aggregates orders created in [start, end). Either bound may be nil.
func (r *GormOrderRepository) Totals(ctx context.Context, start, end *time.Time) (*models.OrderTotals, error) {
	inRange := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Order{})
		if start != nil {
			q = q.Where("created_at >= ?", *start)
		}
		if end != nil {
			q = q.Where("created_at < ?", *end)
		}
		return q
	}

	var agg struct {
		TotalOrders  int64
		TotalRevenue int64
	}
	err := inRange().
		Select("COUNT(*) AS total_orders, COALESCE(SUM(total_amount), 0) AS total_revenue").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	err = inRange().
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := &models.OrderTotals{
		TotalOrders:  agg.TotalOrders,
		TotalRevenue: agg.TotalRevenue,
		StatusCounts: make(map[models.OrderStatus]int64, len(rows)),
	}
	for _, row := range rows {
		totals.StatusCounts[row.Status] = row.Count
	}
	return totals, nil
}
