package repository

import (
	"context"

	"queenbee-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CustomerRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Customer, error)
	Upsert(ctx context.Context, customer *models.Customer) error
	UpdateDisplayName(ctx context.Context, id uint, name string) error
}

type GormCustomerRepository struct {
	db *gorm.DB
}

func NewGormCustomerRepository(db *gorm.DB) CustomerRepository {
	return &GormCustomerRepository{db: db}
}

func (r *GormCustomerRepository) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// Upsert inserts the customer or, when the email is already taken, keeps
// the existing row and refreshes its display name if one was given. The
// stored row is scanned back into customer either way.
func (r *GormCustomerRepository) Upsert(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "email"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"display_name": gorm.Expr("COALESCE(NULLIF(EXCLUDED.display_name, ''), customers.display_name)"),
				}),
			},
			clause.Returning{},
		).
		Create(customer).Error
}

func (r *GormCustomerRepository) UpdateDisplayName(ctx context.Context, id uint, name string) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Update("display_name", name).Error
}
