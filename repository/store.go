package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that take part in order placement and
// scopes them to a transaction when asked to.
type Store interface {
	Orders() OrderRepository
	Customers() CustomerRepository
	Products() ProductRepository

	// Transaction runs fn with repositories bound to one database
	// transaction. The transaction commits when fn returns nil and rolls
	// back when fn returns an error or panics.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Orders() OrderRepository {
	return NewGormOrderRepository(s.db)
}

func (s *GormStore) Customers() CustomerRepository {
	return NewGormCustomerRepository(s.db)
}

func (s *GormStore) Products() ProductRepository {
	return NewGormProductRepository(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
