package storage

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"bybot/core"
)

// SQLStorage implements core.OrderStorage on a SQL database via GORM,
// for operators who want the order log queryable from outside the bot
type SQLStorage struct {
	db *gorm.DB
}

// FromSQL creates a SQL storage on the given dialector
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (core.OrderStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// The bot writes a handful of orders per signal; a small pool is
	// plenty.
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&core.Order{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStorage{db: db}, nil
}

// CreateOrder inserts a new order
func (s *SQLStorage) CreateOrder(order *core.Order) error {
	if result := s.db.Create(order); result.Error != nil {
		return fmt.Errorf("failed to create order: %w", result.Error)
	}
	return nil
}

// UpdateOrder saves an existing order
func (s *SQLStorage) UpdateOrder(order *core.Order) error {
	var existing core.Order
	if result := s.db.First(&existing, order.ID); result.Error != nil {
		return fmt.Errorf("order not found: %w", result.Error)
	}

	if result := s.db.Save(order); result.Error != nil {
		return fmt.Errorf("failed to update order: %w", result.Error)
	}

	return nil
}

// Orders returns stored orders matching every filter
func (s *SQLStorage) Orders(filters ...core.OrderFilter) ([]*core.Order, error) {
	var orders []*core.Order

	result := s.db.Order("updated_at").Find(&orders)
	if result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to fetch orders: %w", result.Error)
	}

	return lo.Filter(orders, func(order *core.Order, _ int) bool {
		for _, filter := range filters {
			if !filter(*order) {
				return false
			}
		}
		return true
	}), nil
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}
