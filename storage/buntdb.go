// Package storage persists the orders the bot has placed, so a restart
// does not lose track of open entries and their take profit ladders.
package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/tidwall/buntdb"

	"bybot/core"
)

// BuntStorage implements core.OrderStorage on top of BuntDB
type BuntStorage struct {
	lastID int64
	db     *buntdb.DB
}

// FromMemory creates an in-memory storage, used by tests and dry runs
func FromMemory() (core.OrderStorage, error) {
	return NewBuntStorage(":memory:")
}

// FromFile creates a file-backed storage inside the config directory
func FromFile(file string) (core.OrderStorage, error) {
	return NewBuntStorage(file)
}

// NewBuntStorage opens the order database. Orders are stored as JSON
// keyed by their numeric ID; the ID counter resumes from the highest
// key already present so reopened databases keep IDs unique.
func NewBuntStorage(sourceFile string) (core.OrderStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex("update_index", "*", buntdb.IndexJSON("updated_at"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	storage := &BuntStorage{db: db}
	if err := storage.restoreLastID(); err != nil {
		return nil, err
	}

	return storage, nil
}

func (b *BuntStorage) restoreLastID() error {
	return b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, _ string) bool {
			if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > b.lastID {
				b.lastID = id
			}
			return true
		})
	})
}

func (b *BuntStorage) nextID() int64 {
	return atomic.AddInt64(&b.lastID, 1)
}

// CreateOrder stores a new order, assigning it a local ID
func (b *BuntStorage) CreateOrder(order *core.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		order.ID = b.nextID()

		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		if _, _, err := tx.Set(strconv.FormatInt(order.ID, 10), string(content), nil); err != nil {
			return fmt.Errorf("failed to store order: %w", err)
		}

		return nil
	})
}

// UpdateOrder replaces a stored order. The order must already exist.
func (b *BuntStorage) UpdateOrder(order *core.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		id := strconv.FormatInt(order.ID, 10)

		if _, err := tx.Get(id); err != nil {
			return fmt.Errorf("order %s not found: %w", id, err)
		}

		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		if _, _, err := tx.Set(id, string(content), nil); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		return nil
	})
}

// Orders returns stored orders matching every filter, ordered by their
// last update time
func (b *BuntStorage) Orders(filters ...core.OrderFilter) ([]*core.Order, error) {
	orders := make([]*core.Order, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		var unmarshalErr error
		iterErr := tx.Ascend("update_index", func(_, value string) bool {
			var order core.Order
			if unmarshalErr = json.Unmarshal([]byte(value), &order); unmarshalErr != nil {
				return false
			}

			for _, filter := range filters {
				if !filter(order) {
					return true
				}
			}

			orders = append(orders, &order)
			return true
		})

		if unmarshalErr != nil {
			return fmt.Errorf("corrupt order record: %w", unmarshalErr)
		}

		return iterErr
	})

	if err != nil {
		return nil, err
	}

	return orders, nil
}

// Close closes the database
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
