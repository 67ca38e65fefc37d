package core

import (
	"fmt"
	"time"
)

// OrderFilter defines a function type for filtering orders
type OrderFilter func(order Order) bool

// SideType represents the direction of an order (Buy or Sell)
type SideType string

// OrderType represents the type of order (Limit or Market)
type OrderType string

// OrderStatusType represents the status of an order (New, Filled, etc.)
type OrderStatusType string

// Order side constants, as reported by the Bybit V5 API
const (
	SideTypeBuy  SideType = "Buy"
	SideTypeSell SideType = "Sell"
)

// Order type constants
const (
	OrderTypeLimit  OrderType = "Limit"
	OrderTypeMarket OrderType = "Market"
)

// Order status constants
const (
	OrderStatusTypeNew             OrderStatusType = "New"
	OrderStatusTypePartiallyFilled OrderStatusType = "PartiallyFilled"
	OrderStatusTypeFilled          OrderStatusType = "Filled"
	OrderStatusTypeCancelled       OrderStatusType = "Cancelled"
	OrderStatusTypePendingCancel   OrderStatusType = "PendingCancel"
	OrderStatusTypeRejected        OrderStatusType = "Rejected"
	OrderStatusTypeUntriggered     OrderStatusType = "Untriggered"
)

// Opposite returns the closing side for a position side
func (s SideType) Opposite() SideType {
	if s == SideTypeBuy {
		return SideTypeSell
	}
	return SideTypeBuy
}

// OrderRequest describes an order to be submitted to the exchange
type OrderRequest struct {
	Symbol       string
	Side         SideType
	Type         OrderType
	Quantity     float64
	Price        float64 // required for limit orders
	StopLoss     float64 // attached stop loss, zero to omit
	TriggerPrice float64 // conditional trigger, zero for plain orders
	ReduceOnly   bool
}

// Order represents a trading order with its properties and status
type Order struct {
	ID         int64           `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	ExchangeID string          `db:"exchange_id" json:"exchange_id"`
	Symbol     string          `db:"symbol" json:"symbol"`
	Side       SideType        `db:"side" json:"side"`
	Type       OrderType       `db:"type" json:"type"`
	Status     OrderStatusType `db:"status" json:"status"`
	Price      float64         `db:"price" json:"price"`
	Quantity   float64         `db:"quantity" json:"quantity"`
	ReduceOnly bool            `db:"reduce_only" json:"reduce_only"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Stop loss attached to the entry order, nil when absent
	Stop *float64 `db:"stop" json:"stop"`
}

// GetValue returns the total value of the order (price * quantity)
func (o Order) GetValue() float64 {
	return o.Price * o.Quantity
}

// IsBuy returns true if the order is a buy order
func (o Order) IsBuy() bool {
	return o.Side == SideTypeBuy
}

// IsSell returns true if the order is a sell order
func (o Order) IsSell() bool {
	return o.Side == SideTypeSell
}

// IsActive returns true if the order is in a state the exchange may still fill
func (o Order) IsActive() bool {
	return o.Status == OrderStatusTypeNew ||
		o.Status == OrderStatusTypePartiallyFilled ||
		o.Status == OrderStatusTypeUntriggered
}

// IsFilled returns true if the order is completely filled
func (o Order) IsFilled() bool {
	return o.Status == OrderStatusTypeFilled
}

// String returns a human-readable representation of the order
func (o Order) String() string {
	return fmt.Sprintf("[%s] %s %s | ID: %d, Type: %s, %f x $%f (~$%.2f)",
		o.Status, o.Side, o.Symbol, o.ID, o.Type, o.Quantity, o.Price, o.Quantity*o.Price)
}
