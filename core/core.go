package core

import (
	"context"
)

// Exchange combines order management and market data access
type Exchange interface {
	Broker
	Feeder
}

// Feeder provides market data access
type Feeder interface {
	InstrumentInfo(ctx context.Context, symbol string) (InstrumentInfo, error)
	LastQuote(ctx context.Context, symbol string) (float64, error)
}

// Broker provides order and position management on the exchange
type Broker interface {
	Balance(ctx context.Context) (Balance, error)
	Positions(ctx context.Context) ([]Position, error)
	Position(ctx context.Context, symbol string) (Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	Cancel(ctx context.Context, order Order) error
	Order(ctx context.Context, symbol, exchangeID string) (Order, error)
	OrderHistory(ctx context.Context, limit int) ([]Order, error)
	WaitForPosition(ctx context.Context, symbol string, side SideType) error
}

// Notifier receives bot events for delivery to the operator
type Notifier interface {
	Notify(string)
	OnOrder(order Order)
	OnError(err error)
}

// NotifierWithStart is a notifier that runs its own receive loop
type NotifierWithStart interface {
	Notifier
	Start()
}
