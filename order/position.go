package order

import (
	"math"
	"time"

	"bybot/core"
)

// TradeResult contains the outcome of a closed or reduced position
type TradeResult struct {
	Symbol        string
	ProfitPercent float64
	ProfitValue   float64
	Side          core.SideType
	Duration      time.Duration
	CreatedAt     time.Time
}

// Position tracks the locally known exposure built from filled orders
type Position struct {
	Side      core.SideType
	CreatedAt time.Time
	AvgPrice  float64
	Quantity  float64
}

// Update modifies the position based on a filled order. It returns a
// trade result when the order closes or reduces the position.
func (p *Position) Update(order *core.Order) (result *TradeResult, finished bool) {
	price := order.Price

	// Same side adds to the position at a new weighted average price
	if p.Side == order.Side {
		p.AvgPrice = weightedAverage(p.AvgPrice, p.Quantity, price, order.Quantity)
		p.Quantity += order.Quantity
		return nil, false
	}

	closedQuantity := math.Min(p.Quantity, order.Quantity)

	// Profit sign depends on the position direction
	diff := price - p.AvgPrice
	if p.Side == core.SideTypeSell {
		diff = p.AvgPrice - price
	}

	result = &TradeResult{
		Symbol:        order.Symbol,
		ProfitPercent: diff / p.AvgPrice,
		ProfitValue:   diff * closedQuantity,
		Side:          p.Side,
		Duration:      order.CreatedAt.Sub(p.CreatedAt),
		CreatedAt:     order.CreatedAt,
	}

	switch {
	case p.Quantity == order.Quantity:
		finished = true
	case p.Quantity > order.Quantity:
		p.Quantity -= order.Quantity
	default:
		// Position reversed
		p.Quantity = order.Quantity - p.Quantity
		p.Side = order.Side
		p.CreatedAt = order.CreatedAt
		p.AvgPrice = price
	}

	return result, finished
}

func weightedAverage(price1, quantity1, price2, quantity2 float64) float64 {
	return (price1*quantity1 + price2*quantity2) / (quantity1 + quantity2)
}
