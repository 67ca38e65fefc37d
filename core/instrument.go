package core

// InstrumentInfo holds the trading filters of a linear contract
type InstrumentInfo struct {
	Symbol      string
	BaseCoin    string
	QuoteCoin   string
	QtyStep     float64 // lot size increment
	MinQuantity float64
	MaxQuantity float64
	TickSize    float64 // price increment
	MaxLeverage float64
}

// Balance represents the wallet balance of a single coin
type Balance struct {
	Coin          string
	WalletBalance float64
	Available     float64
}

// Position represents an open contract position on the exchange
type Position struct {
	Symbol         string
	Side           SideType
	Size           float64
	EntryPrice     float64
	MarkPrice      float64
	LiqPrice       float64
	UnrealisedPnL  float64
	CumRealisedPnL float64
	PositionValue  float64
	Leverage       float64
	TakeProfit     float64
	StopLoss       float64
	CreatedAt      int64 // exchange timestamp, unix milliseconds
}

// IsOpen returns true when the position has size on the exchange
func (p Position) IsOpen() bool {
	return p.Size > 0
}

// PnLPercent returns the unrealised profit relative to position value
func (p Position) PnLPercent() float64 {
	if p.PositionValue == 0 {
		return 0
	}
	return p.UnrealisedPnL / p.PositionValue * 100
}
