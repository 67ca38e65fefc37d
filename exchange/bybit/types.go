package bybit

import (
	"encoding/json"
	"strconv"
	"time"

	"bybot/core"
)

// number tolerates the V5 API habit of sending numerics as strings,
// including the empty string for absent values
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		*n = 0
		return nil
	}

	s := string(data)
	if s[0] == '"' {
		var err error
		s, err = strconv.Unquote(s)
		if err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}

	*n = number(f)
	return nil
}

func (n number) Float64() float64 {
	return float64(n)
}

type instrumentResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		BaseCoin      string `json:"baseCoin"`
		QuoteCoin     string `json:"quoteCoin"`
		LotSizeFilter struct {
			QtyStep     number `json:"qtyStep"`
			MinOrderQty number `json:"minOrderQty"`
			MaxOrderQty number `json:"maxOrderQty"`
		} `json:"lotSizeFilter"`
		PriceFilter struct {
			TickSize number `json:"tickSize"`
		} `json:"priceFilter"`
		LeverageFilter struct {
			MaxLeverage number `json:"maxLeverage"`
		} `json:"leverageFilter"`
	} `json:"list"`
}

type tickerResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice number `json:"lastPrice"`
	} `json:"list"`
}

type walletResult struct {
	List []struct {
		TotalAvailableBalance number `json:"totalAvailableBalance"`
		Coin                  []struct {
			Coin          string `json:"coin"`
			WalletBalance number `json:"walletBalance"`
		} `json:"coin"`
	} `json:"list"`
}

type wirePosition struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Size           number `json:"size"`
	AvgPrice       number `json:"avgPrice"`
	MarkPrice      number `json:"markPrice"`
	LiqPrice       number `json:"liqPrice"`
	UnrealisedPnl  number `json:"unrealisedPnl"`
	CumRealisedPnl number `json:"cumRealisedPnl"`
	PositionValue  number `json:"positionValue"`
	Leverage       number `json:"leverage"`
	TakeProfit     number `json:"takeProfit"`
	StopLoss       number `json:"stopLoss"`
	CreatedTime    number `json:"createdTime"`
}

type positionResult struct {
	List []wirePosition `json:"list"`
}

func (w wirePosition) toPosition() core.Position {
	return core.Position{
		Symbol:         w.Symbol,
		Side:           core.SideType(w.Side),
		Size:           w.Size.Float64(),
		EntryPrice:     w.AvgPrice.Float64(),
		MarkPrice:      w.MarkPrice.Float64(),
		LiqPrice:       w.LiqPrice.Float64(),
		UnrealisedPnL:  w.UnrealisedPnl.Float64(),
		CumRealisedPnL: w.CumRealisedPnl.Float64(),
		PositionValue:  w.PositionValue.Float64(),
		Leverage:       w.Leverage.Float64(),
		TakeProfit:     w.TakeProfit.Float64(),
		StopLoss:       w.StopLoss.Float64(),
		CreatedAt:      int64(w.CreatedTime),
	}
}

type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type wireOrder struct {
	OrderID      string `json:"orderId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderType    string `json:"orderType"`
	OrderStatus  string `json:"orderStatus"`
	Price        number `json:"price"`
	Qty          number `json:"qty"`
	StopLoss     number `json:"stopLoss"`
	TriggerPrice number `json:"triggerPrice"`
	ReduceOnly   bool   `json:"reduceOnly"`
	CreatedTime  number `json:"createdTime"`
	UpdatedTime  number `json:"updatedTime"`
}

type orderListResult struct {
	List []wireOrder `json:"list"`
}

func (w wireOrder) toOrder() core.Order {
	order := core.Order{
		ExchangeID: w.OrderID,
		Symbol:     w.Symbol,
		Side:       core.SideType(w.Side),
		Type:       core.OrderType(w.OrderType),
		Status:     core.OrderStatusType(w.OrderStatus),
		Price:      w.Price.Float64(),
		Quantity:   w.Qty.Float64(),
		ReduceOnly: w.ReduceOnly,
		CreatedAt:  time.UnixMilli(int64(w.CreatedTime)),
		UpdatedAt:  time.UnixMilli(int64(w.UpdatedTime)),
	}

	if stop := w.StopLoss.Float64(); stop > 0 {
		order.Stop = &stop
	}

	// Conditional orders report price on triggerPrice until triggered
	if order.Price == 0 && w.TriggerPrice > 0 {
		order.Price = w.TriggerPrice.Float64()
	}

	return order
}

var _ json.Unmarshaler = (*number)(nil)
