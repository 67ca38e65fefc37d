// Package bybit implements the exchange ports against the Bybit V5 REST
// API for USDT linear contracts.
package bybit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"bybot/core"
	"bybot/exchange"
	"bybot/logger"
)

// All trading happens on the USDT perpetual market
const (
	category   = "linear"
	settleCoin = "USDT"
)

// leverageNotModified is returned when setting the leverage the position
// already has. It is not a failure.
const leverageNotModified = 110043

const (
	waitPositionAttempts = 5
	waitPositionDelay    = 2 * time.Second
)

// ErrOrderNotFound is returned when an order cannot be located on the
// exchange, neither open nor in recent history
var ErrOrderNotFound = errors.New("order not found")

// Config holds the connection parameters of the exchange client
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// Exchange is the Bybit V5 implementation of the exchange ports
type Exchange struct {
	client *client
	log    logger.Logger

	mu          sync.Mutex
	instruments map[string]core.InstrumentInfo
}

// Option configures the exchange client
type Option func(*Exchange)

// WithHost overrides the REST host, used by tests to point at a fake server
func WithHost(host string) Option {
	return func(e *Exchange) {
		e.client.baseURL = host
	}
}

// NewExchange creates a Bybit client for the given environment
func NewExchange(log logger.Logger, cfg Config, options ...Option) (*Exchange, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, core.ErrMissingCredentials
	}

	e := &Exchange{
		client:      newClient(cfg.APIKey, cfg.APISecret, cfg.Testnet),
		log:         log,
		instruments: make(map[string]core.InstrumentInfo),
	}

	for _, option := range options {
		option(e)
	}

	return e, nil
}

// InstrumentInfo returns the trading filters of a contract. Filters do
// not change within a session, so results are cached.
func (e *Exchange) InstrumentInfo(ctx context.Context, symbol string) (core.InstrumentInfo, error) {
	e.mu.Lock()
	info, ok := e.instruments[symbol]
	e.mu.Unlock()
	if ok {
		return info, nil
	}

	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)

	var result instrumentResult
	if err := e.client.get(ctx, "/v5/market/instruments-info", query, false, &result); err != nil {
		return core.InstrumentInfo{}, err
	}

	if len(result.List) == 0 {
		return core.InstrumentInfo{}, fmt.Errorf("unknown symbol %s", symbol)
	}

	raw := result.List[0]
	info = core.InstrumentInfo{
		Symbol:      raw.Symbol,
		BaseCoin:    raw.BaseCoin,
		QuoteCoin:   raw.QuoteCoin,
		QtyStep:     raw.LotSizeFilter.QtyStep.Float64(),
		MinQuantity: raw.LotSizeFilter.MinOrderQty.Float64(),
		MaxQuantity: raw.LotSizeFilter.MaxOrderQty.Float64(),
		TickSize:    raw.PriceFilter.TickSize.Float64(),
		MaxLeverage: raw.LeverageFilter.MaxLeverage.Float64(),
	}

	e.mu.Lock()
	e.instruments[symbol] = info
	e.mu.Unlock()

	return info, nil
}

// LastQuote returns the last traded price of a contract
func (e *Exchange) LastQuote(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)

	var result tickerResult
	if err := e.client.get(ctx, "/v5/market/tickers", query, false, &result); err != nil {
		return 0, err
	}

	if len(result.List) == 0 {
		return 0, fmt.Errorf("no ticker for symbol %s", symbol)
	}

	return result.List[0].LastPrice.Float64(), nil
}

// Balance returns the USDT balance of the unified trading account
func (e *Exchange) Balance(ctx context.Context) (core.Balance, error) {
	query := url.Values{}
	query.Set("accountType", "UNIFIED")
	query.Set("coin", settleCoin)

	var result walletResult
	if err := e.client.get(ctx, "/v5/account/wallet-balance", query, true, &result); err != nil {
		return core.Balance{}, err
	}

	if len(result.List) == 0 || len(result.List[0].Coin) == 0 {
		return core.Balance{Coin: settleCoin}, nil
	}

	account := result.List[0]
	return core.Balance{
		Coin:          account.Coin[0].Coin,
		WalletBalance: account.Coin[0].WalletBalance.Float64(),
		Available:     account.TotalAvailableBalance.Float64(),
	}, nil
}

// Positions returns all open USDT linear positions
func (e *Exchange) Positions(ctx context.Context) ([]core.Position, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("settleCoin", settleCoin)

	var result positionResult
	if err := e.client.get(ctx, "/v5/position/list", query, true, &result); err != nil {
		return nil, err
	}

	positions := make([]core.Position, 0, len(result.List))
	for _, raw := range result.List {
		position := raw.toPosition()
		if position.IsOpen() {
			positions = append(positions, position)
		}
	}

	return positions, nil
}

// Position returns the position of a single contract. A position with
// zero size means the contract has no exposure.
func (e *Exchange) Position(ctx context.Context, symbol string) (core.Position, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)

	var result positionResult
	if err := e.client.get(ctx, "/v5/position/list", query, true, &result); err != nil {
		return core.Position{}, err
	}

	if len(result.List) == 0 {
		return core.Position{Symbol: symbol}, nil
	}

	return result.List[0].toPosition(), nil
}

// SetLeverage sets both buy and sell leverage of a contract. The
// exchange rejects a no-op change; that answer is treated as success.
func (e *Exchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]string{
		"category":     category,
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}

	err := e.client.post(ctx, "/v5/position/set-leverage", body, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == leverageNotModified {
		return nil
	}

	return err
}

// CreateOrder submits an order. Limit orders with a trigger price become
// conditional orders; the trigger direction follows from the closing
// side, rising price triggers a sell and falling price triggers a buy.
func (e *Exchange) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	info, err := e.InstrumentInfo(ctx, req.Symbol)
	if err != nil {
		return core.Order{}, err
	}

	quantity := exchange.FloorToStep(req.Quantity, info.QtyStep)
	if err := exchange.ValidateQuantity(info, quantity); err != nil {
		return core.Order{}, err
	}

	body := map[string]string{
		"category":    category,
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   string(req.Type),
		"qty":         exchange.FormatQuantity(quantity, info.QtyStep),
		"timeInForce": "GTC",
		"positionIdx": "0",
	}

	if req.Type == core.OrderTypeLimit {
		body["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = strconv.FormatFloat(req.StopLoss, 'f', -1, 64)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "true"
	}
	if req.TriggerPrice > 0 {
		body["triggerPrice"] = strconv.FormatFloat(req.TriggerPrice, 'f', -1, 64)
		if req.Side == core.SideTypeSell {
			body["triggerDirection"] = "1" // triggered when price rises
		} else {
			body["triggerDirection"] = "2" // triggered when price falls
		}
	}

	var result orderCreateResult
	if err := e.client.post(ctx, "/v5/order/create", body, &result); err != nil {
		return core.Order{}, &exchange.OrderError{
			Err:      err,
			Symbol:   req.Symbol,
			Quantity: quantity,
		}
	}

	e.log.WithFields(map[string]any{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"type":     req.Type,
		"quantity": quantity,
	}).Info("order submitted")

	order := core.Order{
		ExchangeID: result.OrderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Status:     core.OrderStatusTypeNew,
		Price:      req.Price,
		Quantity:   quantity,
		ReduceOnly: req.ReduceOnly,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if req.TriggerPrice > 0 {
		order.Status = core.OrderStatusTypeUntriggered
		order.Price = req.TriggerPrice
	}
	if req.StopLoss > 0 {
		stop := req.StopLoss
		order.Stop = &stop
	}

	return order, nil
}

// Cancel cancels an open order
func (e *Exchange) Cancel(ctx context.Context, order core.Order) error {
	body := map[string]string{
		"category": category,
		"symbol":   order.Symbol,
		"orderId":  order.ExchangeID,
	}

	return e.client.post(ctx, "/v5/order/cancel", body, nil)
}

// Order fetches the current state of an order, checking open orders
// first and falling back to recent history for terminal states
func (e *Exchange) Order(ctx context.Context, symbol, exchangeID string) (core.Order, error) {
	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		query := url.Values{}
		query.Set("category", category)
		query.Set("symbol", symbol)
		query.Set("orderId", exchangeID)

		var result orderListResult
		if err := e.client.get(ctx, path, query, true, &result); err != nil {
			return core.Order{}, err
		}

		if len(result.List) > 0 {
			return result.List[0].toOrder(), nil
		}
	}

	return core.Order{}, fmt.Errorf("%w: %s %s", ErrOrderNotFound, symbol, exchangeID)
}

// OrderHistory returns the most recent orders across all contracts
func (e *Exchange) OrderHistory(ctx context.Context, limit int) ([]core.Order, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("settleCoin", settleCoin)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var result orderListResult
	if err := e.client.get(ctx, "/v5/order/history", query, true, &result); err != nil {
		return nil, err
	}

	orders := make([]core.Order, 0, len(result.List))
	for _, raw := range result.List {
		orders = append(orders, raw.toOrder())
	}

	return orders, nil
}

// WaitForPosition polls until a market entry shows up as an open
// position. The match is on side so a stale opposite position does not
// satisfy the wait.
func (e *Exchange) WaitForPosition(ctx context.Context, symbol string, side core.SideType) error {
	for attempt := 0; attempt < waitPositionAttempts; attempt++ {
		position, err := e.Position(ctx, symbol)
		if err != nil {
			return err
		}

		if position.IsOpen() && position.Side == side {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPositionDelay):
		}
	}

	return fmt.Errorf("%w: %s did not open after %d attempts",
		core.ErrNoPosition, symbol, waitPositionAttempts)
}

var _ core.Exchange = (*Exchange)(nil)
