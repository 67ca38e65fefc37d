// Package order executes parsed trade signals against the exchange and
// keeps the local order log in sync with what the exchange reports.
package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bybot/config"
	"bybot/core"
	"bybot/exchange"
	"bybot/logger"
	"bybot/signal"
)

// Status represents the current state of the order controller
type Status string

// Available controller statuses
const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// updateInterval is how often pending orders are reconciled against the
// exchange
const updateInterval = 5 * time.Second

// Settings provides the sizing parameters used when executing a signal
type Settings interface {
	TradingParams() config.TradingParams
}

// Controller turns signals into exchange orders and tracks their fate
type Controller struct {
	exchange  core.Exchange
	storage   core.OrderStorage
	settings  Settings
	log       logger.Logger
	orderFeed *Feed
	notifier  core.Notifier

	mu       sync.Mutex
	results  map[string]*TradeSummary
	position map[string]*Position
	finish   chan bool
	done     chan struct{}
	status   Status
}

// NewController creates a new order controller
func NewController(
	exchange core.Exchange,
	storage core.OrderStorage,
	settings Settings,
	log logger.Logger,
	orderFeed *Feed,
) *Controller {
	return &Controller{
		exchange:  exchange,
		storage:   storage,
		settings:  settings,
		log:       log,
		orderFeed: orderFeed,
		results:   make(map[string]*TradeSummary),
		position:  make(map[string]*Position),
		finish:    make(chan bool),
		status:    StatusStopped,
	}
}

// SetNotifier configures the notifier receiving order events
func (c *Controller) SetNotifier(notifier core.Notifier) {
	c.notifier = notifier
}

// Status returns the current controller status
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start begins the order reconciliation loop
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		return
	}
	c.status = StatusRunning
	c.done = make(chan struct{})
	done := c.done

	go func() {
		defer close(done)
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.updateOrders(ctx)
			case <-c.finish:
				return
			case <-ctx.Done():
				// Mark the controller stopped so a late Stop call
				// does not wait for a receiver that already exited
				c.mu.Lock()
				c.status = StatusStopped
				c.mu.Unlock()
				return
			}
		}
	}()

	c.log.Info("order controller started")
}

// Stop halts the reconciliation loop after a final pass
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.status != StatusRunning {
		c.mu.Unlock()
		return
	}
	c.status = StatusStopped
	done := c.done
	c.mu.Unlock()

	c.updateOrders(ctx)

	// The loop may already be gone if its context was canceled
	select {
	case c.finish <- true:
	case <-done:
	}
	c.log.Info("order controller stopped")
}

// Summaries returns a snapshot of the per-symbol trade summaries. The
// reconciliation loop mutates the live map under the controller mutex,
// so callers get value copies instead of the map itself.
func (c *Controller) Summaries() map[string]TradeSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summaries := make(map[string]TradeSummary, len(c.results))
	for symbol, summary := range c.results {
		summaries[symbol] = *summary
	}
	return summaries
}

// Balance returns the settlement coin balance of the account
func (c *Controller) Balance(ctx context.Context) (core.Balance, error) {
	return c.exchange.Balance(ctx)
}

// Positions returns the open positions on the exchange
func (c *Controller) Positions(ctx context.Context) ([]core.Position, error) {
	return c.exchange.Positions(ctx)
}

// LastQuote returns the last traded price of a contract
func (c *Controller) LastQuote(ctx context.Context, symbol string) (float64, error) {
	return c.exchange.LastQuote(ctx, symbol)
}

// OrderHistory returns the most recent orders on the exchange
func (c *Controller) OrderHistory(ctx context.Context, limit int) ([]core.Order, error) {
	return c.exchange.OrderHistory(ctx, limit)
}

// ExecuteSignal places the orders a signal asks for: the entry with its
// stop loss attached, then the take profit ladder as reduce-only
// conditional orders. The position size is the configured balance
// fraction with leverage applied, divided by the entry price.
func (c *Controller) ExecuteSignal(ctx context.Context, s signal.Signal) ([]core.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := c.exchange.InstrumentInfo(ctx, s.Symbol)
	if err != nil {
		return nil, c.reportError(err)
	}

	params := c.settings.TradingParams()
	if err := c.exchange.SetLeverage(ctx, s.Symbol, params.Leverage); err != nil {
		return nil, c.reportError(fmt.Errorf("failed to set leverage: %w", err))
	}

	balance, err := c.exchange.Balance(ctx)
	if err != nil {
		return nil, c.reportError(err)
	}

	entryPrice := s.Entry
	if s.IsMarket() {
		if entryPrice, err = c.exchange.LastQuote(ctx, s.Symbol); err != nil {
			return nil, c.reportError(err)
		}
	}

	quantity := exchange.FloorToStep(
		balance.Available*params.BalancePercentage*float64(params.Leverage)/entryPrice,
		info.QtyStep,
	)
	if err := exchange.ValidateQuantity(info, quantity); err != nil {
		return nil, c.reportError(err)
	}

	c.log.WithFields(map[string]any{
		"symbol":   s.Symbol,
		"side":     s.Side,
		"entry":    entryPrice,
		"quantity": quantity,
		"leverage": params.Leverage,
	}).Info("executing signal")

	entryReq := core.OrderRequest{
		Symbol:   s.Symbol,
		Side:     s.Side,
		Type:     core.OrderTypeLimit,
		Quantity: quantity,
		Price:    s.Entry,
		StopLoss: s.StopLoss,
	}
	if s.IsMarket() {
		entryReq.Type = core.OrderTypeMarket
		entryReq.Price = 0
	}

	entry, err := c.exchange.CreateOrder(ctx, entryReq)
	if err != nil {
		return nil, c.reportError(err)
	}
	if err := c.persist(&entry); err != nil {
		return nil, err
	}

	// Market entries must show up as a position before reduce-only
	// targets are accepted by the exchange
	if s.IsMarket() {
		if err := c.exchange.WaitForPosition(ctx, s.Symbol, s.Side); err != nil {
			return nil, c.reportError(err)
		}
	}

	orders := []core.Order{entry}
	targetQty := exchange.FloorToStep(quantity/float64(len(s.TakeProfits)), info.QtyStep)
	if targetQty < info.MinQuantity {
		c.log.WithField("symbol", s.Symbol).
			Warn("take profit slice below minimum lot, skipping ladder")
		return orders, nil
	}

	for _, target := range s.TakeProfits {
		tp, err := c.exchange.CreateOrder(ctx, core.OrderRequest{
			Symbol:       s.Symbol,
			Side:         s.Side.Opposite(),
			Type:         core.OrderTypeLimit,
			Quantity:     targetQty,
			Price:        target,
			TriggerPrice: target,
			ReduceOnly:   true,
		})
		if err != nil {
			c.reportError(err)
			continue
		}

		if err := c.persist(&tp); err != nil {
			return orders, err
		}
		orders = append(orders, tp)
	}

	return orders, nil
}

// ClosePosition closes a fraction of an open position with a market
// reduce-only order. A fraction of 1 closes the whole position.
func (c *Controller) ClosePosition(ctx context.Context, symbol string, fraction float64) (core.Order, error) {
	if fraction <= 0 || fraction > 1 {
		return core.Order{}, fmt.Errorf("%w: %.4f", core.ErrInvalidPercentage, fraction)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	position, err := c.exchange.Position(ctx, symbol)
	if err != nil {
		return core.Order{}, c.reportError(err)
	}
	if !position.IsOpen() {
		return core.Order{}, fmt.Errorf("%w: %s", core.ErrNoPosition, symbol)
	}

	info, err := c.exchange.InstrumentInfo(ctx, symbol)
	if err != nil {
		return core.Order{}, c.reportError(err)
	}

	quantity := exchange.FloorToStep(position.Size*fraction, info.QtyStep)
	if quantity < info.MinQuantity {
		quantity = position.Size
	}

	order, err := c.exchange.CreateOrder(ctx, core.OrderRequest{
		Symbol:     symbol,
		Side:       position.Side.Opposite(),
		Type:       core.OrderTypeMarket,
		Quantity:   quantity,
		ReduceOnly: true,
	})
	if err != nil {
		return core.Order{}, c.reportError(err)
	}

	if err := c.persist(&order); err != nil {
		return core.Order{}, err
	}

	c.log.WithFields(map[string]any{
		"symbol":   symbol,
		"fraction": fraction,
		"quantity": quantity,
	}).Info("position close submitted")

	return order, nil
}

// CloseAll closes every open position at market
func (c *Controller) CloseAll(ctx context.Context) ([]core.Order, error) {
	positions, err := c.exchange.Positions(ctx)
	if err != nil {
		return nil, c.reportError(err)
	}

	var orders []core.Order
	for _, position := range positions {
		order, err := c.ClosePosition(ctx, position.Symbol, 1)
		if err != nil {
			c.reportError(err)
			continue
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// Cancel cancels an order and marks it pending in the local log
func (c *Controller) Cancel(ctx context.Context, order core.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.exchange.Cancel(ctx, order); err != nil {
		return c.reportError(err)
	}

	order.Status = core.OrderStatusTypePendingCancel
	if err := c.storage.UpdateOrder(&order); err != nil {
		return c.reportError(err)
	}

	c.log.Infof("[ORDER CANCELED] %s", order)
	return nil
}

// persist stores a new order and publishes it on the feed. Callers must
// hold the mutex.
func (c *Controller) persist(order *core.Order) error {
	if err := c.storage.CreateOrder(order); err != nil {
		return c.reportError(err)
	}

	go c.orderFeed.Publish(*order, true)
	c.log.Infof("[ORDER CREATED] %s", order)
	return nil
}

// updateOrders reconciles pending orders against the exchange
func (c *Controller) updateOrders(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, err := c.storage.Orders(core.WithStatusIn(
		core.OrderStatusTypeNew,
		core.OrderStatusTypePartiallyFilled,
		core.OrderStatusTypePendingCancel,
		core.OrderStatusTypeUntriggered,
	))
	if err != nil {
		c.reportError(err)
		return
	}

	var updatedOrders []core.Order
	for _, order := range orders {
		excOrder, err := c.exchange.Order(ctx, order.Symbol, order.ExchangeID)
		if err != nil {
			c.log.WithField("id", order.ExchangeID).Error("order lookup failed: ", err)
			continue
		}

		if excOrder.Status == order.Status {
			continue
		}

		excOrder.ID = order.ID
		if err := c.storage.UpdateOrder(&excOrder); err != nil {
			c.reportError(err)
			continue
		}

		c.log.Infof("[ORDER %s] %s", excOrder.Status, excOrder)
		updatedOrders = append(updatedOrders, excOrder)
	}

	for _, updated := range updatedOrders {
		c.processTrade(&updated)
		c.orderFeed.Publish(updated, false)
		if c.notifier != nil {
			c.notifier.OnOrder(updated)
		}
	}
}

// processTrade updates the trade summary and position data when an
// order fills
func (c *Controller) processTrade(order *core.Order) {
	if order.Status != core.OrderStatusTypeFilled {
		return
	}

	if _, ok := c.results[order.Symbol]; !ok {
		c.results[order.Symbol] = &TradeSummary{Symbol: order.Symbol}
	}
	c.results[order.Symbol].Volume += order.Price * order.Quantity

	c.updatePosition(order)
}

func (c *Controller) updatePosition(o *core.Order) {
	position, ok := c.position[o.Symbol]
	if !ok {
		c.position[o.Symbol] = &Position{
			AvgPrice:  o.Price,
			Quantity:  o.Quantity,
			CreatedAt: o.CreatedAt,
			Side:      o.Side,
		}
		return
	}

	result, closed := position.Update(o)
	if closed {
		delete(c.position, o.Symbol)
	}

	if result != nil {
		c.recordTradeResult(o.Symbol, result)
		c.notifyTradeResult(o.Symbol, result)
	}
}

func (c *Controller) recordTradeResult(symbol string, result *TradeResult) {
	summary := c.results[symbol]

	if result.ProfitPercent >= 0 {
		if result.Side == core.SideTypeBuy {
			summary.WinLong = append(summary.WinLong, result.ProfitValue)
			summary.WinLongPercent = append(summary.WinLongPercent, result.ProfitPercent)
		} else {
			summary.WinShort = append(summary.WinShort, result.ProfitValue)
			summary.WinShortPercent = append(summary.WinShortPercent, result.ProfitPercent)
		}
	} else {
		if result.Side == core.SideTypeBuy {
			summary.LoseLong = append(summary.LoseLong, result.ProfitValue)
			summary.LoseLongPercent = append(summary.LoseLongPercent, result.ProfitPercent)
		} else {
			summary.LoseShort = append(summary.LoseShort, result.ProfitValue)
			summary.LoseShortPercent = append(summary.LoseShortPercent, result.ProfitPercent)
		}
	}
}

func (c *Controller) notifyTradeResult(symbol string, result *TradeResult) {
	_, quote := exchange.SplitSymbol(symbol)

	c.notify(fmt.Sprintf("[PROFIT] %f %s (%f %%)\n",
		result.ProfitValue, quote, result.ProfitPercent*100))
	c.notify(c.results[symbol].String())
}

func (c *Controller) notify(message string) {
	c.log.Info(message)
	if c.notifier != nil {
		c.notifier.Notify(message)
	}
}

// reportError logs the error, forwards it to the notifier, and returns
// it so call sites can wrap-and-return in one statement
func (c *Controller) reportError(err error) error {
	c.log.Error(err)
	if c.notifier != nil {
		c.notifier.OnError(err)
	}
	return err
}
