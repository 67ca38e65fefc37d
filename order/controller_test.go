package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bybot/config"
	"bybot/core"
	"bybot/logger/zerolog"
	"bybot/signal"
	"bybot/storage"
)

type fakeExchange struct {
	info      core.InstrumentInfo
	balance   core.Balance
	quote     float64
	positions []core.Position

	leverage int
	created  []core.OrderRequest
	orderID  int
}

func (f *fakeExchange) InstrumentInfo(context.Context, string) (core.InstrumentInfo, error) {
	return f.info, nil
}

func (f *fakeExchange) LastQuote(context.Context, string) (float64, error) {
	return f.quote, nil
}

func (f *fakeExchange) Balance(context.Context) (core.Balance, error) {
	return f.balance, nil
}

func (f *fakeExchange) Positions(context.Context) ([]core.Position, error) {
	return f.positions, nil
}

func (f *fakeExchange) Position(_ context.Context, symbol string) (core.Position, error) {
	for _, position := range f.positions {
		if position.Symbol == symbol {
			return position, nil
		}
	}
	return core.Position{Symbol: symbol}, nil
}

func (f *fakeExchange) SetLeverage(_ context.Context, _ string, leverage int) error {
	f.leverage = leverage
	return nil
}

func (f *fakeExchange) CreateOrder(_ context.Context, req core.OrderRequest) (core.Order, error) {
	f.created = append(f.created, req)
	f.orderID++

	status := core.OrderStatusTypeNew
	if req.TriggerPrice > 0 {
		status = core.OrderStatusTypeUntriggered
	}

	return core.Order{
		ExchangeID: "ex-" + string(rune('a'+f.orderID)),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Status:     status,
		Price:      req.Price,
		Quantity:   req.Quantity,
		ReduceOnly: req.ReduceOnly,
	}, nil
}

func (f *fakeExchange) Cancel(context.Context, core.Order) error {
	return nil
}

func (f *fakeExchange) Order(context.Context, string, string) (core.Order, error) {
	return core.Order{}, nil
}

func (f *fakeExchange) OrderHistory(context.Context, int) ([]core.Order, error) {
	return nil, nil
}

func (f *fakeExchange) WaitForPosition(context.Context, string, core.SideType) error {
	return nil
}

type fixedSettings struct {
	params config.TradingParams
}

func (s fixedSettings) TradingParams() config.TradingParams {
	return s.params
}

func newTestController(t *testing.T, fake *fakeExchange) *Controller {
	t.Helper()

	log, err := zerolog.New("error", "2006-01-02 15:04:05", false, false)
	require.NoError(t, err)

	db, err := storage.FromMemory()
	require.NoError(t, err)

	settings := fixedSettings{params: config.TradingParams{
		Leverage:          5,
		BalancePercentage: 0.1,
	}}

	return NewController(fake, db, settings, log, NewOrderFeed())
}

func TestExecuteSignalLimitEntry(t *testing.T) {
	fake := &fakeExchange{
		info: core.InstrumentInfo{
			Symbol:      "APTUSDT",
			QtyStep:     0.01,
			MinQuantity: 0.01,
			MaxQuantity: 100000,
		},
		balance: core.Balance{Coin: "USDT", Available: 1000},
	}
	controller := newTestController(t, fake)

	orders, err := controller.ExecuteSignal(context.Background(), signal.Signal{
		Side:        core.SideTypeBuy,
		Symbol:      "APTUSDT",
		Entry:       8.844,
		StopLoss:    8.4,
		TakeProfits: []float64{9, 10, 11},
	})
	require.NoError(t, err)

	// entry + 3 take profits
	require.Len(t, orders, 4)
	require.Equal(t, 5, fake.leverage)

	entry := fake.created[0]
	require.Equal(t, core.OrderTypeLimit, entry.Type)
	require.Equal(t, core.SideTypeBuy, entry.Side)
	require.Equal(t, 8.844, entry.Price)
	require.Equal(t, 8.4, entry.StopLoss)
	require.False(t, entry.ReduceOnly)

	// 1000 * 0.1 * 5 / 8.844 = 56.535..., floored to the 0.01 step
	require.InDelta(t, 56.53, entry.Quantity, 1e-9)

	// Each take profit gets a third of the entry, reduce-only, on the
	// opposite side, triggered at its target
	for i, tp := range fake.created[1:] {
		require.Equal(t, core.SideTypeSell, tp.Side)
		require.True(t, tp.ReduceOnly)
		require.InDelta(t, 18.84, tp.Quantity, 1e-9)
		require.Equal(t, []float64{9, 10, 11}[i], tp.TriggerPrice)
	}
}

func TestExecuteSignalMarketEntryUsesLastPrice(t *testing.T) {
	fake := &fakeExchange{
		info: core.InstrumentInfo{
			Symbol:      "APTUSDT",
			QtyStep:     0.01,
			MinQuantity: 0.01,
			MaxQuantity: 100000,
		},
		balance: core.Balance{Coin: "USDT", Available: 1000},
		quote:   10,
	}
	controller := newTestController(t, fake)

	_, err := controller.ExecuteSignal(context.Background(), signal.Signal{
		Side:        core.SideTypeBuy,
		Symbol:      "APTUSDT",
		Entry:       0,
		StopLoss:    9,
		TakeProfits: []float64{11},
	})
	require.NoError(t, err)

	entry := fake.created[0]
	require.Equal(t, core.OrderTypeMarket, entry.Type)
	require.Zero(t, entry.Price)

	// 1000 * 0.1 * 5 / 10 = 50, sized from the last traded price
	require.InDelta(t, 50.0, entry.Quantity, 1e-9)
}

func TestExecuteSignalRejectsDustQuantity(t *testing.T) {
	fake := &fakeExchange{
		info: core.InstrumentInfo{
			Symbol:      "BTCUSDT",
			QtyStep:     0.001,
			MinQuantity: 0.001,
			MaxQuantity: 100,
		},
		balance: core.Balance{Coin: "USDT", Available: 1},
	}
	controller := newTestController(t, fake)

	_, err := controller.ExecuteSignal(context.Background(), signal.Signal{
		Side:        core.SideTypeBuy,
		Symbol:      "BTCUSDT",
		Entry:       64000,
		StopLoss:    60000,
		TakeProfits: []float64{70000},
	})
	require.ErrorIs(t, err, core.ErrInvalidQuantity)
	require.Empty(t, fake.created)
}

func TestClosePosition(t *testing.T) {
	fake := &fakeExchange{
		info: core.InstrumentInfo{
			Symbol:      "APTUSDT",
			QtyStep:     0.01,
			MinQuantity: 0.01,
			MaxQuantity: 100000,
		},
		positions: []core.Position{{
			Symbol: "APTUSDT",
			Side:   core.SideTypeBuy,
			Size:   100,
		}},
	}
	controller := newTestController(t, fake)

	order, err := controller.ClosePosition(context.Background(), "APTUSDT", 0.5)
	require.NoError(t, err)

	require.Equal(t, core.SideTypeSell, order.Side)
	require.Equal(t, core.OrderTypeMarket, order.Type)
	require.True(t, order.ReduceOnly)
	require.InDelta(t, 50.0, order.Quantity, 1e-9)
}

func TestClosePositionWithoutExposure(t *testing.T) {
	controller := newTestController(t, &fakeExchange{})

	_, err := controller.ClosePosition(context.Background(), "APTUSDT", 1)
	require.ErrorIs(t, err, core.ErrNoPosition)
}

func TestClosePositionRejectsBadFraction(t *testing.T) {
	controller := newTestController(t, &fakeExchange{})

	_, err := controller.ClosePosition(context.Background(), "APTUSDT", 1.5)
	require.ErrorIs(t, err, core.ErrInvalidPercentage)
}

func TestCloseAll(t *testing.T) {
	fake := &fakeExchange{
		info: core.InstrumentInfo{
			QtyStep:     0.01,
			MinQuantity: 0.01,
			MaxQuantity: 100000,
		},
		positions: []core.Position{
			{Symbol: "APTUSDT", Side: core.SideTypeBuy, Size: 100},
			{Symbol: "BTCUSDT", Side: core.SideTypeSell, Size: 0.5},
		},
	}
	controller := newTestController(t, fake)

	orders, err := controller.CloseAll(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	require.Equal(t, core.SideTypeSell, orders[0].Side)
	require.Equal(t, core.SideTypeBuy, orders[1].Side)
}

func TestStopReturnsAfterContextCancellation(t *testing.T) {
	controller := newTestController(t, &fakeExchange{})

	ctx, cancel := context.WithCancel(context.Background())
	controller.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		controller.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run context was canceled")
	}
	require.Equal(t, StatusStopped, controller.Status())
}

func TestStartStop(t *testing.T) {
	controller := newTestController(t, &fakeExchange{})

	controller.Start(context.Background())
	require.Equal(t, StatusRunning, controller.Status())

	controller.Stop(context.Background())
	require.Equal(t, StatusStopped, controller.Status())

	// A second Stop is a no-op, not a deadlock
	controller.Stop(context.Background())
}

func TestSummariesReturnsSnapshotCopies(t *testing.T) {
	controller := newTestController(t, &fakeExchange{})

	controller.mu.Lock()
	controller.processTrade(&core.Order{
		Symbol:   "APTUSDT",
		Status:   core.OrderStatusTypeFilled,
		Side:     core.SideTypeBuy,
		Price:    10,
		Quantity: 2,
	})
	controller.mu.Unlock()

	summaries := controller.Summaries()
	require.Len(t, summaries, 1)
	require.Equal(t, 20.0, summaries["APTUSDT"].Volume)

	// Mutating the snapshot leaves the live state alone
	snapshot := summaries["APTUSDT"]
	snapshot.Volume = 0
	require.Equal(t, 20.0, controller.Summaries()["APTUSDT"].Volume)
}
