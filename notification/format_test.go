package notification

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bybot/core"
)

func TestFormatBalance(t *testing.T) {
	message := formatBalance(core.Balance{
		Coin:          "USDT",
		WalletBalance: 1000.5,
		Available:     812.44,
	})

	require.Contains(t, message, "USDT")
	require.Contains(t, message, "1000.5000")
	require.Contains(t, message, "812.4400")
}

func TestFormatPositionsEmpty(t *testing.T) {
	require.Equal(t, "No open positions.", formatPositions(nil))
}

func TestFormatPositions(t *testing.T) {
	message := formatPositions([]core.Position{{
		Symbol:        "APTUSDT",
		Side:          core.SideTypeBuy,
		Size:          100,
		EntryPrice:    8.844,
		MarkPrice:     9.1,
		LiqPrice:      7.2,
		UnrealisedPnL: 25.6,
		PositionValue: 884.4,
		Leverage:      5,
	}})

	require.Contains(t, message, "LONG")
	require.Contains(t, message, "APTUSDT")
	require.Contains(t, message, "5x")
	require.Contains(t, message, "8.844")
	require.Contains(t, message, "Liquidation")
}

func TestFormatPositionsShortDirection(t *testing.T) {
	message := formatPositions([]core.Position{{
		Symbol: "BTCUSDT",
		Side:   core.SideTypeSell,
		Size:   0.5,
	}})

	require.Contains(t, message, "SHORT")
}

func TestLiquidationDistance(t *testing.T) {
	distance, ok := liquidationDistance(core.Position{MarkPrice: 100, LiqPrice: 80})
	require.True(t, ok)
	require.InDelta(t, 20.0, distance, 1e-9)

	_, ok = liquidationDistance(core.Position{MarkPrice: 100})
	require.False(t, ok)
}

func TestRiskTag(t *testing.T) {
	require.Equal(t, "🚨", riskTag(5))
	require.Equal(t, "⚠️", riskTag(15))
	require.Equal(t, "✅", riskTag(40))
}

func TestFormatOrderHistory(t *testing.T) {
	require.Equal(t, "No recent orders.", formatOrderHistory(nil))

	message := formatOrderHistory([]core.Order{{
		Symbol:   "APTUSDT",
		Side:     core.SideTypeBuy,
		Type:     core.OrderTypeLimit,
		Status:   core.OrderStatusTypeFilled,
		Price:    8.844,
		Quantity: 56.56,
	}})

	require.Contains(t, message, "APTUSDT")
	require.Contains(t, message, "Filled")
	require.Contains(t, message, "8.844")
}
