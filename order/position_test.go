package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bybot/core"
)

func TestPositionAddSameSide(t *testing.T) {
	position := &Position{
		Side:     core.SideTypeBuy,
		AvgPrice: 10,
		Quantity: 1,
	}

	result, closed := position.Update(&core.Order{
		Side:     core.SideTypeBuy,
		Price:    20,
		Quantity: 1,
	})

	require.Nil(t, result)
	require.False(t, closed)
	require.Equal(t, 15.0, position.AvgPrice)
	require.Equal(t, 2.0, position.Quantity)
}

func TestPositionFullClose(t *testing.T) {
	opened := time.Now().Add(-time.Hour)
	position := &Position{
		Side:      core.SideTypeBuy,
		AvgPrice:  10,
		Quantity:  2,
		CreatedAt: opened,
	}

	result, closed := position.Update(&core.Order{
		Side:      core.SideTypeSell,
		Price:     12,
		Quantity:  2,
		CreatedAt: time.Now(),
	})

	require.True(t, closed)
	require.NotNil(t, result)
	require.Equal(t, core.SideTypeBuy, result.Side)
	require.InDelta(t, 0.2, result.ProfitPercent, 1e-9)
	require.InDelta(t, 4.0, result.ProfitValue, 1e-9)
	require.GreaterOrEqual(t, result.Duration, time.Hour)
}

func TestPositionPartialClose(t *testing.T) {
	position := &Position{
		Side:     core.SideTypeBuy,
		AvgPrice: 10,
		Quantity: 3,
	}

	result, closed := position.Update(&core.Order{
		Side:     core.SideTypeSell,
		Price:    11,
		Quantity: 1,
	})

	require.False(t, closed)
	require.NotNil(t, result)
	require.InDelta(t, 1.0, result.ProfitValue, 1e-9)
	require.Equal(t, 2.0, position.Quantity)
}

func TestPositionShortProfitSign(t *testing.T) {
	position := &Position{
		Side:     core.SideTypeSell,
		AvgPrice: 100,
		Quantity: 1,
	}

	// Price dropped, a short should profit
	result, closed := position.Update(&core.Order{
		Side:     core.SideTypeBuy,
		Price:    90,
		Quantity: 1,
	})

	require.True(t, closed)
	require.InDelta(t, 0.1, result.ProfitPercent, 1e-9)
	require.InDelta(t, 10.0, result.ProfitValue, 1e-9)
}

func TestPositionReversal(t *testing.T) {
	position := &Position{
		Side:     core.SideTypeBuy,
		AvgPrice: 10,
		Quantity: 1,
	}

	result, closed := position.Update(&core.Order{
		Side:      core.SideTypeSell,
		Price:     12,
		Quantity:  3,
		CreatedAt: time.Now(),
	})

	require.False(t, closed)
	require.NotNil(t, result)
	require.Equal(t, core.SideTypeSell, position.Side)
	require.Equal(t, 2.0, position.Quantity)
	require.Equal(t, 12.0, position.AvgPrice)
}
