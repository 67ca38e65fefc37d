package signal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bybot/core"
)

func TestParseLong(t *testing.T) {
	s, err := Parse("LONG $APT\nEntry 8.844\nStl 8.4\nTp 9 - 10 - 11")
	require.NoError(t, err)

	require.Equal(t, core.SideTypeBuy, s.Side)
	require.Equal(t, "APTUSDT", s.Symbol)
	require.Equal(t, 8.844, s.Entry)
	require.Equal(t, 8.4, s.StopLoss)
	require.Equal(t, []float64{9, 10, 11}, s.TakeProfits)
	require.False(t, s.IsMarket())
	require.Equal(t, "LONG", s.Direction())
}

func TestParseShort(t *testing.T) {
	s, err := Parse("short btc\nentry 64000\nsl 65000\ntp 63000 - 62000")
	require.NoError(t, err)

	require.Equal(t, core.SideTypeSell, s.Side)
	require.Equal(t, "BTCUSDT", s.Symbol)
	require.Equal(t, []float64{63000, 62000}, s.TakeProfits)
	require.Equal(t, "SHORT", s.Direction())
}

func TestParseMarketEntry(t *testing.T) {
	s, err := Parse("LONG $APT\nEntry 0\nStl 8.4\nTp 9")
	require.NoError(t, err)
	require.True(t, s.IsMarket())
}

func TestParseNotASignal(t *testing.T) {
	for _, text := range []string{"", "hello there", "/status", "buy something"} {
		_, err := Parse(text)
		require.ErrorIs(t, err, ErrNotASignal, "text=%q", text)
	}
}

func TestParseMissingLines(t *testing.T) {
	_, err := Parse("LONG $APT\nStl 8.4\nTp 9")
	require.ErrorContains(t, err, "Entry")

	_, err = Parse("LONG $APT\nEntry 8.844\nTp 9")
	require.ErrorContains(t, err, "Stl")

	_, err = Parse("LONG $APT\nEntry 8.844\nStl 8.4")
	require.ErrorContains(t, err, "Tp")
}

func TestParseNamesBadLine(t *testing.T) {
	_, err := Parse("LONG $APT\nEntry 8.844\nStl 8.4\nTp 9\nLeverage 10")
	require.ErrorContains(t, err, `"Leverage 10"`)
}

func TestValidateStopSide(t *testing.T) {
	// stop above entry on a LONG
	_, err := Parse("LONG $APT\nEntry 8.844\nStl 9.5\nTp 10")
	require.ErrorContains(t, err, "below entry")

	// stop below entry on a SHORT
	_, err = Parse("SHORT $APT\nEntry 8.844\nStl 8\nTp 7")
	require.ErrorContains(t, err, "above entry")
}

func TestValidateTargetSide(t *testing.T) {
	_, err := Parse("LONG $APT\nEntry 8.844\nStl 8.4\nTp 8.6")
	require.ErrorContains(t, err, "above entry")

	_, err = Parse("SHORT $APT\nEntry 8.844\nStl 9\nTp 8.9")
	require.ErrorContains(t, err, "below entry")
}

func TestValidateMarketEntryAgainstStop(t *testing.T) {
	// With no entry price, targets must still clear the stop
	_, err := Parse("LONG $APT\nEntry 0\nStl 9\nTp 8.5")
	require.ErrorContains(t, err, "below stop loss")
}
