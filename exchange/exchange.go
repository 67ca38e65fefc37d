// Package exchange holds types and helpers shared by exchange clients.
package exchange

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bybot/core"
)

// OrderError represents an error that occurred during order creation or
// execution
type OrderError struct {
	Err      error
	Symbol   string
	Quantity float64
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order error: %v, symbol: %s, quantity: %f", e.Err, e.Symbol, e.Quantity)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// quote coins accepted on the linear contract market
var quoteCoins = []string{"USDT", "USDC"}

// NormalizeSymbol turns chat input like "$apt" or "btc" into an exchange
// symbol ("APTUSDT", "BTCUSDT")
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(symbol), "$"))

	for _, quote := range quoteCoins {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol
		}
	}

	return symbol + "USDT"
}

// SplitSymbol splits a contract symbol into base and quote coins
func SplitSymbol(symbol string) (base, quote string) {
	for _, quote = range quoteCoins {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)], quote
		}
	}
	return symbol, ""
}

// FloorToStep floors a quantity to the instrument lot step. The result is
// rounded back to the step's decimal precision to shed float dust.
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}

	floored := math.Floor(value/step+1e-9) * step

	prec := StepPrecision(step)
	ratio := math.Pow(10, float64(prec))
	return math.Round(floored*ratio) / ratio
}

// StepPrecision returns the number of decimal places of a step size
func StepPrecision(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// FormatQuantity renders a lot-floored quantity for the exchange API
func FormatQuantity(value, step float64) string {
	return strconv.FormatFloat(FloorToStep(value, step), 'f', -1, 64)
}

// ValidateQuantity checks an order quantity against the instrument limits
func ValidateQuantity(info core.InstrumentInfo, quantity float64) error {
	if quantity < info.MinQuantity || (info.MaxQuantity > 0 && quantity > info.MaxQuantity) {
		return &OrderError{
			Err: fmt.Errorf("%w: min: %f max: %f",
				core.ErrInvalidQuantity, info.MinQuantity, info.MaxQuantity),
			Symbol:   info.Symbol,
			Quantity: quantity,
		}
	}
	return nil
}
