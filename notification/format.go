package notification

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	str2duration "github.com/xhit/go-str2duration/v2"

	"bybot/core"
)

// Liquidation distance thresholds for the position risk tag
const (
	liqDanger  = 10 // percent
	liqWarning = 25
)

func formatBalance(balance core.Balance) string {
	return fmt.Sprintf("*BALANCE*\n%s: `%.4f`\nAvailable: `%.4f`",
		balance.Coin, balance.WalletBalance, balance.Available)
}

func formatPositions(positions []core.Position) string {
	if len(positions) == 0 {
		return "No open positions."
	}

	var sb strings.Builder
	sb.WriteString("*OPEN POSITIONS*\n")

	for _, position := range positions {
		direction := "🟢 LONG"
		if position.Side == core.SideTypeSell {
			direction = "🔴 SHORT"
		}

		fmt.Fprintf(&sb, "\n%s `%s` %.0fx\n", direction, position.Symbol, position.Leverage)
		fmt.Fprintf(&sb, "Size: `%v` (`%.2f` USDT)\n", position.Size, position.PositionValue)
		fmt.Fprintf(&sb, "Entry: `%v` Mark: `%v`\n", position.EntryPrice, position.MarkPrice)
		fmt.Fprintf(&sb, "PnL: `%+.2f` (`%+.2f%%`)\n", position.UnrealisedPnL, position.PnLPercent())

		if distance, ok := liquidationDistance(position); ok {
			fmt.Fprintf(&sb, "Liquidation: `%v` (%s `%.1f%%` away)\n",
				position.LiqPrice, riskTag(distance), distance)
		}

		if position.CreatedAt > 0 {
			age := time.Since(time.UnixMilli(position.CreatedAt)).Truncate(time.Minute)
			fmt.Fprintf(&sb, "Age: `%s`\n", str2duration.String(age))
		}
	}

	return sb.String()
}

// liquidationDistance returns how far the mark price is from the
// liquidation price, in percent of the mark price
func liquidationDistance(position core.Position) (float64, bool) {
	if position.LiqPrice <= 0 || position.MarkPrice <= 0 {
		return 0, false
	}

	return math.Abs(position.MarkPrice-position.LiqPrice) / position.MarkPrice * 100, true
}

func riskTag(distance float64) string {
	switch {
	case distance < liqDanger:
		return "🚨"
	case distance < liqWarning:
		return "⚠️"
	default:
		return "✅"
	}
}

func formatOrderHistory(orders []core.Order) string {
	if len(orders) == 0 {
		return "No recent orders."
	}

	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)
	table.SetHeader([]string{"Symbol", "Side", "Type", "Status", "Price", "Qty"})

	for _, o := range orders {
		table.Append([]string{
			o.Symbol,
			string(o.Side),
			string(o.Type),
			string(o.Status),
			fmt.Sprintf("%v", o.Price),
			fmt.Sprintf("%v", o.Quantity),
		})
	}

	table.Render()
	return fmt.Sprintf("*RECENT ORDERS*\n```\n%s```", tableString.String())
}
