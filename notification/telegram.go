// Package notification delivers bot events to the operator and accepts
// commands back over Telegram.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/StudioSol/set"
	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"

	"bybot/config"
	"bybot/core"
	"bybot/exchange"
	"bybot/order"
	"bybot/signal"
)

// handlerTimeout bounds the exchange calls made from a single command
const handlerTimeout = 30 * time.Second

// historyLimit is how many orders /history fetches
const historyLimit = 10

// telegramURL overrides the Bot API endpoint in tests. Empty means
// telebot's default.
var telegramURL = ""

// apiKeyPrompt tracks a /setapi conversation with one user
type apiKeyPrompt struct {
	testnet bool
	apiKey  string
}

// Telegram implements core.NotifierWithStart and accepts trade signals
// and commands from authorized users
type Telegram struct {
	settings    *core.Settings
	config      *config.Manager
	controller  *order.Controller
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
	users       *set.LinkedHashSetINT64

	// per-user /setapi conversation state, keyed by sender ID. telebot
	// runs each handler in its own goroutine, so access is guarded.
	promptsMu sync.Mutex
	prompts   map[int64]*apiKeyPrompt
}

// Option is a function that configures a Telegram instance
type Option func(t *Telegram)

// NewTelegram creates and initializes the Telegram service
func NewTelegram(
	controller *order.Controller,
	settings *core.Settings,
	cfg *config.Manager,
	options ...Option,
) (*Telegram, error) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	users := set.NewLinkedHashSetINT64(settings.Telegram.Users...)

	bot := &Telegram{
		controller:  controller,
		settings:    settings,
		config:      cfg,
		defaultMenu: menu,
		users:       users,
		prompts:     make(map[int64]*apiKeyPrompt),
	}

	client, err := tb.NewBot(tb.Settings{
		URL:       telegramURL,
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    tb.NewMiddlewarePoller(poller, bot.authorize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.client = client

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// authorize rejects updates from users outside the allow list
func (t *Telegram) authorize(u *tb.Update) bool {
	if u.Message == nil || u.Message.Sender == nil {
		log.Error("message or sender is nil ", u)
		return false
	}

	// Drain the iterator fully so the set's goroutine always finishes
	authorized := false
	for id := range t.users.Iter() {
		if id == u.Message.Sender.ID {
			authorized = true
		}
	}
	if authorized {
		return true
	}

	log.Error("unauthorized user ", u.Message.Sender.ID)
	return false
}

// ProcessUpdate feeds one update through the same authorization and
// handlers the poller uses. The webhook server delivers updates here.
func (t *Telegram) ProcessUpdate(u tb.Update) {
	if !t.authorize(&u) {
		return
	}
	t.client.ProcessUpdate(u)
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		statusBtn    = menu.Text("/status")
		balanceBtn   = menu.Text("/balance")
		positionsBtn = menu.Text("/positions")
		profitBtn    = menu.Text("/profit")
		closeAllBtn  = menu.Text("/closeall")
		helpBtn      = menu.Text("/help")
	)

	menu.Reply(
		menu.Row(statusBtn, balanceBtn, positionsBtn),
		menu.Row(profitBtn, closeAllBtn, helpBtn),
	)
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/start", Description: "Start order tracking"},
		{Text: "/stop", Description: "Stop order tracking"},
		{Text: "/status", Description: "Bot status and active settings"},
		{Text: "/balance", Description: "Wallet balance"},
		{Text: "/positions", Description: "Open positions"},
		{Text: "/history", Description: "Recent orders"},
		{Text: "/profit", Description: "Summary of trade results"},
		{Text: "/env", Description: "Show or switch testnet/mainnet"},
		{Text: "/leverage", Description: "Set leverage (1-20)"},
		{Text: "/risk", Description: "Set balance percentage per trade"},
		{Text: "/setapi", Description: "Store exchange API keys"},
		{Text: "/close", Description: "Close a position: /close APTUSDT 50"},
		{Text: "/closeall", Description: "Close all open positions"},
	})
}

// registerHandlers registers all command handlers
func registerHandlers(client *tb.Bot, bot *Telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/start", bot.StartHandle)
	client.Handle("/stop", bot.StopHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/balance", bot.BalanceHandle)
	client.Handle("/positions", bot.PositionsHandle)
	client.Handle("/history", bot.HistoryHandle)
	client.Handle("/profit", bot.ProfitHandle)
	client.Handle("/env", bot.EnvHandle)
	client.Handle("/leverage", bot.LeverageHandle)
	client.Handle("/risk", bot.RiskHandle)
	client.Handle("/setapi", bot.SetAPIHandle)
	client.Handle("/close", bot.CloseHandle)
	client.Handle("/closeall", bot.CloseAllHandle)
	client.Handle(tb.OnText, bot.TextHandle)
}

// Start begins the Telegram bot and notifies all authorized users
func (t *Telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Bot initialized.", t.defaultMenu)
}

// Notify sends a message to all authorized users
func (t *Telegram) Notify(text string) {
	for user := range t.users.Iter() {
		if _, err := t.client.Send(&tb.User{ID: user}, text); err != nil {
			log.WithError(err).Error("failed to send notification")
		}
	}
}

func (t *Telegram) sendMessageWithOptions(text string, options ...interface{}) {
	for user := range t.users.Iter() {
		if _, err := t.client.Send(&tb.User{ID: user}, text, options...); err != nil {
			log.WithError(err).Error("failed to send notification with options")
		}
	}
}

func (t *Telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	if _, err := t.client.Send(to, text, options...); err != nil {
		log.WithError(err).Error("failed to send message")
	}
}

func handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

// HelpHandle displays available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		log.WithError(err).Error("failed to get commands")
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands)+2)
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}
	lines = append(lines, "", "Paste a signal to open a trade:",
		"`LONG $APT`\n`Entry 8.844`\n`Stl 8.4`\n`Tp 9 - 10 - 11`")

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StartHandle starts order tracking
func (t *Telegram) StartHandle(m *tb.Message) {
	if t.controller.Status() == order.StatusRunning {
		t.sendMessage(m.Sender, "Bot is already running.", t.defaultMenu)
		return
	}

	t.controller.Start(context.Background())
	t.sendMessage(m.Sender, "Bot started.", t.defaultMenu)
}

// StopHandle stops order tracking
func (t *Telegram) StopHandle(m *tb.Message) {
	if t.controller.Status() == order.StatusStopped {
		t.sendMessage(m.Sender, "Bot is already stopped.", t.defaultMenu)
		return
	}

	ctx, cancel := handlerContext()
	defer cancel()

	t.controller.Stop(ctx)
	t.sendMessage(m.Sender, "Bot stopped.", t.defaultMenu)
}

// StatusHandle displays the bot status and active settings
func (t *Telegram) StatusHandle(m *tb.Message) {
	params := t.config.TradingParams()
	message := fmt.Sprintf(
		"Status: `%s`\nEnvironment: `%s`\nLeverage: `%dx`\nBalance per trade: `%.0f%%`",
		t.controller.Status(),
		t.config.Environment(),
		params.Leverage,
		params.BalancePercentage*100,
	)
	t.sendMessage(m.Sender, message)
}

// BalanceHandle shows the settlement coin balance
func (t *Telegram) BalanceHandle(m *tb.Message) {
	ctx, cancel := handlerContext()
	defer cancel()

	balance, err := t.controller.Balance(ctx)
	if err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, formatBalance(balance))
}

// PositionsHandle shows all open positions
func (t *Telegram) PositionsHandle(m *tb.Message) {
	ctx, cancel := handlerContext()
	defer cancel()

	positions, err := t.controller.Positions(ctx)
	if err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, formatPositions(positions))
}

// HistoryHandle shows the most recent orders
func (t *Telegram) HistoryHandle(m *tb.Message) {
	ctx, cancel := handlerContext()
	defer cancel()

	orders, err := t.controller.OrderHistory(ctx, historyLimit)
	if err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, formatOrderHistory(orders))
}

// ProfitHandle shows trading results
func (t *Telegram) ProfitHandle(m *tb.Message) {
	summaries := t.controller.Summaries()
	if len(summaries) == 0 {
		t.sendMessage(m.Sender, "No trades registered.")
		return
	}

	for symbol, summary := range summaries {
		t.sendMessage(m.Sender, fmt.Sprintf("*SYMBOL*: `%s`\n`%s`", symbol, summary.String()))
	}
}

// EnvHandle shows or switches the active environment. Switching takes
// effect on the next start because the exchange session is bound to the
// environment it was created for.
func (t *Telegram) EnvHandle(m *tb.Message) {
	arg := strings.ToLower(strings.TrimSpace(m.Payload))
	if arg == "" {
		t.sendMessage(m.Sender, fmt.Sprintf("Environment: `%s`", t.config.Environment()))
		return
	}

	if arg != config.EnvTestnet && arg != config.EnvMainnet {
		t.sendMessage(m.Sender, "Usage: `/env testnet` or `/env mainnet`")
		return
	}

	if err := t.config.SwitchEnvironment(arg == config.EnvTestnet); err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender,
		fmt.Sprintf("Environment switched to `%s`. Restart the bot to apply.", arg))
}

// LeverageHandle sets the leverage used for new signals
func (t *Telegram) LeverageHandle(m *tb.Message) {
	leverage, err := strconv.Atoi(strings.TrimSpace(m.Payload))
	if err != nil {
		t.sendMessage(m.Sender, "Usage: `/leverage 10`")
		return
	}

	if err := t.config.SetLeverage(leverage); err != nil {
		t.sendMessage(m.Sender, err.Error())
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Leverage set to `%dx`", leverage))
}

// RiskHandle sets the balance percentage used per trade. Values above 1
// are read as percentages, so `/risk 10` and `/risk 0.1` are the same.
func (t *Telegram) RiskHandle(m *tb.Message) {
	value, err := strconv.ParseFloat(strings.TrimSpace(m.Payload), 64)
	if err != nil {
		t.sendMessage(m.Sender, "Usage: `/risk 10` for 10% of the balance per trade")
		return
	}

	if value > 1 {
		value /= 100
	}

	if err := t.config.SetBalancePercentage(value); err != nil {
		t.sendMessage(m.Sender, err.Error())
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Balance per trade set to `%.0f%%`", value*100))
}

// SetAPIHandle starts an API key conversation: the environment comes
// with the command, the key and secret follow as separate messages so
// they stay out of the command history suggestions
func (t *Telegram) SetAPIHandle(m *tb.Message) {
	arg := strings.ToLower(strings.TrimSpace(m.Payload))
	if arg != config.EnvTestnet && arg != config.EnvMainnet {
		t.sendMessage(m.Sender, "Usage: `/setapi testnet` or `/setapi mainnet`")
		return
	}

	t.promptsMu.Lock()
	t.prompts[m.Sender.ID] = &apiKeyPrompt{testnet: arg == config.EnvTestnet}
	t.promptsMu.Unlock()

	t.sendMessage(m.Sender, fmt.Sprintf("Send the %s API key:", arg))
}

// continuePrompt consumes one message of an active /setapi conversation
func (t *Telegram) continuePrompt(m *tb.Message) bool {
	text := strings.TrimSpace(m.Text)

	t.promptsMu.Lock()
	prompt, ok := t.prompts[m.Sender.ID]
	if !ok {
		t.promptsMu.Unlock()
		return false
	}

	if prompt.apiKey == "" {
		prompt.apiKey = text
		t.promptsMu.Unlock()
		t.sendMessage(m.Sender, "Now send the API secret:")
		return true
	}

	delete(t.prompts, m.Sender.ID)
	t.promptsMu.Unlock()

	if err := t.config.SetAPIKeys(prompt.apiKey, text, prompt.testnet); err != nil {
		t.OnError(err)
		return true
	}

	env := config.EnvMainnet
	if prompt.testnet {
		env = config.EnvTestnet
	}
	t.sendMessage(m.Sender, fmt.Sprintf("API keys for `%s` stored. Restart the bot to apply.", env))
	return true
}

// CloseHandle closes a position, fully or partially:
// /close APTUSDT closes everything, /close APTUSDT 50 closes half
func (t *Telegram) CloseHandle(m *tb.Message) {
	fields := strings.Fields(m.Payload)
	if len(fields) == 0 {
		t.sendMessage(m.Sender, "Usage: `/close APTUSDT` or `/close APTUSDT 50`")
		return
	}

	symbol := exchange.NormalizeSymbol(fields[0])
	fraction := 1.0
	if len(fields) > 1 {
		percent, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || percent <= 0 || percent > 100 {
			t.sendMessage(m.Sender, "Percentage must be a number between 1 and 100")
			return
		}
		fraction = percent / 100
	}

	ctx, cancel := handlerContext()
	defer cancel()

	closeOrder, err := t.controller.ClosePosition(ctx, symbol, fraction)
	if err != nil {
		if errors.Is(err, core.ErrNoPosition) {
			t.sendMessage(m.Sender, fmt.Sprintf("No open position for `%s`", symbol))
			return
		}
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Closing `%.0f%%` of `%s`:\n`%s`",
		fraction*100, symbol, closeOrder))
}

// CloseAllHandle closes every open position at market. It asks for an
// explicit confirmation so a fat-fingered tap cannot flatten the account.
func (t *Telegram) CloseAllHandle(m *tb.Message) {
	if strings.TrimSpace(m.Payload) != "confirm" {
		t.sendMessage(m.Sender, "This closes *every* open position at market.\nSend `/closeall confirm` to proceed.")
		return
	}

	ctx, cancel := handlerContext()
	defer cancel()

	orders, err := t.controller.CloseAll(ctx)
	if err != nil {
		t.OnError(err)
		return
	}

	if len(orders) == 0 {
		t.sendMessage(m.Sender, "No open positions.")
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Closed `%d` position(s).", len(orders)))
}

// TextHandle receives free text: either the continuation of a /setapi
// conversation or a pasted trade signal
func (t *Telegram) TextHandle(m *tb.Message) {
	if t.continuePrompt(m) {
		return
	}

	parsed, err := signal.Parse(m.Text)
	if errors.Is(err, signal.ErrNotASignal) {
		return
	}
	if err != nil {
		t.sendMessage(m.Sender, fmt.Sprintf("Invalid signal: %s", err))
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Executing %s `%s`...", parsed.Direction(), parsed.Symbol))

	ctx, cancel := handlerContext()
	defer cancel()

	orders, err := t.controller.ExecuteSignal(ctx, parsed)
	if err != nil {
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(orders)+1)
	lines = append(lines, fmt.Sprintf("%s `%s` placed:", parsed.Direction(), parsed.Symbol))
	for _, o := range orders {
		lines = append(lines, fmt.Sprintf("`%s`", o))
	}
	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// OnOrder notifies users about order status changes
func (t *Telegram) OnOrder(order core.Order) {
	var title string

	switch order.Status {
	case core.OrderStatusTypeFilled:
		title = fmt.Sprintf("✅ ORDER FILLED - %s", order.Symbol)
	case core.OrderStatusTypeNew, core.OrderStatusTypeUntriggered:
		title = fmt.Sprintf("🆕 NEW ORDER - %s", order.Symbol)
	case core.OrderStatusTypeCancelled, core.OrderStatusTypeRejected:
		title = fmt.Sprintf("❌ ORDER CANCELED / REJECTED - %s", order.Symbol)
	}

	message := fmt.Sprintf("%s\n-----\n%s", title, order)
	t.Notify(message)
}

// OnError notifies users about errors
func (t *Telegram) OnError(err error) {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")

	var orderError *exchange.OrderError
	if errors.As(err, &orderError) {
		sb.WriteString("-----\n")
		fmt.Fprintf(&sb, "Symbol: %s\n", orderError.Symbol)
		fmt.Fprintf(&sb, "Quantity: %.4f\n", orderError.Quantity)
		sb.WriteString("-----\n")
		sb.WriteString(orderError.Err.Error())

		t.Notify(sb.String())
		return
	}

	sb.WriteString("-----\n")
	sb.WriteString(err.Error())

	t.Notify(sb.String())
}

var _ core.NotifierWithStart = (*Telegram)(nil)
