// Package bybot wires the exchange client, the order controller and the
// Telegram surface into a runnable trading bot.
package bybot

import (
	"context"
	"errors"
	"fmt"

	"bybot/config"
	"bybot/core"
	"bybot/logger"
	"bybot/notification"
	"bybot/order"
	"bybot/storage"
	"bybot/webhook"
)

// Bot holds the assembled components of a running instance
type Bot struct {
	settings *core.Settings
	config   *config.Manager
	exchange core.Exchange
	storage  core.OrderStorage
	notifier core.Notifier
	telegram *notification.Telegram
	log      logger.Logger

	orderFeed       *order.Feed
	orderController *order.Controller
}

// NewBot creates a bot instance from the provided settings and exchange
func NewBot(
	settings *core.Settings,
	cfg *config.Manager,
	exch core.Exchange,
	options ...Option,
) (*Bot, error) {
	if settings.Telegram.Enabled {
		if settings.Telegram.Token == "" {
			return nil, errors.New("telegram is enabled but no token is set")
		}
		if len(settings.Telegram.Users) == 0 {
			return nil, errors.New("telegram is enabled but no users are authorized")
		}
	}

	bot := &Bot{
		settings:  settings,
		config:    cfg,
		exchange:  exch,
		orderFeed: order.NewOrderFeed(),
		log:       DefaultLog,
	}

	for _, option := range options {
		option(bot)
	}

	if bot.storage == nil {
		var err error
		bot.storage, err = storage.FromFile(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
	}

	bot.orderController = order.NewController(exch, bot.storage, cfg, bot.log, bot.orderFeed)

	if settings.Telegram.Enabled {
		telegram, err := notification.NewTelegram(bot.orderController, settings, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram: %w", err)
		}
		bot.telegram = telegram
		bot.orderController.SetNotifier(telegram)
	} else if bot.notifier != nil {
		bot.orderController.SetNotifier(bot.notifier)
	}

	return bot, nil
}

// Controller returns the order controller
func (b *Bot) Controller() *order.Controller {
	return b.orderController
}

// Run starts the bot in long polling mode and blocks until the context
// is canceled
func (b *Bot) Run(ctx context.Context) error {
	b.orderFeed.Start()
	b.orderController.Start(ctx)
	defer b.orderController.Stop(context.Background())

	if b.telegram != nil {
		b.telegram.Start()
	}

	b.log.WithField("environment", b.config.Environment()).Info("bot running")

	<-ctx.Done()
	return nil
}

// Serve starts the bot in webhook mode: instead of long polling,
// updates arrive on an HTTP listener that Telegram pushes to
func (b *Bot) Serve(ctx context.Context, addr string) error {
	if b.telegram == nil {
		return errors.New("webhook mode requires telegram to be enabled")
	}

	b.orderFeed.Start()
	b.orderController.Start(ctx)
	defer b.orderController.Stop(context.Background())

	b.log.WithFields(map[string]any{
		"environment": b.config.Environment(),
		"addr":        addr,
	}).Info("bot serving webhook")

	server := webhook.NewServer(addr, b.telegram, b.log)
	return server.ListenAndServe(ctx)
}
