package bybot

import (
	"bybot/core"
	"bybot/logger"
)

// Option is a functional option for configuring a Bot instance
type Option func(*Bot)

// WithStorage sets the order storage, by default a local file database
// inside the config directory
func WithStorage(storage core.OrderStorage) Option {
	return func(bot *Bot) {
		bot.storage = storage
	}
}

// WithNotifier registers a notifier used when Telegram is disabled,
// for example the mail notifier
func WithNotifier(notifier core.Notifier) Option {
	return func(bot *Bot) {
		bot.notifier = notifier
	}
}

// WithLogger overrides the default logger
func WithLogger(log logger.Logger) Option {
	return func(bot *Bot) {
		bot.log = log
	}
}
