package core

// Settings represents the launch configuration for the application
type Settings struct {
	Telegram TelegramSettings // Telegram interface settings
}

// TelegramSettings holds configuration for the Telegram integration
type TelegramSettings struct {
	Enabled bool    // Whether the Telegram interface is enabled
	Token   string  // Telegram bot token
	Users   []int64 // List of authorized user IDs
}
