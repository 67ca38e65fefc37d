package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bybot"
	"bybot/config"
	"bybot/core"
	"bybot/exchange/bybit"
	"bybot/logger"
	"bybot/logger/logrus"
	"bybot/logger/zerolog"
	"bybot/provision"
	"bybot/webhook"
)

// Command line flags
var (
	configDir  string
	listen     string
	logLevel   string
	logBackend string
	jsonLog    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "bybot",
		Short:   "Telegram-driven Bybit USDT perpetuals bot",
		Version: "1.0.0",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("log-level") && !flags.Changed("json-log") && !flags.Changed("log-backend") {
				return nil
			}
			log, err := buildLogger()
			if err != nil {
				return err
			}
			bybot.DefaultLog = log
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", defaultConfigDir(),
		"Directory holding bot_config.json and .env")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logBackend, "log-backend", "zerolog",
		"Log backend (zerolog or logrus)")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false,
		"Emit logs as JSON instead of colored console output")

	rootCmd.AddCommand(
		buildInitCmd(),
		buildRunCmd(),
		buildServeCmd(),
		buildSetWebhookCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger() (logger.Logger, error) {
	switch logBackend {
	case "zerolog":
		return zerolog.New(logLevel, "2006-01-02 15:04:05", !jsonLog, jsonLog)
	case "logrus":
		format := "text"
		if jsonLog {
			format = "json"
		}
		return logrus.New(format, logLevel)
	default:
		return nil, fmt.Errorf("unknown log backend %q", logBackend)
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bybot"
	}
	return home + "/.bybot"
}

func buildInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Provision the config directory, secrets template and settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner := provision.NewRunner(bybot.DefaultLog, provision.DefaultSteps(configDir)...)
			return runner.Run(cmd.Context())
		},
	}
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot with Telegram long polling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := assembleBot(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return bot.Run(ctx)
		},
	}
}

func buildServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot behind a Telegram webhook listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := assembleBot(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return bot.Serve(ctx, listen)
		},
	}

	serveCmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "Webhook listen address")
	return serveCmd
}

func buildSetWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-webhook <public-url>",
		Short: "Register the public webhook URL with Telegram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager(configDir)
			if err != nil {
				return err
			}

			secrets, err := config.LoadSecrets(cfg.EnvFilePath())
			if err != nil {
				return err
			}
			if err := secrets.Validate(); err != nil {
				return err
			}

			if err := webhook.Register(cmd.Context(), secrets.TelegramToken, args[0]); err != nil {
				return err
			}

			bybot.DefaultLog.WithField("url", args[0]).Info("webhook registered")
			return nil
		},
	}
}

// assembleBot loads settings and secrets, provisions missing files, and
// wires the exchange client for the active environment
func assembleBot(ctx context.Context) (*bybot.Bot, error) {
	runner := provision.NewRunner(bybot.DefaultLog, provision.DefaultSteps(configDir)...)
	if err := runner.Run(ctx); err != nil {
		return nil, err
	}

	cfg, err := config.NewManager(configDir)
	if err != nil {
		return nil, err
	}

	secrets, err := config.LoadSecrets(cfg.EnvFilePath())
	if err != nil {
		return nil, err
	}
	if err := secrets.Validate(); err != nil {
		return nil, err
	}

	credentials, err := cfg.ActiveCredentials(secrets)
	if err != nil {
		return nil, err
	}

	exch, err := bybit.NewExchange(bybot.DefaultLog, bybit.Config{
		APIKey:    credentials.APIKey,
		APISecret: credentials.APISecret,
		Testnet:   cfg.IsTestnet(),
	})
	if err != nil {
		return nil, err
	}

	settings := &core.Settings{
		Telegram: core.TelegramSettings{
			Enabled: true,
			Token:   secrets.TelegramToken,
			Users:   secrets.AllowedUsers,
		},
	}

	return bybot.NewBot(settings, cfg, exch)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
