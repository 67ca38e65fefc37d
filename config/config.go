// Package config implements the shared launch contract of the bot: the
// runtime settings file (bot_config.json) and the environment secrets.
// Both deployment paths (long polling daemon and webhook function) read
// the same shape, so validation lives here rather than in the launchers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bybot/core"

	"github.com/spf13/viper"
)

// Environment names
const (
	EnvTestnet = "testnet"
	EnvMainnet = "mainnet"
)

// Defaults applied when the settings file is created or incomplete
const (
	DefaultLeverage          = 5
	DefaultBalancePercentage = 0.1

	MinLeverage = 1
	MaxLeverage = 20
)

// SettingsFileName is the runtime settings file inside the config directory
const SettingsFileName = "bot_config.json"

// settingsFileMode keeps the settings readable by the owning user only
const settingsFileMode = 0o600

// TradingParams holds the position sizing parameters
type TradingParams struct {
	Leverage          int     `json:"leverage" mapstructure:"leverage"`
	BalancePercentage float64 `json:"balance_percentage" mapstructure:"balance_percentage"`
}

// Config is the persisted shape of bot_config.json
type Config struct {
	Environment   string        `json:"environment" mapstructure:"environment"`
	TradingParams TradingParams `json:"trading_params" mapstructure:"trading_params"`
}

// Manager owns the settings file and serializes access to it
type Manager struct {
	mu        sync.RWMutex
	configDir string
	config    Config
}

// defaultConfig returns the configuration written on first run
func defaultConfig() Config {
	return Config{
		Environment: EnvTestnet,
		TradingParams: TradingParams{
			Leverage:          DefaultLeverage,
			BalancePercentage: DefaultBalancePercentage,
		},
	}
}

// NewManager loads the settings file from configDir, creating it with
// defaults when absent. Existing files are never overwritten; missing
// trading parameters are backfilled and saved.
func NewManager(configDir string) (*Manager, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configDir: configDir}
	if err := m.load(); err != nil {
		return nil, err
	}

	return m, nil
}

// SettingsPath returns the absolute path of the settings file
func (m *Manager) SettingsPath() string {
	return filepath.Join(m.configDir, SettingsFileName)
}

// EnvFilePath returns the path of the .env secrets file next to the settings
func (m *Manager) EnvFilePath() string {
	return filepath.Join(m.configDir, ".env")
}

// DatabasePath returns the path of the local order database
func (m *Manager) DatabasePath() string {
	return filepath.Join(m.configDir, "bybot.db")
}

func (m *Manager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.SettingsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		m.config = defaultConfig()
		return m.save()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}

	// Backfill defaults without touching explicit values
	changed := false
	if cfg.Environment == "" {
		cfg.Environment = EnvTestnet
		changed = true
	}
	if cfg.TradingParams.Leverage == 0 {
		cfg.TradingParams.Leverage = DefaultLeverage
		changed = true
	}
	if cfg.TradingParams.BalancePercentage == 0 {
		cfg.TradingParams.BalancePercentage = DefaultBalancePercentage
		changed = true
	}

	m.config = cfg
	if changed {
		return m.save()
	}

	return nil
}

// save writes the settings atomically with owner-only permissions.
// Callers must hold the write lock.
func (m *Manager) save() error {
	content, err := json.MarshalIndent(m.config, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	path := m.SettingsPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, settingsFileMode); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	// Rename keeps the temp file mode, but tighten in case the file
	// pre-existed with looser permissions.
	return os.Chmod(path, settingsFileMode)
}

// Environment returns the active exchange environment
func (m *Manager) Environment() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Environment
}

// IsTestnet reports whether the testnet environment is active
func (m *Manager) IsTestnet() bool {
	return m.Environment() == EnvTestnet
}

// SwitchEnvironment switches between testnet and mainnet
func (m *Manager) SwitchEnvironment(useTestnet bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if useTestnet {
		m.config.Environment = EnvTestnet
	} else {
		m.config.Environment = EnvMainnet
	}

	return m.save()
}

// TradingParams returns the current position sizing parameters
func (m *Manager) TradingParams() TradingParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.TradingParams
}

// SetLeverage updates the leverage, enforcing the 1-20 range
func (m *Manager) SetLeverage(leverage int) error {
	if leverage < MinLeverage || leverage > MaxLeverage {
		return fmt.Errorf("%w: %d (allowed %d-%d)",
			core.ErrInvalidLeverage, leverage, MinLeverage, MaxLeverage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.TradingParams.Leverage = leverage
	return m.save()
}

// SetBalancePercentage updates the balance fraction used per trade.
// The value is a fraction in (0, 1].
func (m *Manager) SetBalancePercentage(fraction float64) error {
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("%w: %.4f (allowed fraction in (0, 1])",
			core.ErrInvalidPercentage, fraction)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.TradingParams.BalancePercentage = fraction
	return m.save()
}

// ActiveCredentials selects the API key pair matching the active
// environment from the given secrets
func (m *Manager) ActiveCredentials(secrets *Secrets) (Credentials, error) {
	var creds Credentials
	if m.IsTestnet() {
		creds = secrets.Testnet
	} else {
		creds = secrets.Mainnet
	}

	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, fmt.Errorf("%w for %s", core.ErrMissingCredentials, m.Environment())
	}

	return creds, nil
}
