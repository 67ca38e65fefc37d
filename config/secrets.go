package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable names shared by both deployment paths
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvAllowedUsers  = "ALLOWED_TELEGRAM_USERS"

	EnvTestnetAPIKey    = "TESTNET_API_KEY"
	EnvTestnetAPISecret = "TESTNET_API_SECRET"
	EnvMainnetAPIKey    = "MAINNET_API_KEY"
	EnvMainnetAPISecret = "MAINNET_API_SECRET"
)

// Credentials is an exchange API key pair
type Credentials struct {
	APIKey    string
	APISecret string
}

// Secrets is the environment variable contract of the bot. It is loaded
// once at process start; the process refuses to run without the Telegram
// token and at least one authorized user.
type Secrets struct {
	TelegramToken string
	AllowedUsers  []int64
	Testnet       Credentials
	Mainnet       Credentials
}

// LoadSecrets reads the secrets contract from the process environment,
// optionally seeded from a .env style file. Environment variables take
// precedence over file values.
func LoadSecrets(envFile string) (*Secrets, error) {
	v := viper.New()
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
			}
		}
	}

	secrets := &Secrets{
		TelegramToken: v.GetString(EnvTelegramToken),
		Testnet: Credentials{
			APIKey:    v.GetString(EnvTestnetAPIKey),
			APISecret: v.GetString(EnvTestnetAPISecret),
		},
		Mainnet: Credentials{
			APIKey:    v.GetString(EnvMainnetAPIKey),
			APISecret: v.GetString(EnvMainnetAPISecret),
		},
	}

	users, err := ParseAllowedUsers(v.GetString(EnvAllowedUsers))
	if err != nil {
		return nil, err
	}
	secrets.AllowedUsers = users

	return secrets, nil
}

// Validate enforces the invariants that must hold before the bot starts
func (s *Secrets) Validate() error {
	if s.TelegramToken == "" {
		return fmt.Errorf("%s is not set", EnvTelegramToken)
	}
	if len(s.AllowedUsers) == 0 {
		return fmt.Errorf("%s is not set", EnvAllowedUsers)
	}
	return nil
}

// ParseAllowedUsers parses the comma separated user ID list. Telegram IDs
// do not fit int32, so they are kept as int64.
func ParseAllowedUsers(raw string) ([]int64, error) {
	var users []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram user id %q: %w", part, err)
		}
		users = append(users, id)
	}
	return users, nil
}

// SetAPIKeys updates the API key pair for one environment in the .env
// file next to the settings, preserving every unrelated line. The file is
// created when missing and always ends up owner-readable only.
func (m *Manager) SetAPIKeys(apiKey, apiSecret string, testnet bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := "MAINNET_"
	if testnet {
		prefix = "TESTNET_"
	}

	path := m.EnvFilePath()
	var lines []string
	if content, err := os.ReadFile(path); err == nil {
		lines = strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read env file: %w", err)
	}

	keyLine := prefix + "API_KEY=" + apiKey
	secretLine := prefix + "API_SECRET=" + apiSecret

	var keyUpdated, secretUpdated bool
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, prefix+"API_KEY="):
			lines[i] = keyLine
			keyUpdated = true
		case strings.HasPrefix(line, prefix+"API_SECRET="):
			lines[i] = secretLine
			secretUpdated = true
		}
	}

	if !keyUpdated {
		lines = append(lines, keyLine)
	}
	if !secretUpdated {
		lines = append(lines, secretLine)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), settingsFileMode); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}

	return os.Chmod(path, settingsFileMode)
}
