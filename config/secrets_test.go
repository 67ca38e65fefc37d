package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSecretsFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	content := strings.Join([]string{
		"TELEGRAM_TOKEN=123:abc",
		"ALLOWED_TELEGRAM_USERS=111, 222",
		"TESTNET_API_KEY=tk",
		"TESTNET_API_SECRET=ts",
		"MAINNET_API_KEY=mk",
		"MAINNET_API_SECRET=ms",
	}, "\n")
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	secrets, err := LoadSecrets(envFile)
	require.NoError(t, err)

	require.Equal(t, "123:abc", secrets.TelegramToken)
	require.Equal(t, []int64{111, 222}, secrets.AllowedUsers)
	require.Equal(t, "tk", secrets.Testnet.APIKey)
	require.Equal(t, "ms", secrets.Mainnet.APISecret)
	require.NoError(t, secrets.Validate())
}

func TestLoadSecretsMissingFileIsNotAnError(t *testing.T) {
	secrets, err := LoadSecrets(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	require.Error(t, secrets.Validate())
}

func TestSecretsValidate(t *testing.T) {
	s := &Secrets{}
	require.ErrorContains(t, s.Validate(), EnvTelegramToken)

	s.TelegramToken = "123:abc"
	require.ErrorContains(t, s.Validate(), EnvAllowedUsers)

	s.AllowedUsers = []int64{111}
	require.NoError(t, s.Validate())
}

func TestParseAllowedUsers(t *testing.T) {
	users, err := ParseAllowedUsers("111,222, 333")
	require.NoError(t, err)
	require.Equal(t, []int64{111, 222, 333}, users)

	users, err = ParseAllowedUsers("")
	require.NoError(t, err)
	require.Empty(t, users)

	_, err = ParseAllowedUsers("111,abc")
	require.ErrorContains(t, err, `"abc"`)
}

func TestSetAPIKeysPreservesUnrelatedLines(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	seed := "TELEGRAM_TOKEN=123:abc\nTESTNET_API_KEY=old\nTESTNET_API_SECRET=old\n"
	require.NoError(t, os.WriteFile(m.EnvFilePath(), []byte(seed), 0o600))

	require.NoError(t, m.SetAPIKeys("newkey", "newsecret", true))

	content, err := os.ReadFile(m.EnvFilePath())
	require.NoError(t, err)

	require.Contains(t, string(content), "TELEGRAM_TOKEN=123:abc")
	require.Contains(t, string(content), "TESTNET_API_KEY=newkey")
	require.Contains(t, string(content), "TESTNET_API_SECRET=newsecret")
	require.NotContains(t, string(content), "old")

	info, err := os.Stat(m.EnvFilePath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSetAPIKeysCreatesFileAndAppendsOtherEnvironment(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.SetAPIKeys("mk", "ms", false))

	content, err := os.ReadFile(m.EnvFilePath())
	require.NoError(t, err)
	require.Contains(t, string(content), "MAINNET_API_KEY=mk")
	require.NotContains(t, string(content), "TESTNET_API_KEY=mk")
}
