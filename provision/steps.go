package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// secretFileMode restricts secrets and settings to the owning user
const secretFileMode = 0o600

// envTemplate is written on first provisioning so the operator can fill
// in the secrets contract. Existing files are never touched.
const envTemplate = `TELEGRAM_TOKEN=
ALLOWED_TELEGRAM_USERS=
TESTNET_API_KEY=
TESTNET_API_SECRET=
MAINNET_API_KEY=
MAINNET_API_SECRET=
`

// settingsTemplate mirrors the default runtime settings record
const settingsTemplate = `{
    "environment": "testnet",
    "trading_params": {
        "leverage": 5,
        "balance_percentage": 0.1
    }
}
`

// EnsureDir creates the directory when missing
func EnsureDir(path string) Step {
	return Step{
		Name: fmt.Sprintf("ensure directory %s", path),
		Run: func(_ context.Context) error {
			return os.MkdirAll(path, 0o755)
		},
	}
}

// WriteFileIfAbsent materializes a file with owner-only permissions,
// leaving any existing file untouched
func WriteFileIfAbsent(path, content string) Step {
	return Step{
		Name: fmt.Sprintf("materialize %s", filepath.Base(path)),
		Run: func(_ context.Context) error {
			if _, err := os.Stat(path); err == nil {
				return nil
			} else if !os.IsNotExist(err) {
				return err
			}

			return os.WriteFile(path, []byte(content), secretFileMode)
		},
	}
}

// RestrictPermissions tightens an existing file to owner-only access.
// Missing files are not an error; an earlier run may not have created
// them yet.
func RestrictPermissions(path string) Step {
	return Step{
		Name: fmt.Sprintf("restrict permissions on %s", filepath.Base(path)),
		Run: func(_ context.Context) error {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				return nil
			}

			return os.Chmod(path, secretFileMode)
		},
	}
}

// DefaultSteps returns the standard bootstrap sequence for a config
// directory: directory, secrets template, settings record, permissions.
func DefaultSteps(configDir string) []Step {
	envFile := filepath.Join(configDir, ".env")
	settingsFile := filepath.Join(configDir, "bot_config.json")

	return []Step{
		EnsureDir(configDir),
		WriteFileIfAbsent(envFile, envTemplate),
		WriteFileIfAbsent(settingsFile, settingsTemplate),
		RestrictPermissions(envFile),
		RestrictPermissions(settingsFile),
	}
}
