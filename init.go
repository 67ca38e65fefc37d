package bybot

import (
	"os"
	"strconv"

	"bybot/logger"
	"bybot/logger/zerolog"
)

const (
	defaultLogLevel      = "info"
	defaultLogTimeFormat = "2006-01-02 15:04:05"
	defaultLogColored    = "true"
	defaultLogJSON       = "false"
)

// Environment variable names
const (
	envLogLevel      = "BYBOT_LOG_LEVEL"
	envLogTimeFormat = "BYBOT_LOG_TIME_FORMAT"
	envLogColor      = "BYBOT_LOG_COLOR"
	envLogJSON       = "BYBOT_LOG_JSON"
)

// DefaultLog is the default logger instance
var DefaultLog logger.Logger

func init() {
	log, err := initLogger()
	if err != nil {
		panic(err)
	}

	DefaultLog = log
}

// initLogger creates a logger configured from environment variables
func initLogger() (logger.Logger, error) {
	logLevel := getEnvWithDefault(envLogLevel, defaultLogLevel)
	logTimeFormat := getEnvWithDefault(envLogTimeFormat, defaultLogTimeFormat)

	logColored, err := strconv.ParseBool(getEnvWithDefault(envLogColor, defaultLogColored))
	if err != nil {
		return nil, err
	}

	logJSON, err := strconv.ParseBool(getEnvWithDefault(envLogJSON, defaultLogJSON))
	if err != nil {
		return nil, err
	}

	return zerolog.New(logLevel, logTimeFormat, logColored, logJSON)
}

func getEnvWithDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
