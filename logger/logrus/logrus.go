// Package logrus provides a logrus-backed implementation of the logger port,
// for deployments that prefer logrus formatting over zerolog.
package logrus

import (
	"os"

	"bybot/logger"

	"github.com/sirupsen/logrus"
)

type wrapper struct {
	*logrus.Entry
}

// New configures the standard logrus logger and returns it as a logger.Logger
func New(format, level string) (logger.Logger, error) {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyLevel: "severity",
		logrus.FieldKeyMsg:   "message",
	}

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			FieldMap: fieldMap,
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			FieldMap:      fieldMap,
		})
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logrus.SetLevel(logLevel)
	logrus.SetOutput(os.Stdout)

	return &wrapper{
		logrus.StandardLogger().WithFields(map[string]interface{}{}),
	}, nil
}

func (w *wrapper) WithField(key string, value any) logger.Logger {
	return &wrapper{w.Entry.WithField(key, value)}
}

func (w *wrapper) WithFields(fields map[string]any) logger.Logger {
	return &wrapper{w.Entry.WithFields(fields)}
}

func (w *wrapper) WithError(err error) logger.Logger {
	return &wrapper{w.Entry.WithError(err)}
}

func (w *wrapper) SetLevel(level logger.Level) {
	logrus.SetLevel(toLogrusLevel(level))
}

func (w *wrapper) GetLevel() logger.Level {
	return toLevel(logrus.GetLevel())
}

func toLogrusLevel(level logger.Level) logrus.Level {
	switch level {
	case logger.TraceLevel:
		return logrus.TraceLevel
	case logger.DebugLevel:
		return logrus.DebugLevel
	case logger.InfoLevel:
		return logrus.InfoLevel
	case logger.WarnLevel:
		return logrus.WarnLevel
	case logger.ErrorLevel:
		return logrus.ErrorLevel
	case logger.FatalLevel:
		return logrus.FatalLevel
	case logger.PanicLevel:
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func toLevel(level logrus.Level) logger.Level {
	switch level {
	case logrus.TraceLevel:
		return logger.TraceLevel
	case logrus.DebugLevel:
		return logger.DebugLevel
	case logrus.InfoLevel:
		return logger.InfoLevel
	case logrus.WarnLevel:
		return logger.WarnLevel
	case logrus.ErrorLevel:
		return logger.ErrorLevel
	case logrus.FatalLevel:
		return logger.FatalLevel
	case logrus.PanicLevel:
		return logger.PanicLevel
	default:
		return logger.NoLevel
	}
}
