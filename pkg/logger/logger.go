// Package logger holds the process-wide logger. Commands configure it once
// from config and environment; packages below cmd return errors instead of
// logging.
package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger is a wrapper around charmbracelet/log.Logger
type Logger struct {
	*log.Logger
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns the singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		instance = &Logger{
			Logger: log.NewWithOptions(os.Stderr, log.Options{
				Level:           log.InfoLevel,
				ReportTimestamp: true,
				TimeFormat:      "15:04:05",
			}),
		}
	})
	return instance
}

// parseLevel maps a config-supplied level string onto a log level.
// Unknown values fall back to info.
func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// SetLogLevel sets the log level from a string
func (l *Logger) SetLogLevel(level string) {
	logLevel := parseLevel(level)
	l.SetLevel(logLevel)
	log.SetLevel(logLevel) // Set the global logger level too
}

// ConfigureFromEnv applies STEVEDORE_LOG_LEVEL on top of the configured
// level, so a single invocation can be made verbose without touching config.
func (l *Logger) ConfigureFromEnv() {
	if logLevelEnv := os.Getenv("STEVEDORE_LOG_LEVEL"); logLevelEnv != "" {
		l.SetLogLevel(logLevelEnv)
	}
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	GetLogger().Debug(msg, keyvals...)
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	GetLogger().Info(msg, keyvals...)
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	GetLogger().Warn(msg, keyvals...)
}
