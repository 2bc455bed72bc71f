package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger     zerolog.Logger
	loggerLock sync.RWMutex
)

func init() {
	// Pretty console output for development, JSON for production.
	var output io.Writer
	if os.Getenv("SITEPILOT_ENV") == "production" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}
	}

	logger = zerolog.New(output).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// SetLevel sets the global log level at runtime
func SetLevel(levelStr string) {
	level := parseLogLevel(levelStr)
	loggerLock.Lock()
	logger = logger.Level(level)
	loggerLock.Unlock()
}

// SetOutput redirects all log output. The TUI uses this to keep log lines
// off the alternate screen while it is running.
func SetOutput(w io.Writer) {
	loggerLock.Lock()
	logger = logger.Output(w)
	loggerLock.Unlock()
}

// parseLogLevel converts a string log level to zerolog.Level
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger.Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger.Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger.Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger.Error()
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger.Fatal()
}

// GetLogger returns a named sub-logger tagged with a component field.
// Useful for packages that log frequently (client, deploy, chat).
func GetLogger(component string) zerolog.Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger.With().Str("component", component).Logger()
}

// Logger returns the underlying zerolog.Logger for integrations
func Logger() zerolog.Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger
}

// StdLogger returns a standard library *log.Logger that writes to zerolog at
// the specified level. Useful for stdlib integrations.
func StdLogger(level zerolog.Level) *stdlog.Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return stdlog.New(logger.Level(level), "", 0)
}
