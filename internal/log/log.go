// Package log provides the process-wide zap logger and in-memory buffers of
// recent application and HTTP log entries.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger
var baseLogger *zap.Logger

// Init initializes the package-level logger. Every entry is also kept in
// the application log buffer.
func Init(debug bool) error {
	zapLogger, err := New(debug, zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	baseLogger = zapLogger
	log = zapLogger.Sugar()
	return nil
}

// New builds a logger with the development config when debug is set and
// the production config otherwise
func New(debug bool, opts ...zap.Option) (*zap.Logger, error) {
	opts = append(opts, zap.Hooks(func(e zapcore.Entry) error {
		GetLogBuffer().AddEntry(LogEntry{
			Timestamp: e.Time,
			Level:     e.Level.String(),
			Message:   e.Message,
			Caller:    e.Caller.TrimmedPath(),
		})
		return nil
	}))

	var zapLogger *zap.Logger
	var err error
	if debug {
		zapLogger, err = zap.NewDevelopment(opts...)
	} else {
		zapLogger, err = zap.NewProduction(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("can't initialize zap logger: %v", err)
	}
	return zapLogger, nil
}

// GetZapLogger returns the base zap logger for cases where it's needed (like GORM)
func GetZapLogger() *zap.Logger {
	if baseLogger == nil {
		// Fallback logger if not initialized
		baseLogger, _ = zap.NewProduction(zap.AddCallerSkip(1))
		log = baseLogger.Sugar()
	}
	return baseLogger
}

// GetSugaredLogger returns the sugared logger instance
func GetSugaredLogger() *zap.SugaredLogger {
	if log == nil {
		GetZapLogger()
	}
	return log
}

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		log.Sync()
	}
}

// Package-level convenience functions
func Debugf(template string, args ...interface{}) {
	GetSugaredLogger().Debugf(template, args...)
}

func Info(args ...interface{}) {
	GetSugaredLogger().Info(args...)
}

func Infof(template string, args ...interface{}) {
	GetSugaredLogger().Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	GetSugaredLogger().Warnf(template, args...)
}

func Error(args ...interface{}) {
	GetSugaredLogger().Error(args...)
}

func Errorf(template string, args ...interface{}) {
	GetSugaredLogger().Errorf(template, args...)
}

func Fatal(args ...interface{}) {
	GetSugaredLogger().Fatal(args...)
	os.Exit(1)
}

func Fatalf(template string, args ...interface{}) {
	GetSugaredLogger().Fatalf(template, args...)
	os.Exit(1)
}
