// Package logger is the structured logger shared by the ORM, the composite
// key extension and the CLI. It wraps a zap SugaredLogger.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across the module
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// Level controls which messages are written
type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

type zapLogger struct {
	*zap.SugaredLogger
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(WarnLevel)
	global Logger
)

func init() {
	global = newZapLogger(zapcore.Lock(os.Stderr))
}

func newZapLogger(out zapcore.WriteSyncer) *zapLogger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), out, level)
	return &zapLogger{SugaredLogger: zap.New(core).Sugar()}
}

// SetLevel changes the minimum level of every logger
func SetLevel(l Level) {
	level.SetLevel(l)
}

// GetLevel returns the current minimum level
func GetLevel() Level {
	return level.Level()
}

// Configure sets the level from the CLI verbosity flags. Verbose shows
// everything, debug shows info and above, otherwise only warnings and errors.
func Configure(debug, verbose bool) {
	switch {
	case verbose:
		SetLevel(DebugLevel)
	case debug:
		SetLevel(InfoLevel)
	default:
		SetLevel(WarnLevel)
	}
}

// SetOutput redirects the global logger, mainly for tests
func SetOutput(out zapcore.WriteSyncer) {
	mu.Lock()
	defer mu.Unlock()
	global = newZapLogger(out)
}

// ParseLevel parses "debug", "info", "warn" or "error"
func ParseLevel(s string) (Level, error) {
	return zapcore.ParseLevel(s)
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func (l *zapLogger) Debug(msg string) { l.SugaredLogger.Debug(msg) }
func (l *zapLogger) Info(msg string)  { l.SugaredLogger.Info(msg) }
func (l *zapLogger) Warn(msg string)  { l.SugaredLogger.Warn(msg) }
func (l *zapLogger) Error(msg string) { l.SugaredLogger.Error(msg) }

func (l *zapLogger) WithField(key string, value interface{}) Logger {
	return &zapLogger{SugaredLogger: l.SugaredLogger.With(key, value)}
}

func (l *zapLogger) WithFields(fields map[string]interface{}) Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &zapLogger{SugaredLogger: l.SugaredLogger.With(args...)}
}

func Debug(msg string) { get().Debug(msg) }
func Info(msg string)  { get().Info(msg) }
func Warn(msg string)  { get().Warn(msg) }
func Error(msg string) { get().Error(msg) }

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { get().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

// WithField returns a logger that adds key=value to every message
func WithField(key string, value interface{}) Logger {
	return get().WithField(key, value)
}

// WithFields returns a logger that adds all fields to every message
func WithFields(fields map[string]interface{}) Logger {
	return get().WithFields(fields)
}
