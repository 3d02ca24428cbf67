// Package logging provides the engine's own operational logging: leveled,
// structured lines about what the dispatcher/transport are doing. It is
// distinct from the pluggable Logger reporter interface in the root
// package, which consumes per-test results rather than engine chatter.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Entry with the level-gated Printf family the
// engine's internals call, plus a package-level default/singleton the
// way the teacher's hand-rolled logger exposed Default()/SetDefault().
type Logger struct {
	entry *logrus.Entry
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available engine log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level  LogLevel
	Output io.Writer
	// JSON selects logrus's JSON formatter instead of its default text
	// formatter; the CLI's --log-format=json flag maps here.
	JSON bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger with a fresh run-correlation id attached
// to every field set it emits, so log lines from one dispatcher run can
// be grepped out of interleaved output.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(config.Level.logrusLevel())
	if config.JSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{entry: base.WithField("run_id", uuid.NewString())}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// WithFields returns a derived logger carrying additional structured
// fields for the remainder of a call chain (e.g. suite/test names).
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func argsToFields(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}

func (l *Logger) Debug(msg string, args ...any) {
	l.entry.WithFields(argsToFields(args)).Debug(msg)
}

func (l *Logger) Info(msg string, args ...any) {
	l.entry.WithFields(argsToFields(args)).Info(msg)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.entry.WithFields(argsToFields(args)).Warn(msg)
}

func (l *Logger) Error(msg string, args ...any) {
	l.entry.WithFields(argsToFields(args)).Error(msg)
}

// Printf-style logging, kept for call sites that build their own message.
func (l *Logger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

// Printf is kept for call sites that expect the teacher's printf-as-info
// convenience method.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
