package logger

import "sync/atomic"

var defLogger atomic.Value

func init() {
	defLogger.Store(loggerHolder{NewSlog(InfoLevel, false)})
}

// loggerHolder keeps the stored concrete type stable for atomic.Value.
type loggerHolder struct {
	Logger
}

func current() Logger {
	return defLogger.Load().(loggerHolder).Logger //nolint:forcetypeassert
}

func Debug(msg string, keysAndValues ...any) {
	current().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	current().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	current().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	current().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	current().Fatal(msg, keysAndValues...)
}

func SetLevel(level Level) {
	current().SetLevel(level)
}

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return current()
}

// SetDefault replaces the package default logger. A nil l is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(loggerHolder{l})
}

func With(keyValues ...any) Logger {
	return current().With(keyValues...)
}
