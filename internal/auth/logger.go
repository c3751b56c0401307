package auth

// Logger is the logging surface used by this package.
// *logging.Logger and *slog.Logger satisfy it. A nil Logger disables logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func logDebug(l Logger, msg string, args ...any) {
	if l != nil {
		l.Debug(msg, args...)
	}
}

func logInfo(l Logger, msg string, args ...any) {
	if l != nil {
		l.Info(msg, args...)
	}
}

func logWarn(l Logger, msg string, args ...any) {
	if l != nil {
		l.Warn(msg, args...)
	}
}

func logError(l Logger, msg string, args ...any) {
	if l != nil {
		l.Error(msg, args...)
	}
}
