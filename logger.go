package hogarfix

// Logger is the structured logging interface used throughout the runtime.
// Arguments are key-value pairs, compatible with slog, zap's sugared
// logger, and similar libraries:
//
//	logger.Info("module loaded", "slug", "widgets", "hooks", 3)
//
// The daemon wires a zap-backed implementation; tests typically provide a
// recording stub.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// NopLogger discards all log output. Used as a default when no logger is
// supplied.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
