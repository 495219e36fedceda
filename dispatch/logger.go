package dispatch

import "fmt"

// Logger keeps the package decoupled from any particular logging stack.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] DISPATCH "+format+"\n", args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] DISPATCH "+format+"\n", args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] DISPATCH "+format+"\n", args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] DISPATCH "+format+"\n", args...)
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
