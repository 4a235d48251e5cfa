// Package logging wires the process-wide structured logging facade.
//
// Per the design note against global mutable singletons, there is no
// package-level logger: New constructs one explicit value at process entry
// (cmd/.../main.go) which callers thread down through constructors.
package logging

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Logger is the concrete logger type used throughout the collector and
// frontend. It is a thin alias so call sites don't repeat the generic
// Event parameter.
type Logger = logiface.Logger[*islog.Event]

// Option configures a Logger.
type Option = logiface.Option[*islog.Event]

// New builds a Logger backed by an slog.Handler. Pass nil to get a
// text handler writing to stderr at info level.
func New(handler slog.Handler, opts ...Option) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	all := append([]Option{islog.L.WithSlogHandler(handler)}, opts...)
	return islog.L.New(all...)
}

// WithLevel restricts the logger to a minimum level.
func WithLevel(level logiface.Level) Option {
	return islog.L.WithLevel(level)
}
