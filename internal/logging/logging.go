// Package logging owns the process logger shared by every package.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var (
	level  = new(slog.LevelVar)
	logger = newLogger(os.Stderr, isTerminal(os.Stderr))
)

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger
}

// SetLevel changes the minimum level for the process logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

func newLogger(w io.Writer, color bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !color,
	}))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
