package pebblekv

import (
	"fmt"
	"log/slog"
	"os"
)

// logger routes Pebble's printf-style logging into slog.
type logger struct {
	l *slog.Logger
}

func newLogger(l *slog.Logger) logger {
	return logger{l: l.With(slog.String("component", "pebble"))}
}

func (l logger) Infof(format string, args ...any) {
	l.l.Debug(fmt.Sprintf(format, args...))
}

func (l logger) Errorf(format string, args ...any) {
	l.l.Error(fmt.Sprintf(format, args...))
}

func (l logger) Fatalf(format string, args ...any) {
	l.l.Error(fmt.Sprintf(format, args...), slog.Bool("fatal", true))
	os.Exit(1)
}
