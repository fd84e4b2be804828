// Copyright 2019 The go-zilpool Authors
// This file is part of the go-zilpool library.
//
// The go-zilpool library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-zilpool library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-zilpool library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides the leveled key/value logger used across the proxy.
package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

const errorKey = "LOG_ERROR"

// Level aliases, ordered. Trace sits below slog's Debug, Crit above Error.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelCrit  = slog.Level(12)
)

// LevelFromString resolves a configuration string into a level.
func LevelFromString(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "", "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "crit", "critical":
		return LevelCrit
	default:
		return LevelInfo
	}
}

// Logger writes key/value log records at named levels. Crit exits the
// process after logging.
type Logger interface {
	// New returns a child logger with the given context attached to every
	// record.
	New(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)

	// Write emits a record at an explicit level.
	Write(level slog.Level, msg string, ctx ...any)

	// Enabled reports whether records at the given level are emitted.
	Enabled(level slog.Level) bool
}

type logger struct {
	inner *slog.Logger
}

// NewLogger wraps an slog handler into a Logger.
func NewLogger(h slog.Handler) Logger {
	return &logger{slog.New(h)}
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{l.inner.With(ctx...)}
}

func (l *logger) Write(level slog.Level, msg string, ctx ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(ctx...)
	l.inner.Handler().Handle(context.Background(), r)
}

func (l *logger) Trace(msg string, ctx ...any) { l.Write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.Write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.Write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.Write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.Write(LevelError, msg, ctx...) }

func (l *logger) Crit(msg string, ctx ...any) {
	l.Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}

func (l *logger) Enabled(level slog.Level) bool {
	return l.inner.Enabled(context.Background(), level)
}
