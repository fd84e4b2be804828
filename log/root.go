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

package log

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

var root atomic.Value // Logger

func init() {
	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	output := colorable.NewColorableStderr()
	root.Store(NewLogger(NewTerminalHandler(output, LevelInfo, useColor)))
}

// Root returns the process-wide root logger.
func Root() Logger {
	return root.Load().(Logger)
}

// SetDefault replaces the root logger.
func SetDefault(l Logger) {
	root.Store(l)
}

// Setup configures the root logger from the logging section of the config:
// terminal output at the given level, plus an optional rotating file.
func Setup(level string, file string, rotatingSizeMB, backupCount int) {
	lvl := LevelFromString(level)

	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	handlers := []slog.Handler{
		NewTerminalHandler(colorable.NewColorableStderr(), lvl, useColor),
	}
	if file != "" {
		if rotatingSizeMB <= 0 {
			rotatingSizeMB = 8
		}
		if backupCount <= 0 {
			backupCount = 5
		}
		fileOut := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    rotatingSizeMB,
			MaxBackups: backupCount,
		}
		handlers = append(handlers, NewTerminalHandler(fileOut, lvl, false))
	}
	SetDefault(NewLogger(MultiHandler(handlers...)))
}

// New returns a child of the root logger with the given context.
func New(ctx ...any) Logger {
	return Root().New(ctx...)
}

func Trace(msg string, ctx ...any) { Root().Write(LevelTrace, msg, ctx...) }
func Debug(msg string, ctx ...any) { Root().Write(LevelDebug, msg, ctx...) }
func Info(msg string, ctx ...any)  { Root().Write(LevelInfo, msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root().Write(LevelWarn, msg, ctx...) }
func Error(msg string, ctx ...any) { Root().Write(LevelError, msg, ctx...) }

func Crit(msg string, ctx ...any) {
	Root().Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}
