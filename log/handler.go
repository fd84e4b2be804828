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
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

const (
	timeFormat        = "01-02|15:04:05.000"
	termMsgJust       = 40
	termCtxMaxPadding = 40
)

// TerminalHandler formats records as aligned "LVL [date|time] msg key=val"
// lines for interactive use.
type TerminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	level    slog.Level
	useColor bool
	attrs    []slog.Attr
	fieldPad map[string]int
}

// NewTerminalHandler returns a handler writing human-readable records at or
// above the given level. Coloring is the caller's call (tty detection).
func NewTerminalHandler(wr io.Writer, level slog.Level, useColor bool) *TerminalHandler {
	return &TerminalHandler{
		wr:       wr,
		level:    level,
		useColor: useColor,
		fieldPad: make(map[string]int),
	}
}

func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := make([]byte, 0, 128)
	buf = append(buf, h.levelString(r.Level)...)
	buf = append(buf, '[')
	buf = r.Time.AppendFormat(buf, timeFormat)
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)

	// pad message for attr alignment
	if len(r.Message) < termMsgJust {
		buf = append(buf, strings.Repeat(" ", termMsgJust-len(r.Message))...)
	}
	for _, attr := range h.attrs {
		buf = h.appendAttr(buf, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		buf = h.appendAttr(buf, attr)
		return true
	})
	buf = append(buf, '\n')
	_, err := h.wr.Write(buf)
	return err
}

func (h *TerminalHandler) appendAttr(buf []byte, attr slog.Attr) []byte {
	val := attrValueString(attr.Value)
	padding := h.fieldPad[attr.Key]
	length := len(attr.Key) + 1 + len(val)
	if padding < length && length <= termCtxMaxPadding {
		padding = length
		h.fieldPad[attr.Key] = padding
	}
	buf = append(buf, ' ')
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	buf = append(buf, val...)
	if length < padding {
		buf = append(buf, strings.Repeat(" ", padding-length)...)
	}
	return buf
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &TerminalHandler{
		wr:       h.wr,
		level:    h.level,
		useColor: h.useColor,
		attrs:    append(append([]slog.Attr{}, h.attrs...), attrs...),
		fieldPad: make(map[string]int),
	}
	return next
}

func (h *TerminalHandler) WithGroup(string) slog.Handler { return h }

var (
	critColor  = color.New(color.FgMagenta)
	errorColor = color.New(color.FgRed)
	warnColor  = color.New(color.FgYellow)
	infoColor  = color.New(color.FgGreen)
	debugColor = color.New(color.FgCyan)
)

func (h *TerminalHandler) levelString(level slog.Level) string {
	var label string
	var c *color.Color
	switch {
	case level >= LevelCrit:
		label, c = "CRIT ", critColor
	case level >= LevelError:
		label, c = "ERROR", errorColor
	case level >= LevelWarn:
		label, c = "WARN ", warnColor
	case level >= LevelInfo:
		label, c = "INFO ", infoColor
	case level >= LevelDebug:
		label, c = "DEBUG", debugColor
	default:
		label, c = "TRACE", debugColor
	}
	if h.useColor {
		return c.Sprint(label)
	}
	return label
}

func attrValueString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " =") {
			return strconv.Quote(s)
		}
		if s == "" {
			return `""`
		}
		return s
	case slog.KindTime:
		return v.Time().Format(timeFormat)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

// DiscardHandler drops every record; used to silence packages in tests.
type DiscardHandler struct{}

func (DiscardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (DiscardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d DiscardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d DiscardHandler) WithGroup(string) slog.Handler           { return d }

// multiHandler fans records out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

// MultiHandler combines handlers; a record is emitted by each handler whose
// level admits it.
func MultiHandler(handlers ...slog.Handler) slog.Handler {
	return &multiHandler{handlers}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{next}
}
