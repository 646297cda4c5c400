// Package log provides the engine's structured, leveled, terminal-aware
// logger. Every subsystem (gc, object, ic, vm, engine) logs through one
// instance so that GC cycles, structure transitions, and IC invalidation
// can be correlated in a single stream.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level mirrors slog.Level with the names the engine's components use.
type Level = slog.Level

const (
	LevelTrace Level = slog.Level(-8)
	LevelDebug Level = slog.LevelDebug
	LevelInfo  Level = slog.LevelInfo
	LevelWarn  Level = slog.LevelWarn
	LevelError Level = slog.LevelError
)

var levelColor = map[Level]*color.Color{
	LevelTrace: color.New(color.FgHiBlack),
	LevelDebug: color.New(color.FgCyan),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

var levelTag = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO ",
	LevelWarn:  "WARN ",
	LevelError: "ERROR",
}

// Logger is the engine's logging façade. The zero value is not usable;
// construct one with New.
type Logger struct {
	sl   *slog.Logger
	comp string
}

// New constructs a Logger writing to w. If w is a terminal, level tags
// are colorized; otherwise output is plain text suitable for files and
// pipes.
func New(w io.Writer, level Level) *Logger {
	out := w
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
		if color {
			out = colorable.NewColorable(f)
		}
	}
	h := &textHandler{w: out, level: level, color: color}
	return &Logger{sl: slog.New(h)}
}

// Default returns a Logger writing to stderr at info level, used when an
// engine is created without an explicit logger.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

// With returns a Logger scoped to the named component (gc, object, ic,
// vm, engine); subsequent records are tagged component=<name>.
func (l *Logger) With(component string) *Logger {
	return &Logger{sl: l.sl, comp: component}
}

func (l *Logger) log(level Level, msg string, kv ...any) {
	if l.comp != "" {
		kv = append([]any{"component", l.comp}, kv...)
	}
	l.sl.Log(context.Background(), level, msg, kv...)
}

func (l *Logger) Trace(msg string, kv ...any) { l.log(LevelTrace, msg, kv...) }
func (l *Logger) Debug(msg string, kv ...any)  { l.log(LevelDebug, msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)   { l.log(LevelInfo, msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)   { l.log(LevelWarn, msg, kv...) }
func (l *Logger) Error(msg string, kv ...any)  { l.log(LevelError, msg, kv...) }

// textHandler is a minimal slog.Handler producing "time level msg k=v ..."
// (a scoped Logger's component appears among the pairs as component=<name>)
// lines, colorizing the level tag when color is enabled. It intentionally
// avoids JSON: the engine's own logs are meant to be read by a developer
// at a terminal, not shipped to a log aggregator (a host embedding the
// engine is free to supply its own io.Writer, including one that pipes
// to a structured sink).
type textHandler struct {
	w     io.Writer
	level Level
	color bool
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	tag := levelTag[r.Level]
	if tag == "" {
		tag = r.Level.String()
	}
	if h.color {
		if c, ok := levelColor[r.Level]; ok {
			tag = c.Sprint(tag)
		}
	}
	line := fmt.Sprintf("%s %s %s", r.Time.Format(time.RFC3339), tag, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }
