// Package input defines the collaborator that receives decoded input
// events on a Secondary.
package input

import (
	"context"
	"log/slog"

	"github.com/chronologos/kvmlink/internal/protocol"
)

// Injector receives the input a Primary forwards. Calls come from the
// session loop goroutine, one at a time, in wire order.
type Injector interface {
	Enter(x, y int16, seq uint32, mask uint16)
	Leave()
	KeyDown(id, mask, button uint16, lang string)
	KeyRepeat(id, mask, count, button uint16, lang string)
	KeyUp(id, mask, button uint16)
	MouseDown(button uint8)
	MouseUp(button uint8)
	MouseMove(x, y int16)
	MouseRelativeMove(dx, dy int16)
	MouseWheel(xDelta, yDelta int16)
	ScreenSaver(active bool)
	SecureInput(app string)
	Languages(langs string)
	SetOptions(opts protocol.Options)
	ResetOptions()
}

// Logger is an Injector that only logs. It stands in where no OS-level
// injection backend is wired.
type Logger struct {
	log   *slog.Logger
	level slog.Level
}

// NewLogger returns an Injector logging each event at level.
func NewLogger(log *slog.Logger, level slog.Level) *Logger {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Logger{log: log.With("component", "input"), level: level}
}

func (l *Logger) event(msg string, args ...any) {
	l.log.Log(context.Background(), l.level, msg, args...)
}

func (l *Logger) Enter(x, y int16, seq uint32, mask uint16) {
	l.event("enter", "x", x, "y", y, "seq", seq, "mask", mask)
}

func (l *Logger) Leave() { l.event("leave") }

func (l *Logger) KeyDown(id, mask, button uint16, lang string) {
	l.event("key down", "id", id, "mask", mask, "button", button, "lang", lang)
}

func (l *Logger) KeyRepeat(id, mask, count, button uint16, lang string) {
	l.event("key repeat", "id", id, "mask", mask, "count", count, "button", button, "lang", lang)
}

func (l *Logger) KeyUp(id, mask, button uint16) {
	l.event("key up", "id", id, "mask", mask, "button", button)
}

func (l *Logger) MouseDown(button uint8) { l.event("mouse down", "button", button) }
func (l *Logger) MouseUp(button uint8)   { l.event("mouse up", "button", button) }

func (l *Logger) MouseMove(x, y int16) { l.event("mouse move", "x", x, "y", y) }

func (l *Logger) MouseRelativeMove(dx, dy int16) {
	l.event("mouse relative move", "dx", dx, "dy", dy)
}

func (l *Logger) MouseWheel(xDelta, yDelta int16) {
	l.event("mouse wheel", "x_delta", xDelta, "y_delta", yDelta)
}

func (l *Logger) ScreenSaver(active bool) { l.event("screen saver", "active", active) }
func (l *Logger) SecureInput(app string)  { l.event("secure input", "app", app) }
func (l *Logger) Languages(langs string)  { l.event("languages", "langs", langs) }

func (l *Logger) SetOptions(opts protocol.Options) {
	attrs := make([]any, 0, 2*len(opts))
	for _, o := range opts {
		attrs = append(attrs, protocol.OptionName(o.ID), o.Value)
	}
	l.event("set options", attrs...)
}

func (l *Logger) ResetOptions() { l.event("reset options") }
