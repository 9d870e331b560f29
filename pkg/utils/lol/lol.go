// Package lol (log of location) is a leveled logger that prints the source
// location of the log call site, so log lines double as code references.
package lol

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/atomic"
)

// Level is a log level. Higher levels are noisier.
type Level int32

const (
	Fatal Level = iota
	Error
	Warn
	Info
	Debug
	Trace
)

var levelNames = []string{"fatal", "error", "warn", "info", "debug", "trace"}

var currentLevel = atomic.NewInt32(int32(Info))

// SetLogLevel sets the global log level by name. Unknown names leave the
// level unchanged.
func SetLogLevel(name string) {
	for i, n := range levelNames {
		if strings.EqualFold(name, n) {
			currentLevel.Store(int32(i))
			return
		}
	}
}

// GetLogLevel returns the current global log level name.
func GetLogLevel() string { return levelNames[currentLevel.Load()] }

var levelColors = map[Level]*color.Color{
	Fatal: color.New(color.FgRed, color.Bold),
	Error: color.New(color.FgRed),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgGreen),
	Debug: color.New(color.FgBlue),
	Trace: color.New(color.FgMagenta),
}

var locColor = color.New(color.Faint)

// P is a printer bound to one level. The package exports one per level; the
// log package re-exports them under single letter names.
type P struct {
	level Level
	label string
}

func New(level Level) *P {
	return &P{level: level, label: strings.ToUpper(levelNames[level][:1])}
}

func (p *P) enabled() bool { return int32(p.level) <= currentLevel.Load() }

func (p *P) emit(depth int, msg string) {
	loc := "???"
	if _, file, line, ok := runtime.Caller(depth); ok {
		parts := strings.Split(file, "/")
		if len(parts) > 2 {
			parts = parts[len(parts)-2:]
		}
		loc = fmt.Sprintf("%s:%d", strings.Join(parts, "/"), line)
	}
	ts := time.Now().Format("15:04:05.000")
	_, _ = fmt.Fprintf(
		os.Stderr, "%s %s %s %s\n",
		ts, levelColors[p.level].Sprint(p.label),
		strings.TrimRight(msg, "\n"), locColor.Sprint(loc),
	)
	if p.level == Fatal {
		os.Exit(1)
	}
}

// F formats and logs like fmt.Printf.
func (p *P) F(format string, a ...any) {
	if !p.enabled() {
		return
	}
	p.emit(3, fmt.Sprintf(format, a...))
}

// Ln logs like fmt.Println.
func (p *P) Ln(a ...any) {
	if !p.enabled() {
		return
	}
	p.emit(3, fmt.Sprintln(a...))
}

// S dumps values with %+v, one per line.
func (p *P) S(a ...any) {
	if !p.enabled() {
		return
	}
	var b strings.Builder
	for i, v := range a {
		if i > 0 {
			b.WriteByte(' ')
		}
		_, _ = fmt.Fprintf(&b, "%+v", v)
	}
	p.emit(3, b.String())
}

// C logs the result of the closure, evaluating it only if the level is
// enabled. Use for messages that are expensive to build.
func (p *P) C(fn func() string) {
	if !p.enabled() {
		return
	}
	p.emit(3, fn())
}

// Chk logs err with the caller's caller location and reports whether err is
// non-nil. It backs the chk package.
func (p *P) Chk(err error) bool {
	if err == nil {
		return false
	}
	if p.enabled() {
		p.emit(4, err.Error())
	}
	return true
}
