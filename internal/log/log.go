// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logger implementation structure.
// It is thread safe to use.
type Logger struct {
	mutex    sync.RWMutex
	settings settings
	zl       zerolog.Logger
	children []*Logger
}

var global = New()

// New creates a new logger.
// It has default settings of level INFO, writes to stdout
// in the console format.
func New(options ...Option) *Logger {
	var applied settings
	for _, option := range options {
		option(&applied)
	}

	l := &Logger{
		settings: newDefaultSettings().mergeWith(applied),
	}
	l.zl = buildZerolog(l.settings)
	return l
}

// NewFromGlobal creates a child logger of the global logger
// with the options given. Later calls to Patch on the global
// logger are propagated to the child.
func NewFromGlobal(options ...Option) *Logger {
	return global.New(options...)
}

// New creates a child logger from the current logger, with the options given.
func (l *Logger) New(options ...Option) *Logger {
	var applied settings
	for _, option := range options {
		option(&applied)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	child := &Logger{
		settings: l.settings.mergeWith(applied),
	}
	child.zl = buildZerolog(child.settings)
	l.children = append(l.children, child)
	return child
}

// Patch patches the global logger and all the loggers created from it.
func Patch(options ...Option) {
	global.Patch(options...)
}

// Patch patches the logger settings with the options given,
// and propagates the options to its children.
func (l *Logger) Patch(options ...Option) {
	var applied settings
	for _, option := range options {
		option(&applied)
	}

	l.mutex.Lock()
	l.settings = l.settings.mergeWith(applied)
	l.zl = buildZerolog(l.settings)
	children := make([]*Logger, len(l.children))
	copy(children, l.children)
	l.mutex.Unlock()

	for _, child := range children {
		child.Patch(options...)
	}
}

func buildZerolog(s settings) zerolog.Logger {
	writer := s.writer
	if *s.format == FormatConsole {
		writer = zerolog.ConsoleWriter{
			Out:        s.writer,
			NoColor:    true,
			TimeFormat: time.RFC3339,
		}
	}

	zlContext := zerolog.New(writer).Level(zerolog.TraceLevel).With().Timestamp()
	for _, kv := range s.context {
		zlContext = zlContext.Str(kv.key, kv.value)
	}
	return zlContext.Logger()
}

func (l *Logger) log(level Level, s string, args ...any) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if level < *l.settings.level {
		return
	}

	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}

	l.zl.WithLevel(level.zerolog()).Msg(s)
}

// Trace logs with the TRACE level.
func (l *Logger) Trace(s string) { l.log(Trace, s) }

// Debug logs with the DEBUG level.
func (l *Logger) Debug(s string) { l.log(Debug, s) }

// Info logs with the INFO level.
func (l *Logger) Info(s string) { l.log(Info, s) }

// Warn logs with the WARN level.
func (l *Logger) Warn(s string) { l.log(Warn, s) }

// Error logs with the ERROR level.
func (l *Logger) Error(s string) { l.log(Error, s) }

// Critical logs with the CRIT level.
func (l *Logger) Critical(s string) { l.log(Critical, s) }

// Tracef formats and logs at the TRACE level.
func (l *Logger) Tracef(format string, args ...any) { l.log(Trace, format, args...) }

// Debugf formats and logs at the DEBUG level.
func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, format, args...) }

// Infof formats and logs at the INFO level.
func (l *Logger) Infof(format string, args ...any) { l.log(Info, format, args...) }

// Warnf formats and logs at the WARN level.
func (l *Logger) Warnf(format string, args ...any) { l.log(Warn, format, args...) }

// Errorf formats and logs at the ERROR level.
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, format, args...) }

// Criticalf formats and logs at the CRIT level.
func (l *Logger) Criticalf(format string, args ...any) { l.log(Critical, format, args...) }
