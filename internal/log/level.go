// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the level of the logger.
type Level uint8

const (
	// Trace is the trace (5) level.
	Trace Level = iota
	// Debug is the debug (4) level.
	Debug
	// Info is the info (3) level.
	Info
	// Warn is the warn (2) level.
	Warn
	// Error is the error (1) level.
	Error
	// Critical is the critical (0) level.
	Critical
)

func (level Level) String() (s string) {
	switch level {
	case Trace:
		return "TRACE"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Critical:
		return "CRIT"
	default:
		return "???"
	}
}

func (level Level) zerolog() zerolog.Level {
	switch level {
	case Trace:
		return zerolog.TraceLevel
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}

var ErrLevelNotRecognised = errors.New("level is not recognised")

// ParseLevel parses a string into a level, and returns an
// error if it fails. It accepts numbers between 0 and 5
// as well as level names.
func ParseLevel(s string) (level Level, err error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "5":
		return Trace, nil
	case "DEBUG", "DBUG", "4":
		return Debug, nil
	case "INFO", "3":
		return Info, nil
	case "WARN", "2":
		return Warn, nil
	case "ERROR", "EROR", "1":
		return Error, nil
	case "CRITICAL", "CRIT", "0":
		return Critical, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrLevelNotRecognised, s)
}
