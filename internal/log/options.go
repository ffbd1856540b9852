// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"io"
	"os"
)

// Format is the output format of the logger.
type Format uint8

const (
	// FormatConsole prints human readable lines.
	FormatConsole Format = iota
	// FormatJSON prints one JSON object per line.
	FormatJSON
)

type contextKeyValue struct {
	key   string
	value string
}

type settings struct {
	level   *Level
	writer  io.Writer
	format  *Format
	context []contextKeyValue
}

func newDefaultSettings() settings {
	level := Info
	format := FormatConsole
	return settings{
		level:  &level,
		writer: os.Stdout,
		format: &format,
	}
}

// mergeWith returns a copy of the settings with every
// value set in other taking precedence.
func (s settings) mergeWith(other settings) (merged settings) {
	merged = s
	merged.context = make([]contextKeyValue, 0, len(s.context)+len(other.context))
	merged.context = append(merged.context, s.context...)

	if other.level != nil {
		level := *other.level
		merged.level = &level
	}
	if other.writer != nil {
		merged.writer = other.writer
	}
	if other.format != nil {
		format := *other.format
		merged.format = &format
	}

	for _, kv := range other.context {
		replaced := false
		for i := range merged.context {
			if merged.context[i].key == kv.key {
				merged.context[i].value = kv.value
				replaced = true
				break
			}
		}
		if !replaced {
			merged.context = append(merged.context, kv)
		}
	}
	return merged
}

// Option is the type to specify settings modifier
// for the logger operation.
type Option func(s *settings)

// SetLevel sets the level for the logger.
func SetLevel(level Level) Option {
	return func(s *settings) {
		s.level = &level
	}
}

// SetWriter sets the writer for the logger.
func SetWriter(writer io.Writer) Option {
	return func(s *settings) {
		s.writer = writer
	}
}

// SetFormat sets the output format for the logger.
func SetFormat(format Format) Option {
	return func(s *settings) {
		s.format = &format
	}
}

// AddContext adds the context for the logger as a key values pair.
// It adds them in order. If a key already exists, the value is added to the
// existing values.
func AddContext(key, value string) Option {
	return func(s *settings) {
		s.context = append(s.context, contextKeyValue{key: key, value: value})
	}
}
