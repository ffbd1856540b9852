// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		s           string
		level       Level
		expectedErr error
	}{
		"trace_name":    {s: "trace", level: Trace},
		"debug_number":  {s: "4", level: Debug},
		"info_padded":   {s: " INFO ", level: Info},
		"warn":          {s: "warn", level: Warn},
		"error_short":   {s: "EROR", level: Error},
		"critical_name": {s: "critical", level: Critical},
		"unknown":       {s: "verbose", expectedErr: ErrLevelNotRecognised},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			level, err := ParseLevel(tt.s)
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestLogger_Level(t *testing.T) {
	t.Parallel()

	buffer := bytes.NewBuffer(nil)
	logger := New(SetWriter(buffer), SetLevel(Warn), SetFormat(FormatJSON))

	logger.Debug("dropped")
	logger.Infof("dropped %d", 1)
	assert.Empty(t, buffer.String())

	logger.Warnf("kept %d", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	assert.Equal(t, "kept 2", entry["message"])
	assert.Equal(t, "warn", entry["level"])
}

func TestLogger_ContextAndPatch(t *testing.T) {
	t.Parallel()

	buffer := bytes.NewBuffer(nil)
	parent := New(SetWriter(buffer), SetLevel(Info), SetFormat(FormatJSON))
	child := parent.New(AddContext("pkg", "backing"))

	child.Debug("dropped")
	assert.Empty(t, buffer.String())

	parent.Patch(SetLevel(Debug))
	child.Debug("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "backing", entry["pkg"])
}

func TestSettings_MergeWith(t *testing.T) {
	t.Parallel()

	base := newDefaultSettings()
	AddContext("pkg", "a")(&base)

	var other settings
	AddContext("pkg", "b")(&other)
	AddContext("module", "c")(&other)
	SetLevel(Trace)(&other)

	merged := base.mergeWith(other)
	assert.Equal(t, Trace, *merged.level)
	assert.Equal(t, []contextKeyValue{{key: "pkg", value: "b"}, {key: "module", value: "c"}}, merged.context)
	// the base settings are left untouched
	assert.Equal(t, Info, *base.level)
	assert.Equal(t, []contextKeyValue{{key: "pkg", value: "a"}}, base.context)
}
