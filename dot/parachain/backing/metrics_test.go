// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	t.Run("nil_registerer", func(t *testing.T) {
		t.Parallel()

		m, err := newMetrics(nil)
		require.NoError(t, err)

		m.onCandidateBacked()
		assert.Equal(t, float64(1), testutil.ToFloat64(m.candidatesBacked))
	})

	t.Run("registered_once", func(t *testing.T) {
		t.Parallel()

		registry := prometheus.NewRegistry()
		m, err := newMetrics(registry)
		require.NoError(t, err)

		m.onStatementSigned()
		m.onStatementSigned()
		m.onCandidateSeconded()
		m.timeProcessStatement().ObserveDuration()

		assert.Equal(t, float64(2), testutil.ToFloat64(m.signedStatements))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.candidatesSeconded))
		count, err := testutil.GatherAndCount(registry)
		require.NoError(t, err)
		assert.Equal(t, 6, count)

		_, err = newMetrics(registry)
		require.Error(t, err)
	})
}
