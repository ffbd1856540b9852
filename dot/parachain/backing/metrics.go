// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "parachain"
	metricsSubsystem = "candidate_backing"
)

type metrics struct {
	signedStatements      prometheus.Counter
	candidatesSeconded    prometheus.Counter
	candidatesBacked      prometheus.Counter
	processSecond         prometheus.Histogram
	processStatement      prometheus.Histogram
	getBackableCandidates prometheus.Histogram
}

// newMetrics creates the backing metrics and registers them when a registerer
// is given.
func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		signedStatements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "signed_statements_total",
			Help:      "number of statements signed by the local validator",
		}),
		candidatesSeconded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "candidates_seconded_total",
			Help:      "number of candidates seconded by the local validator",
		}),
		candidatesBacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "candidates_backed_total",
			Help:      "number of candidates reported as backed",
		}),
		processSecond: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "process_second_seconds",
			Help:      "time spent handling a request to second a candidate",
			Buckets:   prometheus.DefBuckets,
		}),
		processStatement: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "process_statement_seconds",
			Help:      "time spent importing a statement",
			Buckets:   prometheus.DefBuckets,
		}),
		getBackableCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "get_backable_candidates_seconds",
			Help:      "time spent answering a request for backable candidates",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, collector := range []prometheus.Collector{
		m.signedStatements,
		m.candidatesSeconded,
		m.candidatesBacked,
		m.processSecond,
		m.processStatement,
		m.getBackableCandidates,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("registering backing metrics: %w", err)
		}
	}

	return m, nil
}

func (m *metrics) onStatementSigned() {
	m.signedStatements.Inc()
}

func (m *metrics) onCandidateSeconded() {
	m.candidatesSeconded.Inc()
}

func (m *metrics) onCandidateBacked() {
	m.candidatesBacked.Inc()
}

func (m *metrics) timeProcessSecond() *prometheus.Timer {
	return prometheus.NewTimer(m.processSecond)
}

func (m *metrics) timeProcessStatement() *prometheus.Timer {
	return prometheus.NewTimer(m.processStatement)
}

func (m *metrics) timeGetBackableCandidates() *prometheus.Timer {
	return prometheus.NewTimer(m.getBackableCandidates)
}
