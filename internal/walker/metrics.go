/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package walker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the walk-scoped set of Prometheus collectors a Walker reports
// through, one instance shared across every worker of a single walk. A nil
// *Metrics is valid: every method below treats it as "do nothing" so
// Metrics remains optional.
type Metrics struct {
	documentsTotal prometheus.Counter
	errorsTotal    prometheus.Counter
	fetchDuration  prometheus.Histogram
}

// NewMetrics builds a Metrics registered against reg under the
// advisory_sync_ namespace, for a caller that exposes reg via an HTTP
// /metrics handler (cmd/advisory-sync does this).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		documentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "advisory_sync",
			Name:      "documents_total",
			Help:      "Documents visited by the walker, across every distribution.",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "advisory_sync",
			Name:      "errors_total",
			Help:      "Items whose visitor chain returned an error, fatal or not.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "advisory_sync",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent in one item's visitor chain, from dispatch to completion.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.documentsTotal, m.errorsTotal, m.fetchDuration)
	return m
}

func (m *Metrics) observe(start time.Time, errored bool) {
	if m == nil {
		return
	}
	m.documentsTotal.Inc()
	m.fetchDuration.Observe(time.Since(start).Seconds())
	if errored {
		m.errorsTotal.Inc()
	}
}
