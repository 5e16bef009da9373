// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeCompleted = "completed"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

type pipelineMetrics struct {
	dispatchLatencyMS prometheus.Histogram
	requests          *prometheus.CounterVec
	attempts          prometheus.Counter
}

func newPipelineMetrics(registerer prometheus.Registerer) *pipelineMetrics {
	m := pipelineMetrics{
		dispatchLatencyMS: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fhevm_decrypt_dispatch_latency_ms",
				Help:    "Latency of dispatching a decryption to the engine, retries included, in milliseconds",
				Buckets: prometheus.ExponentialBucketsRange(1, 60000, 12),
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhevm_decrypt_requests",
				Help: "Number of decryption requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		attempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fhevm_decrypt_engine_attempts",
				Help: "Number of decryption attempts sent to the engine",
			},
		),
	}
	registerer.MustRegister(m.dispatchLatencyMS)
	registerer.MustRegister(m.requests)
	registerer.MustRegister(m.attempts)

	return &m
}

func (m *pipelineMetrics) observe(public bool, outcome string) {
	kind := "user"
	if public {
		kind = "public"
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
}
