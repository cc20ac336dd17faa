// Package metrics exposes pipeline outcome counters. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zkjwt"

// Metrics holds the collectors shared by the pipeline components.
type Metrics struct {
	verifications  *prometheus.CounterVec
	keyResolutions *prometheus.CounterVec
	proofs         *prometheus.CounterVec
	provingSeconds prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification attempts by terminal state.",
		}, []string{"state"}),
		keyResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_resolutions_total",
			Help:      "Issuer key lookups by result.",
		}, []string{"result"}),
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proofs_total",
			Help:      "Proof generations by result.",
		}, []string{"result"}),
		provingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proving_seconds",
			Help:      "Time spent in the proving backend.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.verifications, m.keyResolutions, m.proofs, m.provingSeconds)
	}
	return m
}

// Verification counts a verification attempt that ended in state.
func (m *Metrics) Verification(state string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(state).Inc()
}

// KeyResolution counts an issuer key lookup.
func (m *Metrics) KeyResolution(result string) {
	if m == nil {
		return
	}
	m.keyResolutions.WithLabelValues(result).Inc()
}

// Proof counts a proof generation and its duration.
func (m *Metrics) Proof(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.proofs.WithLabelValues(result).Inc()
	m.provingSeconds.Observe(took.Seconds())
}
