package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initContextMetrics(cfg Config) {
	m.contextBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_build_duration_seconds",
			Help:      "Time to build a prompt context",
			Buckets:   cfg.BuildDurationBuckets,
		},
		[]string{"scene"},
	)

	m.contextSelected = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_memories_selected",
			Help:      "Number of memories selected into a prompt context",
			Buckets:   prometheus.LinearBuckets(0, 2, 8),
		},
		[]string{"scene"},
	)

	m.registry.MustRegister(m.contextBuildDuration, m.contextSelected)
}

// RecordContextBuild observes one BuildContext call. scene is the profile id,
// so unknown scenes collapse into "default".
func (m *Manager) RecordContextBuild(scene string, selected int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.contextBuildDuration.WithLabelValues(scene).Observe(duration.Seconds())
	m.contextSelected.WithLabelValues(scene).Observe(float64(selected))
}

func (m *Manager) initDecayMetrics(cfg Config) {
	m.memoriesDecayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_decayed_total",
			Help:      "Total number of memory decay updates",
		},
	)

	m.decayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decay_run_duration_seconds",
			Help:      "Duration of a decay maintenance run",
			Buckets:   cfg.DecayDurationBuckets,
		},
	)

	m.registry.MustRegister(m.memoriesDecayed, m.decayDuration)
}

// RecordDecayRun observes one decay maintenance run.
func (m *Manager) RecordDecayRun(updated int, duration time.Duration) {
	if !m.enabled {
		return
	}
	if updated > 0 {
		m.memoriesDecayed.Add(float64(updated))
	}
	m.decayDuration.Observe(duration.Seconds())
}
