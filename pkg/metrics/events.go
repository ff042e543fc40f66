package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initEventMetrics() {
	m.eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of published game events",
		},
		[]string{"type", "status"},
	)

	m.memoriesDerived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_derived_total",
			Help:      "Total number of character memories derived from events",
		},
	)

	m.persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Total number of failed adapter writes",
		},
		[]string{"stage"},
	)

	m.subscriberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_failures_total",
			Help:      "Total number of subscriber errors and panics",
		},
		[]string{"topic"},
	)

	m.persistRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_retries_total",
			Help:      "Total number of retried adapter writes",
		},
	)

	m.relayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Total number of events relayed between processes",
		},
		[]string{"direction", "status"},
	)

	m.gatewayCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_commands_total",
			Help:      "Total number of commands received on the Redis gateway",
		},
		[]string{"command", "status"},
	)

	m.registry.MustRegister(
		m.eventsPublished,
		m.memoriesDerived,
		m.persistFailures,
		m.subscriberFailures,
		m.persistRetries,
		m.relayMessages,
		m.gatewayCommands,
	)
}

// RecordPublish counts a published event by type and outcome.
func (m *Manager) RecordPublish(eventType, status string) {
	if !m.enabled {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordMemoriesDerived counts memories derived from one event.
func (m *Manager) RecordMemoriesDerived(count int) {
	if !m.enabled || count <= 0 {
		return
	}
	m.memoriesDerived.Add(float64(count))
}

// RecordPersistFailure counts a failed write at the given stage.
func (m *Manager) RecordPersistFailure(stage string) {
	if !m.enabled {
		return
	}
	m.persistFailures.WithLabelValues(stage).Inc()
}

// RecordSubscriberFailure counts a failing subscriber by topic.
func (m *Manager) RecordSubscriberFailure(topic string) {
	if !m.enabled {
		return
	}
	m.subscriberFailures.WithLabelValues(topic).Inc()
}

// RecordRetry counts a retried write.
func (m *Manager) RecordRetry() {
	if !m.enabled {
		return
	}
	m.persistRetries.Inc()
}

// RecordRelay counts a relayed event. direction is "out" or "in".
func (m *Manager) RecordRelay(direction, status string) {
	if !m.enabled {
		return
	}
	m.relayMessages.WithLabelValues(direction, status).Inc()
}

// RecordCommand counts a gateway command by name and outcome.
func (m *Manager) RecordCommand(command, status string) {
	if !m.enabled {
		return
	}
	m.gatewayCommands.WithLabelValues(command, status).Inc()
}
