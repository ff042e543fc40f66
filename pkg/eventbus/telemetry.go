package eventbus

// Telemetry records publish, derivation, and subscriber health.
type Telemetry interface {
	RecordPublish(eventType, status string)
	RecordMemoriesDerived(count int)
	RecordPersistFailure(stage string)
	RecordSubscriberFailure(topic string)
	RecordRetry()
}

type nopTelemetry struct{}

func (nopTelemetry) RecordPublish(eventType, status string) {}
func (nopTelemetry) RecordMemoriesDerived(count int)        {}
func (nopTelemetry) RecordPersistFailure(stage string)      {}
func (nopTelemetry) RecordSubscriberFailure(topic string)   {}
func (nopTelemetry) RecordRetry()                           {}

// busLogger is the minimal logger interface used by the bus.
type busLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}
