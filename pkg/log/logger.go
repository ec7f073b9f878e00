package log

// Logger receives journal events. Pass nil or NoopLogger to disable the journal.
type Logger interface {
	// Log records an event. Implementations must be thread-safe and must not
	// block for long; the provisioning loop calls Log inline.
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
