package service

import "context"

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples services from the delivery surface
// ─────────────────────────────────────────────────────────────

// EventEmitter is an interface for emitting events to whatever surface
// is listening (a UI bridge, a log sink). Services receive this
// interface instead of a concrete runtime, which makes them
// independently testable with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// LogEmitter writes events to the process log; the default surface for
// headless runs.
type LogEmitter struct {
	Logf func(format string, args ...any)
}

func (l *LogEmitter) Emit(_ context.Context, event string, data any) {
	if l.Logf != nil {
		l.Logf("event %s: %+v", event, data)
	}
}
