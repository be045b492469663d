package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"notedb/internal/rollup"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from whoever listens
// ─────────────────────────────────────────────────────────────

// Event names.
const (
	EventDBUpdated       = "db:updated"
	EventSchemaUpdated   = "db:schema-updated"
	EventDatabaseCreated = "db:created"
	EventDatabaseDeleted = "db:deleted"
	EventImportCompleted = "import:completed"
)

// DatabaseEvent is the payload of every db:* event.
type DatabaseEvent struct {
	DatabaseID string `json:"databaseId"`
	RowID      string `json:"rowId,omitempty"`
	Job        string `json:"job,omitempty"`
}

// EventEmitter is how services announce changes. The MCP server and the
// rollup cache subscribe through it; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event string, data any)

func (f EmitterFunc) Emit(ctx context.Context, event string, data any) { f(ctx, event, data) }

// Emitters fans an event out to each emitter in order.
type Emitters []EventEmitter

func (es Emitters) Emit(ctx context.Context, event string, data any) {
	for _, e := range es {
		if e != nil {
			e.Emit(ctx, event, data)
		}
	}
}

// LogEmitter writes every event to a logger at debug level.
func LogEmitter(log *zap.SugaredLogger) EventEmitter {
	return EmitterFunc(func(_ context.Context, event string, data any) {
		log.Debugw("event", "name", event, "data", data)
	})
}

// CacheInvalidator drops cached rollup targets when their database changes.
// Deleting a database resets the whole cache since relation columns in other
// databases may point at it.
func CacheInvalidator(cache *rollup.Cache) EventEmitter {
	return EmitterFunc(func(_ context.Context, event string, data any) {
		ev, ok := data.(DatabaseEvent)
		if !ok {
			return
		}
		switch event {
		case EventDatabaseDeleted:
			cache.Reset()
		case EventDBUpdated, EventSchemaUpdated:
			cache.Invalidate(ev.DatabaseID)
		}
	})
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Events))
	for i, e := range m.Events {
		names[i] = e.Event
	}
	return names
}
