package events

import (
	"context"
	"log/slog"
	"sync"
)

// Compile-time check that InMemoryEmitter satisfies the Emitter interface.
var _ Emitter = (*InMemoryEmitter)(nil)

// InMemoryEmitter dispatches resolved-task events synchronously to handlers
// registered in memory.
type InMemoryEmitter struct {
	handlers []Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEmitter creates an InMemoryEmitter.
func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEmitter{
		handlers: make([]Handler, 0),
		logger:   logger.With(slog.String("component", "event_emitter")),
	}
}

// RegisterHandler adds a handler to receive future events.
func (e *InMemoryEmitter) RegisterHandler(handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered event handler", slog.Int("handler_count", len(e.handlers)))
}

// EmitTaskResolved delivers the event to every registered handler. A failing
// handler does not block the others; the first error encountered is
// returned after all handlers have run.
func (e *InMemoryEmitter) EmitTaskResolved(ctx context.Context, event *TaskResolvedEvent) error {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.Warn("no handlers registered for resolved task",
			slog.String("event_id", event.ID.String()),
			slog.String("task_id", event.TaskID.String()))
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleTaskResolved(ctx, event); err != nil {
			e.logger.Error("event handler failed",
				slog.Int("handler_index", i),
				slog.String("event_id", event.ID.String()),
				slog.String("task_id", event.TaskID.String()),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
