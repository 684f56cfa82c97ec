package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	RollEvent      EventType = "roll"
	HistogramEvent EventType = "histogram"
	FailureEvent   EventType = "failure"
)

// Event describes one engine outcome. Payload carries the rolled value or
// histogram for handlers that forward it; it is not interpreted here.
type Event struct {
	Type       EventType `json:"type"`
	Expression string    `json:"expression"`
	Summary    string    `json:"summary"`
	Total      int       `json:"total"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// ConsoleHandler prints one line per event.
type ConsoleHandler struct {
	w io.Writer
}

func NewConsoleHandler(w io.Writer) *ConsoleHandler {
	return &ConsoleHandler{w: w}
}

func (h *ConsoleHandler) Handle(_ context.Context, event Event) error {
	timestamp := event.Timestamp.Format("15:04:05")
	_, err := fmt.Fprintf(h.w, "[%s] %s %s: %s\n", timestamp, event.Type, event.Expression, event.Summary)
	return err
}

type LogHandler struct {
	logger *slog.Logger
}

func NewLogHandler(logger *slog.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(ctx context.Context, event Event) error {
	logger := h.logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	if event.Type == FailureEvent {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "roll event",
		"type", event.Type,
		"expression", event.Expression,
		"total", event.Total,
		"summary", event.Summary,
	)
	return nil
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[EventType][]Handler),
	}
}

func (r *Registry) Register(eventType EventType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

// Dispatch runs every handler registered for the event's type. Events with
// no handlers are dropped. All handlers run; their errors are joined.
func (r *Registry) Dispatch(ctx context.Context, event Event) error {
	r.mu.RLock()
	handlers := make([]Handler, len(r.handlers[event.Type]))
	copy(handlers, r.handlers[event.Type])
	r.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("handler error for %s: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of handlers registered for eventType.
func (r *Registry) Len(eventType EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[eventType])
}

func NewEvent(eventType EventType, expression, summary string, total int) Event {
	return Event{
		Type:       eventType,
		Expression: expression,
		Summary:    summary,
		Total:      total,
		Timestamp:  time.Now(),
	}
}
