package runner

import (
	"context"
	"fmt"

	"github.com/rlch/relgraph/inference"
)

// Handler receives pipeline events during a run.
type Handler interface {
	// Event is called for each event as it occurs. A non-nil error fails the
	// current stage.
	Event(ctx context.Context, event Event, result *Result) error

	// Err is called for problems outside any stage (closing a source).
	Err(text string) error
}

// MultiHandler fans out events to multiple handlers.
type MultiHandler struct {
	handlers []Handler
}

// NewMultiHandler creates a handler that dispatches to multiple handlers.
func NewMultiHandler(handlers ...Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Event dispatches to all handlers, stopping on first error.
func (m *MultiHandler) Event(ctx context.Context, event Event, result *Result) error {
	for _, h := range m.handlers {
		err := h.Event(ctx, event, result)
		if err != nil {
			return err
		}
	}

	return nil
}

// Err dispatches to all handlers.
func (m *MultiHandler) Err(text string) error {
	for _, h := range m.handlers {
		err := h.Err(text)
		if err != nil {
			return err
		}
	}

	return nil
}

// ResultHandler updates the Result accumulator from events.
type ResultHandler struct{}

// NewResultHandler creates a handler that accumulates results.
func NewResultHandler() *ResultHandler {
	return &ResultHandler{}
}

// Event updates the result accumulator.
func (h *ResultHandler) Event(_ context.Context, event Event, result *Result) error {
	result.Add(event)

	return nil
}

// Err is a no-op for ResultHandler.
func (h *ResultHandler) Err(_ string) error {
	return nil
}

// StrictHandler fails the run on the first warning advisory.
type StrictHandler struct{}

// NewStrictHandler creates a handler that rejects warnings.
func NewStrictHandler() *StrictHandler {
	return &StrictHandler{}
}

// Event returns ErrAdvisoryWarning for warning advisories.
func (h *StrictHandler) Event(_ context.Context, event Event, _ *Result) error {
	if event.Action != ActionAdvisory || event.Advisory == nil {
		return nil
	}

	if event.Advisory.Severity == inference.SeverityWarning {
		return fmt.Errorf("%w: %s", ErrAdvisoryWarning, event.Advisory)
	}

	return nil
}

// Err is a no-op.
func (h *StrictHandler) Err(_ string) error {
	return nil
}
