package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// ErrUnhandledEvent indicates an event type the projection has no handler for.
var ErrUnhandledEvent = errors.New("unhandled projection event type")

// Projection is one read model fed from the journal.
type Projection interface {
	Name() string
	CanHandle(t event.Type) bool
	// Apply is idempotent: an event at or below the checkpoint is skipped.
	Apply(ctx context.Context, evt event.Event) error
	Checkpoint(ctx context.Context) (uint64, error)
	SetCheckpoint(ctx context.Context, seq uint64) error
	Reset(ctx context.Context) error
}

type applyFunc func(ctx context.Context, tx storage.ProjectionTx, evt event.Event) error

// router dispatches events by type to typed handlers.
type router struct {
	handlers map[event.Type]applyFunc
	types    []event.Type
}

func newRouter() *router {
	return &router{handlers: make(map[event.Type]applyFunc)}
}

// handle registers a handler receiving the decoded payload.
func handle[P any](r *router, t event.Type, fn func(context.Context, storage.ProjectionTx, event.Event, P) error) {
	r.handlers[t] = func(ctx context.Context, tx storage.ProjectionTx, evt event.Event) error {
		var payload P
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", t, err)
		}
		return fn(ctx, tx, evt, payload)
	}
	r.types = append(r.types, t)
}

// Projector is a Projection whose state lives in a ProjectionStore.
type Projector struct {
	name   string
	store  storage.ProjectionStore
	router *router
}

// Name implements Projection.
func (p *Projector) Name() string {
	return p.name
}

// HandledTypes returns the event types in registration order.
func (p *Projector) HandledTypes() []event.Type {
	return append([]event.Type(nil), p.router.types...)
}

// CanHandle implements Projection.
func (p *Projector) CanHandle(t event.Type) bool {
	_, ok := p.router.handlers[t]
	return ok
}

// Apply implements Projection.
func (p *Projector) Apply(ctx context.Context, evt event.Event) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("projection is not configured")
	}
	fn, ok := p.router.handlers[evt.Type]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrUnhandledEvent, evt.Type, p.name)
	}
	_, err := p.store.ApplyExactlyOnce(ctx, p.name, evt.Seq, func(ctx context.Context, tx storage.ProjectionTx) error {
		return fn(ctx, tx, evt)
	})
	if err != nil {
		return fmt.Errorf("%s: apply %s at seq %d: %w", p.name, evt.Type, evt.Seq, err)
	}
	return nil
}

// Checkpoint implements Projection.
func (p *Projector) Checkpoint(ctx context.Context) (uint64, error) {
	return p.store.Checkpoint(ctx, p.name)
}

// SetCheckpoint implements Projection.
func (p *Projector) SetCheckpoint(ctx context.Context, seq uint64) error {
	return p.store.SetCheckpoint(ctx, p.name, seq)
}

// Reset implements Projection.
func (p *Projector) Reset(ctx context.Context) error {
	return p.store.ResetProjection(ctx, p.name)
}
