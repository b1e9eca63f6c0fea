// Package catchup drives projections forward from the event journal.
//
// Each projection has its own lock held across the whole
// read-checkpoint, apply, advance loop, so two callers never feed the same
// projection concurrently. Different projections catch up in parallel.
package catchup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/platform/metrics"
	platformotel "github.com/louisbranch/contentgraph/internal/platform/otel"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/replay"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/projection"
)

var (
	// ErrJournalRequired indicates a driver without an event source.
	ErrJournalRequired = errors.New("journal is required")
	// ErrUnknownProjection indicates a projection name the driver does not manage.
	ErrUnknownProjection = errors.New("unknown projection")
)

// Status reports how far one projection is behind the journal head.
type Status struct {
	Projection string
	Checkpoint uint64
	Head       uint64
}

// Lag returns the number of events not yet seen by the projection.
func (s Status) Lag() uint64 {
	if s.Head <= s.Checkpoint {
		return 0
	}
	return s.Head - s.Checkpoint
}

// Driver feeds journal events into a fixed set of projections.
type Driver struct {
	journal     journal.Store
	events      *event.Registry
	projections map[string]projection.Projection
	locks       map[string]*sync.Mutex
	names       []string
	pageSize    int
}

// Option configures a Driver.
type Option func(*Driver)

// WithPageSize sets how many events are read per journal page.
func WithPageSize(size int) Option {
	return func(d *Driver) {
		d.pageSize = size
	}
}

// New creates a driver. The event registry, when set, distinguishes event
// types no projection cares about from types nobody registered; the latter
// stop catch-up.
func New(store journal.Store, events *event.Registry, projections []projection.Projection, opts ...Option) (*Driver, error) {
	if store == nil {
		return nil, ErrJournalRequired
	}
	d := &Driver{
		journal:     store,
		events:      events,
		projections: make(map[string]projection.Projection, len(projections)),
		locks:       make(map[string]*sync.Mutex, len(projections)),
	}
	for _, p := range projections {
		if p == nil {
			return nil, fmt.Errorf("projection is required")
		}
		name := p.Name()
		if _, dup := d.projections[name]; dup {
			return nil, fmt.Errorf("projection %s registered twice", name)
		}
		d.projections[name] = p
		d.locks[name] = &sync.Mutex{}
		d.names = append(d.names, name)
	}
	sort.Strings(d.names)
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Names returns the managed projection names, sorted.
func (d *Driver) Names() []string {
	return append([]string(nil), d.names...)
}

// CatchUp applies every event after the checkpoint of the named projection.
func (d *Driver) CatchUp(ctx context.Context, name string) (replay.Result, error) {
	p, mu, err := d.lookup(name)
	if err != nil {
		return replay.Result{}, err
	}
	mu.Lock()
	defer mu.Unlock()
	return d.run(ctx, p)
}

// CatchUpAll catches up every projection concurrently.
func (d *Driver) CatchUpAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range d.names {
		g.Go(func() error {
			_, err := d.CatchUp(ctx, name)
			return err
		})
	}
	return g.Wait()
}

// CatchUpFunc returns a callback that catches up one projection, for
// engine.ProjectionStateLoader.
func (d *Driver) CatchUpFunc(name string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := d.CatchUp(ctx, name)
		return err
	}
}

// Rebuild truncates the named projection and replays the whole journal.
func (d *Driver) Rebuild(ctx context.Context, name string) (replay.Result, error) {
	p, mu, err := d.lookup(name)
	if err != nil {
		return replay.Result{}, err
	}
	mu.Lock()
	defer mu.Unlock()

	log.Printf("rebuilding projection %s", name)
	if err := p.Reset(ctx); err != nil {
		return replay.Result{}, fmt.Errorf("reset %s: %w", name, err)
	}
	metrics.ProjectionReset(name)
	result, err := d.run(ctx, p)
	if err != nil {
		return result, err
	}
	log.Printf("projection %s rebuilt through seq %d (%d events)", name, result.LastSeq, result.Applied)
	return result, nil
}

// Status reports checkpoint and head for every projection.
func (d *Driver) Status(ctx context.Context) ([]Status, error) {
	head, err := d.journal.HeadSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal head: %w", err)
	}
	statuses := make([]Status, 0, len(d.names))
	for _, name := range d.names {
		checkpoint, err := d.projections[name].Checkpoint(ctx)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint %s: %w", name, err)
		}
		statuses = append(statuses, Status{Projection: name, Checkpoint: checkpoint, Head: head})
	}
	return statuses, nil
}

func (d *Driver) lookup(name string) (projection.Projection, *sync.Mutex, error) {
	p, ok := d.projections[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProjection, name)
	}
	return p, d.locks[name], nil
}

func (d *Driver) run(ctx context.Context, p projection.Projection) (replay.Result, error) {
	ctx, span := platformotel.Tracer().Start(ctx, "contentgraph.projection.catchup")
	defer span.End()
	span.SetAttributes(attribute.String("projection.name", p.Name()))

	start := time.Now()
	result, err := replay.Replay(ctx, d.journal, target{projection: p, events: d.events}, replay.Options{PageSize: d.pageSize})
	metrics.ObserveCatchUp(p.Name(), time.Since(start))
	span.SetAttributes(attribute.Int("projection.applied", result.Applied))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, projection.ErrUnhandledEvent) || errors.Is(err, replay.ErrSequenceGap) {
			log.Printf("projection %s stopped at seq %d: %v", p.Name(), result.LastSeq, err)
			return result, apperrors.Wrap(apperrors.CodeProjectionInconsistent,
				fmt.Sprintf("projection %s cannot advance past seq %d", p.Name(), result.LastSeq), err)
		}
		return result, fmt.Errorf("catch up %s: %w", p.Name(), err)
	}
	return result, nil
}

// target adapts a projection to replay. Events the projection ignores only
// advance its checkpoint.
type target struct {
	projection projection.Projection
	events     *event.Registry
}

func (t target) Checkpoint(ctx context.Context) (uint64, error) {
	return t.projection.Checkpoint(ctx)
}

func (t target) Apply(ctx context.Context, evt event.Event) error {
	if !t.projection.CanHandle(evt.Type) {
		if t.events != nil && !t.events.IsRegistered(evt.Type) {
			return fmt.Errorf("%w: %s", projection.ErrUnhandledEvent, evt.Type)
		}
		return t.projection.SetCheckpoint(ctx, evt.Seq)
	}
	if err := t.projection.Apply(ctx, evt); err != nil {
		return err
	}
	metrics.ProjectionApplied(t.projection.Name(), evt.Seq)
	return nil
}
