package catchup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/projection"
)

// fakeProjection records applied sequence numbers in memory.
type fakeProjection struct {
	name    string
	handles map[event.Type]bool

	mu         sync.Mutex
	checkpoint uint64
	applied    []uint64
	resets     int
}

func newFake(name string, types ...event.Type) *fakeProjection {
	handles := make(map[event.Type]bool, len(types))
	for _, t := range types {
		handles[t] = true
	}
	return &fakeProjection{name: name, handles: handles}
}

func (f *fakeProjection) Name() string                { return f.name }
func (f *fakeProjection) CanHandle(t event.Type) bool { return f.handles[t] }

func (f *fakeProjection) Apply(_ context.Context, evt event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if evt.Seq <= f.checkpoint {
		return nil
	}
	f.applied = append(f.applied, evt.Seq)
	f.checkpoint = evt.Seq
	return nil
}

func (f *fakeProjection) Checkpoint(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoint, nil
}

func (f *fakeProjection) SetCheckpoint(_ context.Context, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoint = seq
	return nil
}

func (f *fakeProjection) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoint = 0
	f.applied = nil
	f.resets++
	return nil
}

func (f *fakeProjection) appliedSeqs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.applied...)
}

var _ projection.Projection = (*fakeProjection)(nil)

func appendEvent(t *testing.T, store journal.Store, cs ids.ContentStreamID, eventType event.Type, payload any) {
	t.Helper()
	evt, err := event.New(event.ContentStreamStream(cs), eventType, payload, time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if _, _, err := store.Append(context.Background(), evt.StreamName, journal.ExpectedAny, []event.Event{evt}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func seedJournal(t *testing.T) *journal.Memory {
	t.Helper()
	store := journal.NewMemory(nil)
	appendEvent(t, store, "cs-a", event.TypeContentStreamWasCreated, event.ContentStreamWasCreated{ContentStreamID: "cs-a"})
	appendEvent(t, store, "cs-b", event.TypeContentStreamWasCreated, event.ContentStreamWasCreated{ContentStreamID: "cs-b"})
	appendEvent(t, store, "cs-a", event.TypeContentStreamWasClosed, event.ContentStreamWasClosed{ContentStreamID: "cs-a"})
	return store
}

func newRegistry(t *testing.T) *event.Registry {
	t.Helper()
	registry, err := event.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("event registry: %v", err)
	}
	return registry
}

func TestNewValidatesProjections(t *testing.T) {
	if _, err := New(nil, nil, nil); !errors.Is(err, ErrJournalRequired) {
		t.Fatalf("err = %v, want %v", err, ErrJournalRequired)
	}
	store := journal.NewMemory(nil)
	if _, err := New(store, nil, []projection.Projection{newFake("a"), newFake("a")}); err == nil {
		t.Fatal("expected duplicate projection error")
	}
	if _, err := New(store, nil, []projection.Projection{nil}); err == nil {
		t.Fatal("expected nil projection error")
	}
}

func TestCatchUpAllAdvancesEveryProjection(t *testing.T) {
	ctx := context.Background()
	store := seedJournal(t)
	created := newFake("created", event.TypeContentStreamWasCreated)
	closed := newFake("closed", event.TypeContentStreamWasClosed)
	driver, err := New(store, newRegistry(t), []projection.Projection{created, closed}, WithPageSize(1))
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if got := driver.Names(); len(got) != 2 || got[0] != "closed" || got[1] != "created" {
		t.Fatalf("names = %v, want sorted", got)
	}

	if err := driver.CatchUpAll(ctx); err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if got := created.appliedSeqs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("created applied %v, want [1 2]", got)
	}
	if got := closed.appliedSeqs(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("closed applied %v, want [3]", got)
	}

	statuses, err := driver.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, status := range statuses {
		if status.Checkpoint != 3 || status.Head != 3 || status.Lag() != 0 {
			t.Fatalf("status = %+v, want caught up at 3", status)
		}
	}

	appendEvent(t, store, "cs-c", event.TypeContentStreamWasCreated, event.ContentStreamWasCreated{ContentStreamID: "cs-c"})
	statuses, err = driver.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if statuses[0].Lag() != 1 {
		t.Fatalf("lag = %d, want 1", statuses[0].Lag())
	}
	result, err := driver.CatchUp(ctx, "created")
	if err != nil {
		t.Fatalf("catch up created: %v", err)
	}
	if result.LastSeq != 4 || result.Applied != 1 {
		t.Fatalf("result = %+v, want one event through seq 4", result)
	}
}

func TestRebuildReplaysFromTheStart(t *testing.T) {
	ctx := context.Background()
	created := newFake("created", event.TypeContentStreamWasCreated)
	driver, err := New(seedJournal(t), nil, []projection.Projection{created})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := driver.CatchUpFunc("created")(ctx); err != nil {
		t.Fatalf("catch up: %v", err)
	}
	result, err := driver.Rebuild(ctx, "created")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if created.resets != 1 {
		t.Fatalf("resets = %d, want 1", created.resets)
	}
	if result.LastSeq != 3 || result.Applied != 3 {
		t.Fatalf("result = %+v, want all 3 events", result)
	}
	if got := created.appliedSeqs(); len(got) != 2 {
		t.Fatalf("applied after rebuild %v, want 2 events", got)
	}
}

func TestUnknownProjection(t *testing.T) {
	driver, err := New(journal.NewMemory(nil), nil, nil)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if _, err := driver.CatchUp(context.Background(), "missing"); !errors.Is(err, ErrUnknownProjection) {
		t.Fatalf("catch up err = %v, want %v", err, ErrUnknownProjection)
	}
	if _, err := driver.Rebuild(context.Background(), "missing"); !errors.Is(err, ErrUnknownProjection) {
		t.Fatalf("rebuild err = %v, want %v", err, ErrUnknownProjection)
	}
}

func TestUnregisteredEventStopsProjection(t *testing.T) {
	ctx := context.Background()
	store := seedJournal(t)
	appendEvent(t, store, "cs-a", event.Type("ContentStreamWasPainted"), map[string]string{"color": "red"})
	appendEvent(t, store, "cs-b", event.TypeContentStreamWasClosed, event.ContentStreamWasClosed{ContentStreamID: "cs-b"})

	created := newFake("created", event.TypeContentStreamWasCreated)
	driver, err := New(store, newRegistry(t), []projection.Projection{created})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	result, err := driver.CatchUp(ctx, "created")
	if !errors.Is(err, projection.ErrUnhandledEvent) {
		t.Fatalf("err = %v, want %v", err, projection.ErrUnhandledEvent)
	}
	if !apperrors.HasCode(err, apperrors.CodeProjectionInconsistent) {
		t.Fatalf("code = %s, want %s", apperrors.GetCode(err), apperrors.CodeProjectionInconsistent)
	}
	if result.LastSeq != 3 {
		t.Fatalf("stopped at %d, want 3", result.LastSeq)
	}
	checkpoint, err := created.Checkpoint(ctx)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if checkpoint != 3 {
		t.Fatalf("checkpoint = %d, want 3", checkpoint)
	}
}
