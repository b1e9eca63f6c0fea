package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/integrity"
)

func openTestEvents(t *testing.T, ring *integrity.Keyring) *EventStore {
	t.Helper()
	registry, err := event.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("event registry: %v", err)
	}
	store, err := OpenEvents(context.Background(), filepath.Join(t.TempDir(), "events.db"), ring, registry)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close events: %v", err)
		}
	})
	return store
}

func createdEvent(t *testing.T, cs ids.ContentStreamID) event.Event {
	t.Helper()
	evt, err := event.New(event.ContentStreamStream(cs), event.TypeContentStreamWasCreated,
		event.ContentStreamWasCreated{ContentStreamID: cs}, time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return evt
}

func closedEvent(t *testing.T, cs ids.ContentStreamID) event.Event {
	t.Helper()
	evt, err := event.New(event.ContentStreamStream(cs), event.TypeContentStreamWasClosed,
		event.ContentStreamWasClosed{ContentStreamID: cs}, time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return evt
}

func TestEventStoreAppendAndRead(t *testing.T) {
	ctx := context.Background()
	store := openTestEvents(t, nil)
	stream := event.ContentStreamStream("cs-a")

	version, stored, err := store.Append(ctx, stream, journal.ExpectedNoStream, []event.Event{createdEvent(t, "cs-a"), closedEvent(t, "cs-a")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if version != 2 || stored[0].Seq != 1 || stored[1].Seq != 2 {
		t.Fatalf("version=%d seqs=%d,%d, want 2 and 1,2", version, stored[0].Seq, stored[1].Seq)
	}
	if stored[1].PrevHash != stored[0].ChainHash {
		t.Fatal("second event does not link to the first")
	}
	if _, _, err := store.Append(ctx, event.ContentStreamStream("cs-b"), journal.ExpectedNoStream, []event.Event{createdEvent(t, "cs-b")}); err != nil {
		t.Fatalf("append cs-b: %v", err)
	}

	read, err := journal.ReadStreamAll(ctx, store, stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(read) != 2 {
		t.Fatalf("read %d events, want 2", len(read))
	}
	if read[0].ChainHash != stored[0].ChainHash || string(read[0].PayloadJSON) != string(stored[0].PayloadJSON) {
		t.Fatalf("read event = %+v, want %+v", read[0], stored[0])
	}
	if !read[0].Timestamp.Equal(stored[0].Timestamp) {
		t.Fatalf("timestamp = %s, want %s", read[0].Timestamp, stored[0].Timestamp)
	}

	all, err := store.ReadAll(ctx, 2, 0)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 1 || all[0].StreamName != event.ContentStreamStream("cs-b") {
		t.Fatalf("read all after 2 = %+v, want cs-b", all)
	}
	head, err := store.HeadSeq(ctx)
	if err != nil {
		t.Fatalf("head seq: %v", err)
	}
	if head != 3 {
		t.Fatalf("head = %d, want 3", head)
	}
}

func TestEventStoreRejectsStaleExpectedVersion(t *testing.T) {
	ctx := context.Background()
	store := openTestEvents(t, nil)
	stream := event.ContentStreamStream("cs-a")
	if _, _, err := store.Append(ctx, stream, journal.ExpectedNoStream, []event.Event{createdEvent(t, "cs-a")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, _, err := store.Append(ctx, stream, journal.ExpectedNoStream, []event.Event{closedEvent(t, "cs-a")})
	if !errors.Is(err, journal.ErrConcurrency) {
		t.Fatalf("err = %v, want %v", err, journal.ErrConcurrency)
	}
}

func TestEventStoreConcurrentAppendsKeepOneWinner(t *testing.T) {
	ctx := context.Background()
	store := openTestEvents(t, nil)
	stream := event.ContentStreamStream("cs-a")
	if _, _, err := store.Append(ctx, stream, journal.ExpectedNoStream, []event.Event{createdEvent(t, "cs-a")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	evt := closedEvent(t, "cs-a")
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Append(ctx, stream, journal.Exactly(1), []event.Event{evt})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, journal.ErrConcurrency):
				conflicts++
			default:
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 || conflicts != writers-1 {
		t.Fatalf("succeeded=%d conflicts=%d, want 1 and %d", succeeded, conflicts, writers-1)
	}
}

func TestEventStoreVerifyIntegrity(t *testing.T) {
	ctx := context.Background()
	ring, err := integrity.NewKeyring(map[string][]byte{"k1": []byte("sqlite-secret")}, "k1")
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	store := openTestEvents(t, ring)
	for _, cs := range []ids.ContentStreamID{"cs-b", "cs-a"} {
		if _, _, err := store.Append(ctx, event.ContentStreamStream(cs), journal.ExpectedNoStream, []event.Event{createdEvent(t, cs), closedEvent(t, cs)}); err != nil {
			t.Fatalf("append %s: %v", cs, err)
		}
	}
	stored, err := store.ReadAll(ctx, 0, 1)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if stored[0].Signature == "" || stored[0].SignatureKeyID != "k1" {
		t.Fatalf("event not signed: %+v", stored[0])
	}

	streams, err := store.ListStreams(ctx)
	if err != nil {
		t.Fatalf("list streams: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("streams = %v, want 2", streams)
	}
	report, err := store.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Streams != 2 || report.Events != 4 {
		t.Fatalf("report = %+v, want 2 streams and 4 events", report)
	}
}
