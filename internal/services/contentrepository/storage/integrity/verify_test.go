package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
)

func TestVerifyStreamsCountsEveryStream(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemory(nil)
	var streams []event.StreamName
	for _, cs := range []string{"cs-a", "cs-b"} {
		stream := event.ContentStreamStream(ids.ContentStreamID(cs))
		streams = append(streams, stream)
		evt, err := event.New(stream, event.TypeContentStreamWasCreated, map[string]string{"contentStreamId": cs}, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("new event: %v", err)
		}
		if _, _, err := store.Append(ctx, stream, journal.ExpectedNoStream, []event.Event{evt}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	report, err := VerifyStreams(ctx, nil, store, streams)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Streams != 2 || report.Events != 2 {
		t.Fatalf("report = %+v, want 2 streams and 2 events", report)
	}
}

func TestVerifyStreamsRejectsUnsignedWithKeyring(t *testing.T) {
	ring, err := NewKeyring(map[string][]byte{"v1": []byte("secret")}, "v1")
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	store := journal.NewMemory(nil)
	stream := event.ContentStreamStream("cs-a")
	evt, err := event.New(stream, event.TypeContentStreamWasCreated, map[string]string{"contentStreamId": "cs-a"}, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if _, _, err := store.Append(context.Background(), stream, journal.ExpectedNoStream, []event.Event{evt}); err != nil {
		t.Fatalf("append: %v", err)
	}
	report, err := VerifyStreams(context.Background(), ring, store, []event.StreamName{stream})
	if err == nil {
		t.Fatal("expected unsigned event to fail verification")
	}
	if report.Events != 0 {
		t.Fatalf("verified events = %d, want 0", report.Events)
	}
}
