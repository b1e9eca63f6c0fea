package replay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

type sliceSource struct {
	events []event.Event
	calls  int
}

func (s *sliceSource) ReadAll(_ context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	s.calls++
	var out []event.Event
	for _, evt := range s.events {
		if evt.Seq > afterSeq && len(out) < limit {
			out = append(out, evt)
		}
	}
	return out, nil
}

type recordingTarget struct {
	checkpoint uint64
	applied    []uint64
	failAt     uint64
}

func (r *recordingTarget) Checkpoint(context.Context) (uint64, error) { return r.checkpoint, nil }

func (r *recordingTarget) Apply(_ context.Context, evt event.Event) error {
	if evt.Seq == r.failAt {
		return errors.New("boom")
	}
	r.applied = append(r.applied, evt.Seq)
	r.checkpoint = evt.Seq
	return nil
}

func seqs(values ...uint64) []event.Event {
	events := make([]event.Event, 0, len(values))
	for _, v := range values {
		events = append(events, event.Event{Seq: v, Type: event.TypeContentStreamWasCreated})
	}
	return events
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name       string
		events     []event.Event
		checkpoint uint64
		options    Options
		wantLast   uint64
		wantCount  int
		wantErr    string
	}{
		{name: "from scratch paged", events: seqs(1, 2, 3, 4, 5), options: Options{PageSize: 2}, wantLast: 5, wantCount: 5},
		{name: "resumes after checkpoint", events: seqs(1, 2, 3, 4), checkpoint: 2, wantLast: 4, wantCount: 2},
		{name: "stops at until", events: seqs(1, 2, 3, 4), options: Options{UntilSeq: 3}, wantLast: 3, wantCount: 3},
		{name: "gap", events: seqs(1, 2, 4), wantLast: 2, wantCount: 2, wantErr: "sequence gap"},
		{name: "nothing to do", events: seqs(1, 2), checkpoint: 2, wantLast: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recordingTarget{checkpoint: tt.checkpoint}
			result, err := Replay(context.Background(), &sliceSource{events: tt.events}, target, tt.options)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("replay: %v", err)
			}
			if result.LastSeq != tt.wantLast || result.Applied != tt.wantCount {
				t.Fatalf("result = %+v, want last %d applied %d", result, tt.wantLast, tt.wantCount)
			}
		})
	}
}

func TestReplayStopsOnApplyError(t *testing.T) {
	target := &recordingTarget{failAt: 2}
	result, err := Replay(context.Background(), &sliceSource{events: seqs(1, 2, 3)}, target, Options{})
	if err == nil {
		t.Fatal("expected apply error")
	}
	if result.LastSeq != 1 || target.checkpoint != 1 {
		t.Fatalf("result = %+v checkpoint = %d, want 1", result, target.checkpoint)
	}
}

func TestReplayRequiresCollaborators(t *testing.T) {
	if _, err := Replay(context.Background(), nil, &recordingTarget{}, Options{}); !errors.Is(err, ErrEventSourceRequired) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Replay(context.Background(), &sliceSource{}, nil, Options{}); !errors.Is(err, ErrTargetRequired) {
		t.Fatalf("err = %v", err)
	}
}
