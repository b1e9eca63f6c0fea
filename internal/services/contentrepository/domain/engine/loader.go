package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// Snapshot is the read-only state a decider sees.
type Snapshot struct {
	ContentStreamID ids.ContentStreamID
	// Stream is the projected stream record; zero when Exists is false.
	Stream storage.ContentStreamRecord
	Exists bool
	Graph  storage.ContentGraphReader
}

// Version returns the stream version the snapshot was taken at.
func (s Snapshot) Version() uint64 {
	if !s.Exists {
		return 0
	}
	return s.Stream.Version
}

// StateLoader loads a snapshot for a content stream.
type StateLoader interface {
	Load(ctx context.Context, cs ids.ContentStreamID) (Snapshot, error)
}

// ProjectionStateLoader catches up the content graph projection before
// reading, so deciders never act on state older than the event store.
type ProjectionStateLoader struct {
	CatchUp func(ctx context.Context) error
	Graph   storage.ContentGraphReader
}

// Load implements StateLoader.
func (l ProjectionStateLoader) Load(ctx context.Context, cs ids.ContentStreamID) (Snapshot, error) {
	if l.Graph == nil {
		return Snapshot{}, errors.New("content graph reader is required")
	}
	if l.CatchUp != nil {
		if err := l.CatchUp(ctx); err != nil {
			return Snapshot{}, fmt.Errorf("catch up content graph: %w", err)
		}
	}
	snap := Snapshot{ContentStreamID: cs, Graph: l.Graph}
	record, err := l.Graph.ContentStream(ctx, cs)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return snap, nil
	case err != nil:
		return Snapshot{}, err
	}
	snap.Stream = record
	snap.Exists = true
	return snap, nil
}
