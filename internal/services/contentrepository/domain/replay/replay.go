// Package replay feeds events from the global log into a projection target in
// sequence order.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

const defaultPageSize = 200

var (
	// ErrEventSourceRequired indicates a missing event source.
	ErrEventSourceRequired = errors.New("event source is required")
	// ErrTargetRequired indicates a missing replay target.
	ErrTargetRequired = errors.New("replay target is required")
	// ErrSequenceGap indicates the global log skipped a sequence number.
	ErrSequenceGap = errors.New("event sequence gap")
)

// EventSource lists events of the global log after a sequence number.
type EventSource interface {
	ReadAll(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
}

// Target is a projection that tracks its own checkpoint. Apply must advance
// the checkpoint to evt.Seq in the same unit of work as the state change.
type Target interface {
	Checkpoint(ctx context.Context) (uint64, error)
	Apply(ctx context.Context, evt event.Event) error
}

// Options configures replay behavior.
type Options struct {
	// UntilSeq stops after the given sequence; zero means the current head.
	UntilSeq uint64
	PageSize int
}

// Result captures replay outcomes.
type Result struct {
	LastSeq uint64
	Applied int
}

// Replay applies every event after the target checkpoint.
func Replay(ctx context.Context, source EventSource, target Target, options Options) (Result, error) {
	if source == nil {
		return Result{}, ErrEventSourceRequired
	}
	if target == nil {
		return Result{}, ErrTargetRequired
	}
	lastSeq, err := target.Checkpoint(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read checkpoint: %w", err)
	}
	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result{LastSeq: lastSeq}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, err := source.ReadAll(ctx, result.LastSeq, pageSize)
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return result, nil
			}
			expectedSeq := result.LastSeq + 1
			if evt.Seq != expectedSeq {
				return result, fmt.Errorf("%w: expected %d got %d", ErrSequenceGap, expectedSeq, evt.Seq)
			}
			if err := target.Apply(ctx, evt); err != nil {
				return result, fmt.Errorf("apply %s at seq %d: %w", evt.Type, evt.Seq, err)
			}
			result.LastSeq = evt.Seq
			result.Applied++
		}
	}
}
