// Package journal defines the append-only event store contract and an
// in-memory implementation used by tests and tooling.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

// ErrConcurrency indicates the stream version moved past the expected one.
var ErrConcurrency = errors.New("stream version does not match expected version")

// ExpectedVersion constrains an append to the stream's current version.
// Positive values demand that exact version.
type ExpectedVersion int64

const (
	// ExpectedAny skips the version check.
	ExpectedAny ExpectedVersion = -1
	// ExpectedNoStream demands that the stream has no events yet.
	ExpectedNoStream ExpectedVersion = 0
)

// Exactly demands that the stream is at version v.
func Exactly(v uint64) ExpectedVersion {
	return ExpectedVersion(v)
}

// Check compares a current stream version against the expectation.
func (e ExpectedVersion) Check(stream event.StreamName, current uint64) error {
	if e == ExpectedAny || uint64(e) == current {
		return nil
	}
	return fmt.Errorf("%w: stream %s at version %d, expected %d", ErrConcurrency, stream, current, e)
}

// Store is the event store contract.
//
// Append is compare-and-append: either every event is stored at consecutive
// stream versions or nothing is. The store assigns ID, Seq, StreamVersion
// and integrity fields and returns the stored events.
type Store interface {
	Append(ctx context.Context, stream event.StreamName, expected ExpectedVersion, events []event.Event) (uint64, []event.Event, error)
	// ReadStream returns up to limit events of one stream starting at
	// fromVersion (1-based). A limit of zero or less reads to the end.
	ReadStream(ctx context.Context, stream event.StreamName, fromVersion uint64, limit int) ([]event.Event, error)
	// ReadAll returns up to limit events in global order after afterSeq.
	ReadAll(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
	// StreamVersion returns the version of the last event in the stream, or
	// zero for a stream that does not exist.
	StreamVersion(ctx context.Context, stream event.StreamName) (uint64, error)
	// HeadSeq returns the highest assigned global sequence.
	HeadSeq(ctx context.Context) (uint64, error)
}

// Validator normalizes events before they are stored.
type Validator interface {
	ValidateForAppend(evt event.Event) (event.Event, error)
}

// ReadStreamAll pages through a whole stream.
func ReadStreamAll(ctx context.Context, store Store, stream event.StreamName) ([]event.Event, error) {
	const pageSize = 500
	var out []event.Event
	from := uint64(1)
	for {
		page, err := store.ReadStream(ctx, stream, from, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		from = page[len(page)-1].StreamVersion + 1
	}
}
