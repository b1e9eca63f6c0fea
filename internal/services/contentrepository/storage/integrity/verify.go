package integrity

import (
	"context"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

const verifyPageSize = 500

// StreamReader pages through one stream in version order.
type StreamReader interface {
	ReadStream(ctx context.Context, stream event.StreamName, fromVersion uint64, limit int) ([]event.Event, error)
}

// Report summarizes a verification run.
type Report struct {
	Streams int
	Events  int
}

// VerifyStreams walks every given stream and checks its chain. It stops at
// the first broken link.
func VerifyStreams(ctx context.Context, ring *Keyring, reader StreamReader, streams []event.StreamName) (Report, error) {
	var report Report
	for _, stream := range streams {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		verifier := NewChainVerifier(ring, stream)
		from := uint64(1)
		for {
			page, err := reader.ReadStream(ctx, stream, from, verifyPageSize)
			if err != nil {
				return report, err
			}
			for _, evt := range page {
				if err := verifier.Next(evt); err != nil {
					return report, err
				}
				report.Events++
			}
			if len(page) < verifyPageSize {
				break
			}
			from = page[len(page)-1].StreamVersion + 1
		}
		report.Streams++
	}
	return report, nil
}
