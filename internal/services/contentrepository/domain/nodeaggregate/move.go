package nodeaggregate

import (
	"context"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

// decideMove renames a point. The source may already be gone from the
// configured space; the target must be part of it and unused.
func (d Decider) decideMove(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.MoveDimensionSpacePoint)
	if err := d.requirePoint(p.Target); err != nil {
		return settle(err)
	}
	used, err := snap.Graph.IsPointUsed(ctx, snap.ContentStreamID, p.Target)
	if err != nil {
		return command.Decision{}, err
	}
	if used {
		return engine.Reject(apperrors.CodeDimensionPointOccupied, "dimension space point %s is already in use", p.Target), nil
	}
	used, err = snap.Graph.IsPointUsed(ctx, snap.ContentStreamID, p.Source)
	if err != nil {
		return command.Decision{}, err
	}
	if !used {
		return engine.Reject(apperrors.CodeDimensionPointNotCovered, "dimension space point %s is not used", p.Source), nil
	}
	evt, err := engine.NewEvent(in, event.TypeDimensionSpacePointWasMoved, event.DimensionSpacePointWasMoved{
		ContentStreamID: p.ContentStreamID,
		Source:          p.Source,
		Target:          p.Target,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}
