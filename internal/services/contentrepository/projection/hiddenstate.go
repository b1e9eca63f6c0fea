package projection

import (
	"context"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// NewHiddenState builds the hidden state projection. It tracks only the
// aggregate named by a disable, not its descendants.
func NewHiddenState(store storage.ProjectionStore) *Projector {
	r := newRouter()
	handle(r, event.TypeContentStreamWasForked, func(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.ContentStreamWasForked) error {
		return tx.CopyHiddenState(ctx, p.SourceContentStreamID, p.ContentStreamID)
	})
	handle(r, event.TypeNodeAggregateWasDisabled, func(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.NodeAggregateWasDisabled) error {
		return tx.MarkHidden(ctx, p.ContentStreamID, p.NodeAggregateID, p.AffectedDimensionSpacePoints)
	})
	handle(r, event.TypeNodeAggregateWasEnabled, func(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.NodeAggregateWasEnabled) error {
		return tx.ClearHidden(ctx, p.ContentStreamID, p.NodeAggregateID, p.AffectedDimensionSpacePoints)
	})
	handle(r, event.TypeNodeAggregateWasRemoved, func(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.NodeAggregateWasRemoved) error {
		return tx.ClearHidden(ctx, p.ContentStreamID, p.NodeAggregateID, p.AffectedCoveredDimensionSpacePoints)
	})
	handle(r, event.TypeDimensionSpacePointWasMoved, func(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.DimensionSpacePointWasMoved) error {
		return tx.MoveHiddenStatePoint(ctx, p.ContentStreamID, p.Source, p.Target)
	})
	return &Projector{name: storage.ProjectionHiddenState, store: store, router: r}
}
