package nodeaggregate

import (
	"context"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

// requireCovering loads an aggregate and checks it is visible at point.
func (d Decider) requireCovering(ctx context.Context, snap engine.Snapshot, aggregateID ids.NodeAggregateID, point dimension.Point) (node.Aggregate, error) {
	if err := d.requirePoint(point); err != nil {
		return node.Aggregate{}, err
	}
	agg, err := d.requireAggregate(ctx, snap, aggregateID)
	if err != nil {
		return node.Aggregate{}, err
	}
	if !agg.Covers(point) {
		return node.Aggregate{}, reject(apperrors.CodeDimensionPointNotCovered, "node aggregate %s does not cover %s", agg.ID, point)
	}
	return agg, nil
}

func (d Decider) decideDisable(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.DisableNodeAggregate)
	agg, err := d.requireCovering(ctx, snap, p.NodeAggregateID, p.CoveredDimensionSpacePoint)
	if err != nil {
		return settle(err)
	}
	if agg.IsDisabledAt(p.CoveredDimensionSpacePoint) {
		return engine.Reject(apperrors.CodeNodeAggregateDisabled, "node aggregate %s is already disabled at %s", agg.ID, p.CoveredDimensionSpacePoint), nil
	}
	affected, err := d.affectedPoints(agg, p.CoveredDimensionSpacePoint, p.NodeVariantSelectionStrategy)
	if err != nil {
		return settle(err)
	}
	evt, err := engine.NewEvent(in, event.TypeNodeAggregateWasDisabled, event.NodeAggregateWasDisabled{
		ContentStreamID:              p.ContentStreamID,
		NodeAggregateID:              agg.ID,
		AffectedDimensionSpacePoints: affected,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}

func (d Decider) decideEnable(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.EnableNodeAggregate)
	agg, err := d.requireCovering(ctx, snap, p.NodeAggregateID, p.CoveredDimensionSpacePoint)
	if err != nil {
		return settle(err)
	}
	if !agg.IsDisabledAt(p.CoveredDimensionSpacePoint) {
		return engine.Reject(apperrors.CodeNodeAggregateNotDisabled, "node aggregate %s is not disabled at %s", agg.ID, p.CoveredDimensionSpacePoint), nil
	}
	affected, err := d.affectedPoints(agg, p.CoveredDimensionSpacePoint, p.NodeVariantSelectionStrategy)
	if err != nil {
		return settle(err)
	}
	evt, err := engine.NewEvent(in, event.TypeNodeAggregateWasEnabled, event.NodeAggregateWasEnabled{
		ContentStreamID:              p.ContentStreamID,
		NodeAggregateID:              agg.ID,
		AffectedDimensionSpacePoints: affected.Intersect(agg.DisabledPoints),
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}

func (d Decider) decideRemove(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.RemoveNodeAggregate)
	agg, err := d.requireCovering(ctx, snap, p.NodeAggregateID, p.CoveredDimensionSpacePoint)
	if err != nil {
		return settle(err)
	}
	if agg.Classification.IsTethered() {
		return engine.Reject(apperrors.CodeTetheredNodeRemoval, "tethered node aggregate %s cannot be removed", agg.ID), nil
	}
	affectedCovered, err := d.affectedPoints(agg, p.CoveredDimensionSpacePoint, p.NodeVariantSelectionStrategy)
	if err != nil {
		return settle(err)
	}
	evt, err := engine.NewEvent(in, event.TypeNodeAggregateWasRemoved, event.NodeAggregateWasRemoved{
		ContentStreamID:                      p.ContentStreamID,
		NodeAggregateID:                      agg.ID,
		AffectedOccupiedDimensionSpacePoints: agg.OccupiedOrigins.Intersect(affectedCovered),
		AffectedCoveredDimensionSpacePoints:  affectedCovered,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}
