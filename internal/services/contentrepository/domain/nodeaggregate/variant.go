package nodeaggregate

import (
	"context"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

func (d Decider) decideCreateVariant(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.CreateNodeVariant)
	agg, err := d.requireAggregate(ctx, snap, p.NodeAggregateID)
	if err != nil {
		return settle(err)
	}
	if !agg.Classification.IsRegular() {
		return engine.Reject(apperrors.CodeValidationFailed, "%s node aggregate %s cannot be varied directly", agg.Classification, agg.ID), nil
	}
	if err := d.requireOrigin(agg, p.SourceOrigin); err != nil {
		return settle(err)
	}
	target := p.TargetOrigin.ToPoint()
	if err := d.requirePoint(target); err != nil {
		return settle(err)
	}
	if agg.OccupiesOrigin(p.TargetOrigin) {
		return engine.Reject(apperrors.CodeNodeVariantExists, "node aggregate %s already has a variant at %s", agg.ID, target), nil
	}
	parent, err := d.parentCovering(ctx, snap, agg, target)
	if err != nil {
		return settle(err)
	}
	covered, err := d.variantCoverage(agg, parent, p.TargetOrigin)
	if err != nil {
		return command.Decision{}, err
	}

	variant, err := engine.NewEvent(in, event.TypeNodeVariantWasCreated, event.NodeVariantWasCreated{
		ContentStreamID:             p.ContentStreamID,
		NodeAggregateID:             agg.ID,
		SourceOrigin:                p.SourceOrigin,
		TargetOrigin:                p.TargetOrigin,
		CoveredDimensionSpacePoints: covered,
	})
	if err != nil {
		return command.Decision{}, err
	}
	tethered, err := d.varyTethered(ctx, snap, in, agg, p.SourceOrigin, p.TargetOrigin, covered)
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(append([]event.Event{variant}, tethered...)...), nil
}

// parentCovering finds the parent of agg that is visible at p.
func (d Decider) parentCovering(ctx context.Context, snap engine.Snapshot, agg node.Aggregate, p dimension.Point) (node.Aggregate, error) {
	for _, parentID := range agg.ParentIDs {
		parent, err := d.requireAggregate(ctx, snap, parentID)
		if err != nil {
			return node.Aggregate{}, err
		}
		if parent.Covers(p) {
			return parent, nil
		}
	}
	return node.Aggregate{}, reject(apperrors.CodeDimensionPointNotCovered, "no parent of %s covers %s", agg.ID, p)
}

// variantCoverage returns the points a new variant at target takes over:
// specializations of target, inside the parent's coverage, that do not
// resolve to a more specific existing variant.
func (d Decider) variantCoverage(agg, parent node.Aggregate, target dimension.OriginPoint) (dimension.PointSet, error) {
	specializations, err := d.Dimensions.Specializations(target.ToPoint())
	if err != nil {
		return dimension.PointSet{}, err
	}
	occupied := agg.OccupiedOrigins.Union(dimension.NewPointSet(target.ToPoint()))
	var covered []dimension.Point
	for _, sp := range specializations.Intersect(parent.CoveredPoints).Points() {
		if visible, ok := d.Dimensions.ResolveVisibleOrigin(sp, occupied); ok && visible == target.ToPoint() {
			covered = append(covered, sp)
		}
	}
	return dimension.NewPointSet(covered...), nil
}

// varyTethered adds a variant at target for every tethered descendant that
// does not have one yet. Tethered children always cover what their parent
// covers.
func (d Decider) varyTethered(ctx context.Context, snap engine.Snapshot, in engine.Input, parent node.Aggregate, source, target dimension.OriginPoint, covered dimension.PointSet) ([]event.Event, error) {
	children, err := snap.Graph.FindTetheredChildNodeAggregates(ctx, snap.ContentStreamID, parent.ID)
	if err != nil {
		return nil, err
	}
	var events []event.Event
	for _, child := range children {
		if child.OccupiesOrigin(target) {
			continue
		}
		childSource, ok := child.OriginCovering(source.ToPoint())
		if !ok {
			continue
		}
		variant, err := engine.NewEvent(in, event.TypeNodeVariantWasCreated, event.NodeVariantWasCreated{
			ContentStreamID:             snap.ContentStreamID,
			NodeAggregateID:             child.ID,
			SourceOrigin:                childSource,
			TargetOrigin:                target,
			CoveredDimensionSpacePoints: covered,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, variant)
		nested, err := d.varyTethered(ctx, snap, in, child, childSource, target, covered)
		if err != nil {
			return nil, err
		}
		events = append(events, nested...)
	}
	return events, nil
}
