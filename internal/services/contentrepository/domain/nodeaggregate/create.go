package nodeaggregate

import (
	"context"
	"errors"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

func (d Decider) decideCreateRoot(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.CreateRootNodeAggregateWithNode)
	nt, err := d.requireNodeType(p.NodeTypeName)
	if err != nil {
		return settle(err)
	}
	if !nt.Root {
		return engine.Reject(apperrors.CodeNodeTypeMismatch, "node type %s is not a root type", p.NodeTypeName), nil
	}
	if err := d.requireAbsent(ctx, snap, p.NodeAggregateID); err != nil {
		return settle(err)
	}
	existing, err := snap.Graph.FindRootNodeAggregateByType(ctx, snap.ContentStreamID, p.NodeTypeName)
	switch {
	case err == nil:
		return engine.Reject(apperrors.CodeNodeAggregateExists, "root node aggregate of type %s already exists as %s", p.NodeTypeName, existing.ID), nil
	case !errors.Is(err, storage.ErrNotFound):
		return command.Decision{}, err
	}

	created, err := engine.NewEvent(in, event.TypeRootNodeAggregateWithNodeWasCreated, event.RootNodeAggregateWithNodeWasCreated{
		ContentStreamID:             p.ContentStreamID,
		NodeAggregateID:             p.NodeAggregateID,
		NodeTypeName:                p.NodeTypeName,
		CoveredDimensionSpacePoints: d.Dimensions.AllPoints(),
		NodeAggregateClassification: node.ClassificationRoot,
	})
	if err != nil {
		return command.Decision{}, err
	}

	// Tethered children of a root get one variant per root point, each
	// covering everything that falls back to it.
	var origins []originCoverage
	for _, rp := range d.rootPoints() {
		covered, err := d.Dimensions.Specializations(rp)
		if err != nil {
			return command.Decision{}, err
		}
		origins = append(origins, originCoverage{origin: rp.AsOrigin(), covered: covered})
	}
	tethered, err := d.tetheredEvents(in, tetheredPlan{
		anchor:    p.NodeAggregateID,
		parent:    p.NodeAggregateID,
		nodeType:  nt,
		origins:   origins,
		overrides: p.TetheredDescendantNodeAggregateIDs,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(append([]event.Event{created}, tethered...)...), nil
}

func (d Decider) decideCreate(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.CreateNodeAggregateWithNode)
	nt, err := d.requireNodeType(p.NodeTypeName)
	if err != nil {
		return settle(err)
	}
	if nt.Abstract || nt.Root {
		return engine.Reject(apperrors.CodeNodeTypeMismatch, "node type %s cannot be used for a regular node", p.NodeTypeName), nil
	}
	origin := p.OriginDimensionSpacePoint.ToPoint()
	if err := d.requirePoint(origin); err != nil {
		return settle(err)
	}
	if err := d.requireAbsent(ctx, snap, p.NodeAggregateID); err != nil {
		return settle(err)
	}
	parent, err := d.requireAggregate(ctx, snap, p.ParentNodeAggregateID)
	if err != nil {
		return settle(err)
	}
	if !parent.Covers(origin) {
		return engine.Reject(apperrors.CodeDimensionPointNotCovered, "parent %s does not cover %s", parent.ID, origin), nil
	}
	specializations, err := d.Dimensions.Specializations(origin)
	if err != nil {
		return command.Decision{}, err
	}
	covered := specializations.Intersect(parent.CoveredPoints)

	if p.NodeName != "" {
		if err := d.requireNameFree(ctx, snap, parent, p.NodeName, covered); err != nil {
			return settle(err)
		}
	}
	if err := d.requireProperties(nt, p.InitialPropertyValues); err != nil {
		return settle(err)
	}

	created, err := engine.NewEvent(in, event.TypeNodeAggregateWithNodeWasCreated, event.NodeAggregateWithNodeWasCreated{
		ContentStreamID:             p.ContentStreamID,
		NodeAggregateID:             p.NodeAggregateID,
		NodeTypeName:                p.NodeTypeName,
		OriginDimensionSpacePoint:   p.OriginDimensionSpacePoint,
		CoveredDimensionSpacePoints: covered,
		ParentNodeAggregateID:       p.ParentNodeAggregateID,
		NodeName:                    p.NodeName,
		InitialPropertyValues:       p.InitialPropertyValues,
		NodeAggregateClassification: node.ClassificationRegular,
	})
	if err != nil {
		return command.Decision{}, err
	}
	tethered, err := d.tetheredEvents(in, tetheredPlan{
		anchor:    p.NodeAggregateID,
		parent:    p.NodeAggregateID,
		nodeType:  nt,
		origins:   []originCoverage{{origin: p.OriginDimensionSpacePoint, covered: covered}},
		overrides: p.TetheredDescendantNodeAggregateIDs,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(append([]event.Event{created}, tethered...)...), nil
}

// requireNameFree rejects a name already used below parent at any of the
// points the new node would cover, including names reserved for tethered
// children of the parent's type.
func (d Decider) requireNameFree(ctx context.Context, snap engine.Snapshot, parent node.Aggregate, name ids.NodeName, covered dimension.PointSet) error {
	if parentType, err := d.NodeTypes.Get(parent.NodeType); err == nil {
		for _, child := range parentType.Tethered {
			if child.Name == name {
				return reject(apperrors.CodeNodeNameOccupied, "node name %s is reserved for a tethered child of %s", name, parent.ID)
			}
		}
	}
	siblings, err := snap.Graph.FindChildNodeAggregatesByName(ctx, snap.ContentStreamID, parent.ID, name)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if overlap := sibling.CoveredPoints.Intersect(covered); !overlap.IsEmpty() {
			return reject(apperrors.CodeNodeNameOccupied, "node name %s is used by %s at %s", name, sibling.ID, overlap.Points()[0])
		}
	}
	return nil
}
