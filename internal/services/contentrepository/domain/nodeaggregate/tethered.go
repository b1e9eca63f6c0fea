package nodeaggregate

import (
	"fmt"

	"github.com/louisbranch/contentgraph/internal/platform/id"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/nodetype"
)

type originCoverage struct {
	origin  dimension.OriginPoint
	covered dimension.PointSet
}

// tetheredPlan describes the tethered subtree to create below parent. The
// first origin creates each child; later origins add variants of it.
type tetheredPlan struct {
	anchor    ids.NodeAggregateID
	parent    ids.NodeAggregateID
	path      string
	nodeType  nodetype.NodeType
	origins   []originCoverage
	overrides command.TetheredIDs
}

// TetheredID returns the id a tethered descendant at path gets when the
// command does not pin one. Paths are child names joined by "/".
func TetheredID(anchor ids.NodeAggregateID, path string) ids.NodeAggregateID {
	return ids.NodeAggregateID(id.Derive(string(anchor), path))
}

func (d Decider) tetheredEvents(in engine.Input, plan tetheredPlan) ([]event.Event, error) {
	if len(plan.origins) == 0 {
		return nil, nil
	}
	var events []event.Event
	for _, child := range plan.nodeType.Tethered {
		path := string(child.Name)
		if plan.path != "" {
			path = plan.path + "/" + path
		}
		childID, ok := plan.overrides[path]
		if !ok {
			childID = TetheredID(plan.anchor, path)
		}
		childType, err := d.NodeTypes.Get(child.Type)
		if err != nil {
			return nil, fmt.Errorf("tethered child %s: %w", path, err)
		}

		first := plan.origins[0]
		created, err := engine.NewEvent(in, event.TypeNodeAggregateWithNodeWasCreated, event.NodeAggregateWithNodeWasCreated{
			ContentStreamID:             in.Payload.ContentStream(),
			NodeAggregateID:             childID,
			NodeTypeName:                child.Type,
			OriginDimensionSpacePoint:   first.origin,
			CoveredDimensionSpacePoints: first.covered,
			ParentNodeAggregateID:       plan.parent,
			NodeName:                    child.Name,
			NodeAggregateClassification: node.ClassificationTethered,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, created)
		for _, next := range plan.origins[1:] {
			variant, err := engine.NewEvent(in, event.TypeNodeVariantWasCreated, event.NodeVariantWasCreated{
				ContentStreamID:             in.Payload.ContentStream(),
				NodeAggregateID:             childID,
				SourceOrigin:                first.origin,
				TargetOrigin:                next.origin,
				CoveredDimensionSpacePoints: next.covered,
			})
			if err != nil {
				return nil, err
			}
			events = append(events, variant)
		}

		nested, err := d.tetheredEvents(in, tetheredPlan{
			anchor:    plan.anchor,
			parent:    childID,
			path:      path,
			nodeType:  childType,
			origins:   plan.origins,
			overrides: plan.overrides,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, nested...)
	}
	return events, nil
}
