package nodeaggregate

import (
	"context"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

func (d Decider) decideSetProperties(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.SetNodeProperties)
	agg, err := d.requireAggregate(ctx, snap, p.NodeAggregateID)
	if err != nil {
		return settle(err)
	}
	if err := d.requireOrigin(agg, p.OriginDimensionSpacePoint); err != nil {
		return settle(err)
	}
	if len(p.PropertyValues) == 0 {
		return engine.Reject(apperrors.CodeValidationFailed, "no property values given"), nil
	}
	nt, err := d.requireNodeType(agg.NodeType)
	if err != nil {
		return settle(err)
	}
	if err := d.requireProperties(nt, p.PropertyValues); err != nil {
		return settle(err)
	}
	evt, err := engine.NewEvent(in, event.TypeNodePropertiesWereSet, event.NodePropertiesWereSet{
		ContentStreamID:           p.ContentStreamID,
		NodeAggregateID:           p.NodeAggregateID,
		OriginDimensionSpacePoint: p.OriginDimensionSpacePoint,
		PropertyValues:            p.PropertyValues,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}

func (d Decider) decideSetReferences(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.SetSerializedNodeReferences)
	source, err := d.requireAggregate(ctx, snap, p.SourceNodeAggregateID)
	if err != nil {
		return settle(err)
	}
	if err := d.requireOrigin(source, p.SourceOriginDimensionSpacePoint); err != nil {
		return settle(err)
	}
	nt, err := d.requireNodeType(source.NodeType)
	if err != nil {
		return settle(err)
	}
	if !nt.HasReference(p.ReferenceName) {
		return engine.Reject(apperrors.CodeReferenceNotDeclared, "reference %s is not declared on %s", p.ReferenceName, nt.Name), nil
	}
	if limit := nt.References[p.ReferenceName].MaxItems; limit > 0 && len(p.References) > limit {
		return engine.Reject(apperrors.CodeValidationFailed, "reference %s allows at most %d targets, got %d", p.ReferenceName, limit, len(p.References)), nil
	}
	for _, target := range p.References.TargetIDs() {
		if _, err := d.requireAggregate(ctx, snap, target); err != nil {
			return settle(err)
		}
	}
	evt, err := engine.NewEvent(in, event.TypeNodeReferencesWereSet, event.NodeReferencesWereSet{
		ContentStreamID:                 p.ContentStreamID,
		SourceNodeAggregateID:           p.SourceNodeAggregateID,
		SourceOriginDimensionSpacePoint: p.SourceOriginDimensionSpacePoint,
		ReferenceName:                   p.ReferenceName,
		References:                      p.References,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}
