package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// ErrContentStreamNotProjected indicates an event for a stream the graph
// never saw created.
var ErrContentStreamNotProjected = errors.New("content stream is not projected")

// NewContentGraph builds the content graph projection.
func NewContentGraph(store storage.ProjectionStore) *Projector {
	r := newRouter()
	handle(r, event.TypeContentStreamWasCreated, applyContentStreamCreated)
	handle(r, event.TypeContentStreamWasForked, applyContentStreamForked)
	handle(r, event.TypeContentStreamWasClosed, applyContentStreamClosed)
	handle(r, event.TypeRootNodeAggregateWithNodeWasCreated, inStream(applyRootCreated))
	handle(r, event.TypeNodeAggregateWithNodeWasCreated, inStream(applyNodeCreated))
	handle(r, event.TypeNodeVariantWasCreated, inStream(applyVariantCreated))
	handle(r, event.TypeNodePropertiesWereSet, inStream(applyPropertiesSet))
	handle(r, event.TypeNodeReferencesWereSet, inStream(applyReferencesSet))
	handle(r, event.TypeNodeAggregateWasDisabled, inStream(applyDisabled))
	handle(r, event.TypeNodeAggregateWasEnabled, inStream(applyEnabled))
	handle(r, event.TypeNodeAggregateWasRemoved, inStream(applyRemoved))
	handle(r, event.TypeDimensionSpacePointWasMoved, inStream(applyPointMoved))
	return &Projector{name: storage.ProjectionContentGraph, store: store, router: r}
}

// inStream wraps a node handler so the stream version follows every event.
func inStream[P event.ContentStreamScoped](fn func(context.Context, storage.ProjectionTx, event.Event, P) error) func(context.Context, storage.ProjectionTx, event.Event, P) error {
	return func(ctx context.Context, tx storage.ProjectionTx, evt event.Event, payload P) error {
		if err := fn(ctx, tx, evt, payload); err != nil {
			return err
		}
		return touchStream(ctx, tx, payload.ContentStream(), evt, "")
	}
}

func touchStream(ctx context.Context, tx storage.ProjectionTx, cs ids.ContentStreamID, evt event.Event, state storage.ContentStreamState) error {
	record, err := tx.GetContentStream(ctx, cs)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrContentStreamNotProjected, cs)
	}
	if err != nil {
		return err
	}
	record.Version = evt.StreamVersion
	record.UpdatedAt = evt.Timestamp
	if state != "" {
		record.State = state
	}
	return tx.PutContentStream(ctx, record)
}

func applyContentStreamCreated(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.ContentStreamWasCreated) error {
	return tx.PutContentStream(ctx, storage.ContentStreamRecord{
		ID:        p.ContentStreamID,
		Version:   evt.StreamVersion,
		State:     storage.ContentStreamCreated,
		CreatedAt: evt.Timestamp,
		UpdatedAt: evt.Timestamp,
	})
}

func applyContentStreamForked(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.ContentStreamWasForked) error {
	if _, err := tx.GetContentStream(ctx, p.SourceContentStreamID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: fork source %s", ErrContentStreamNotProjected, p.SourceContentStreamID)
		}
		return err
	}
	if err := tx.CopyContentStream(ctx, p.SourceContentStreamID, p.ContentStreamID); err != nil {
		return err
	}
	return tx.PutContentStream(ctx, storage.ContentStreamRecord{
		ID:            p.ContentStreamID,
		SourceID:      p.SourceContentStreamID,
		SourceVersion: p.VersionOfSourceContentStream,
		Version:       evt.StreamVersion,
		State:         storage.ContentStreamForked,
		CreatedAt:     evt.Timestamp,
		UpdatedAt:     evt.Timestamp,
	})
}

func applyContentStreamClosed(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.ContentStreamWasClosed) error {
	return touchStream(ctx, tx, p.ContentStreamID, evt, storage.ContentStreamClosed)
}

func applyRootCreated(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.RootNodeAggregateWithNodeWasCreated) error {
	origin := dimension.OriginPoint{}
	err := tx.InsertNodeVariant(ctx, storage.NodeVariantRecord{
		ContentStreamID: p.ContentStreamID,
		AggregateID:     p.NodeAggregateID,
		Origin:          origin,
		NodeType:        p.NodeTypeName,
		Classification:  node.ClassificationRoot,
		Properties:      node.PropertyValues{},
		CreatedAt:       evt.Timestamp,
		LastModifiedAt:  evt.Timestamp,
	})
	if err != nil {
		return err
	}
	return tx.AssignCoverage(ctx, p.ContentStreamID, p.NodeAggregateID, origin, "", p.CoveredDimensionSpacePoints)
}

func applyNodeCreated(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.NodeAggregateWithNodeWasCreated) error {
	err := tx.InsertNodeVariant(ctx, storage.NodeVariantRecord{
		ContentStreamID: p.ContentStreamID,
		AggregateID:     p.NodeAggregateID,
		Origin:          p.OriginDimensionSpacePoint,
		NodeType:        p.NodeTypeName,
		Classification:  p.NodeAggregateClassification,
		Name:            p.NodeName,
		Properties:      p.InitialPropertyValues,
		CreatedAt:       evt.Timestamp,
		LastModifiedAt:  evt.Timestamp,
	})
	if err != nil {
		return err
	}
	if err := tx.AssignCoverage(ctx, p.ContentStreamID, p.NodeAggregateID, p.OriginDimensionSpacePoint, p.ParentNodeAggregateID, p.CoveredDimensionSpacePoints); err != nil {
		return err
	}
	return tx.InheritRestrictions(ctx, p.ContentStreamID, p.ParentNodeAggregateID, p.NodeAggregateID, p.CoveredDimensionSpacePoints)
}

func applyVariantCreated(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.NodeVariantWasCreated) error {
	parent, err := tx.ParentOf(ctx, p.ContentStreamID, p.NodeAggregateID, p.SourceOrigin)
	if err != nil {
		return err
	}
	if err := tx.CopyNodeVariant(ctx, p.ContentStreamID, p.NodeAggregateID, p.SourceOrigin, p.TargetOrigin, evt.Timestamp); err != nil {
		return err
	}
	if err := tx.AssignCoverage(ctx, p.ContentStreamID, p.NodeAggregateID, p.TargetOrigin, parent, p.CoveredDimensionSpacePoints); err != nil {
		return err
	}
	return tx.InheritRestrictions(ctx, p.ContentStreamID, parent, p.NodeAggregateID, p.CoveredDimensionSpacePoints)
}

func applyPropertiesSet(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.NodePropertiesWereSet) error {
	return tx.MergeNodeProperties(ctx, p.ContentStreamID, p.NodeAggregateID, p.OriginDimensionSpacePoint, p.PropertyValues, evt.Timestamp)
}

func applyReferencesSet(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.NodeReferencesWereSet) error {
	return tx.ReplaceReferences(ctx, p.ContentStreamID, p.SourceNodeAggregateID, p.SourceOriginDimensionSpacePoint, p.ReferenceName, p.References, evt.Timestamp)
}

func applyDisabled(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.NodeAggregateWasDisabled) error {
	return tx.AddRestrictions(ctx, p.ContentStreamID, p.NodeAggregateID, p.AffectedDimensionSpacePoints)
}

func applyEnabled(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.NodeAggregateWasEnabled) error {
	return tx.RemoveRestrictions(ctx, p.ContentStreamID, p.NodeAggregateID, p.AffectedDimensionSpacePoints)
}

func applyRemoved(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.NodeAggregateWasRemoved) error {
	return tx.RemoveCoverage(ctx, p.ContentStreamID, p.NodeAggregateID, p.AffectedCoveredDimensionSpacePoints, p.AffectedOccupiedDimensionSpacePoints)
}

func applyPointMoved(ctx context.Context, tx storage.ProjectionTx, _ event.Event, p event.DimensionSpacePointWasMoved) error {
	return tx.MovePoint(ctx, p.ContentStreamID, p.Source, p.Target)
}
