package projection

import (
	"context"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// NewWorkspace builds the workspace metadata projection.
func NewWorkspace(store storage.ProjectionStore) *Projector {
	r := newRouter()
	handle(r, event.TypeRootWorkspaceWasCreated, applyRootWorkspaceCreated)
	handle(r, event.TypeWorkspaceWasCreated, applyWorkspaceCreated)
	handle(r, event.TypeWorkspaceWasRebased, func(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.WorkspaceWasRebased) error {
		return switchStream(ctx, tx, evt, p.WorkspaceName, p.NewContentStreamID)
	})
	handle(r, event.TypeWorkspaceRebaseFailed, applyRebaseFailed)
	handle(r, event.TypeWorkspaceWasPublished, func(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.WorkspaceWasPublished) error {
		return published(ctx, tx, evt, p.SourceWorkspaceName, p.TargetWorkspaceName, p.NewSourceContentStreamID)
	})
	handle(r, event.TypeWorkspaceWasPartiallyPublished, func(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.WorkspaceWasPartiallyPublished) error {
		return published(ctx, tx, evt, p.SourceWorkspaceName, p.TargetWorkspaceName, p.NewSourceContentStreamID)
	})
	handle(r, event.TypeWorkspaceWasDiscarded, func(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.WorkspaceWasDiscarded) error {
		return switchStream(ctx, tx, evt, p.WorkspaceName, p.NewContentStreamID)
	})
	handle(r, event.TypeWorkspaceWasPartiallyDiscarded, func(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.WorkspaceWasPartiallyDiscarded) error {
		return switchStream(ctx, tx, evt, p.WorkspaceName, p.NewContentStreamID)
	})
	return &Projector{name: storage.ProjectionWorkspace, store: store, router: r}
}

func applyRootWorkspaceCreated(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.RootWorkspaceWasCreated) error {
	return tx.PutWorkspace(ctx, storage.WorkspaceRecord{
		Name:                   p.WorkspaceName,
		Title:                  p.Title,
		Description:            p.Description,
		CurrentContentStreamID: p.NewContentStreamID,
		Status:                 storage.WorkspaceUpToDate,
		Version:                evt.StreamVersion,
		UpdatedAt:              evt.Timestamp,
	})
}

func applyWorkspaceCreated(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.WorkspaceWasCreated) error {
	return tx.PutWorkspace(ctx, storage.WorkspaceRecord{
		Name:                   p.WorkspaceName,
		BaseName:               p.BaseWorkspaceName,
		Title:                  p.Title,
		Description:            p.Description,
		Owner:                  p.WorkspaceOwner,
		CurrentContentStreamID: p.NewContentStreamID,
		Status:                 storage.WorkspaceUpToDate,
		Version:                evt.StreamVersion,
		UpdatedAt:              evt.Timestamp,
	})
}

func applyRebaseFailed(ctx context.Context, tx storage.ProjectionTx, evt event.Event, p event.WorkspaceRebaseFailed) error {
	record, err := tx.GetWorkspace(ctx, p.WorkspaceName)
	if err != nil {
		return fmt.Errorf("workspace %s: %w", p.WorkspaceName, err)
	}
	record.LastFailureJSON = append([]byte(nil), evt.PayloadJSON...)
	record.Version = evt.StreamVersion
	record.UpdatedAt = evt.Timestamp
	return tx.PutWorkspace(ctx, record)
}

// switchStream points a workspace at a stream forked from its base's head.
func switchStream(ctx context.Context, tx storage.ProjectionTx, evt event.Event, name ids.WorkspaceName, cs ids.ContentStreamID) error {
	record, err := tx.GetWorkspace(ctx, name)
	if err != nil {
		return fmt.Errorf("workspace %s: %w", name, err)
	}
	record.CurrentContentStreamID = cs
	record.Status = storage.WorkspaceUpToDate
	record.LastFailureJSON = nil
	record.Version = evt.StreamVersion
	record.UpdatedAt = evt.Timestamp
	return tx.PutWorkspace(ctx, record)
}

func published(ctx context.Context, tx storage.ProjectionTx, evt event.Event, source, target ids.WorkspaceName, cs ids.ContentStreamID) error {
	if err := switchStream(ctx, tx, evt, source, cs); err != nil {
		return err
	}
	return tx.MarkDependentsOutdated(ctx, target, source, evt.Timestamp)
}
