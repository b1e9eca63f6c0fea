package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

// ErrNotFound indicates a requested projection record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ContentStreamState is the lifecycle state of a content stream.
type ContentStreamState string

const (
	ContentStreamCreated ContentStreamState = "created"
	ContentStreamForked  ContentStreamState = "forked"
	ContentStreamClosed  ContentStreamState = "closed"
)

// ContentStreamRecord is the projected lifecycle of a content stream.
type ContentStreamRecord struct {
	ID            ids.ContentStreamID
	SourceID      ids.ContentStreamID
	SourceVersion uint64
	// Version counts the events of the stream, so it equals the event store
	// stream version once the projection caught up.
	Version   uint64
	State     ContentStreamState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsClosed reports whether the stream accepts no further commands.
func (r ContentStreamRecord) IsClosed() bool {
	return r.State == ContentStreamClosed
}

// Reference is one resolved outgoing reference.
type Reference struct {
	Name       ids.ReferenceName
	Target     node.Node
	Properties node.PropertyValues
}

// ContentGraphReader answers structural queries against the graph projection.
type ContentGraphReader interface {
	ContentStream(ctx context.Context, cs ids.ContentStreamID) (ContentStreamRecord, error)
	FindNodeAggregate(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID) (node.Aggregate, error)
	// FindNode resolves the variant visible at point.
	FindNode(ctx context.Context, cs ids.ContentStreamID, point dimension.Point, aggregate ids.NodeAggregateID, visibility node.Visibility) (node.Node, error)
	// FindChildNodeAggregatesByName returns child aggregates of parent named
	// name, at any point.
	FindChildNodeAggregatesByName(ctx context.Context, cs ids.ContentStreamID, parent ids.NodeAggregateID, name ids.NodeName) ([]node.Aggregate, error)
	FindTetheredChildNodeAggregates(ctx context.Context, cs ids.ContentStreamID, parent ids.NodeAggregateID) ([]node.Aggregate, error)
	FindChildNodes(ctx context.Context, cs ids.ContentStreamID, point dimension.Point, parent ids.NodeAggregateID, visibility node.Visibility) ([]node.Node, error)
	FindRootNodeAggregateByType(ctx context.Context, cs ids.ContentStreamID, nodeType ids.NodeTypeName) (node.Aggregate, error)
	FindReferences(ctx context.Context, cs ids.ContentStreamID, point dimension.Point, source ids.NodeAggregateID, visibility node.Visibility) ([]Reference, error)
	// IsPointUsed reports whether any variant is authored at or covers point.
	IsPointUsed(ctx context.Context, cs ids.ContentStreamID, point dimension.Point) (bool, error)
}

// HiddenStateReader answers whether a node is hidden at a point.
type HiddenStateReader interface {
	IsHidden(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, point dimension.Point) (bool, error)
}

// WorkspaceStatus tells whether a workspace is behind its base.
type WorkspaceStatus string

const (
	WorkspaceUpToDate WorkspaceStatus = "up_to_date"
	WorkspaceOutdated WorkspaceStatus = "outdated"
)

// WorkspaceRecord is the projected state of a workspace.
type WorkspaceRecord struct {
	Name                   ids.WorkspaceName
	BaseName               ids.WorkspaceName
	Title                  string
	Description            string
	Owner                  ids.UserID
	CurrentContentStreamID ids.ContentStreamID
	Status                 WorkspaceStatus
	// Version counts the events of the workspace stream.
	Version         uint64
	LastFailureJSON []byte
	UpdatedAt       time.Time
}

// IsRoot reports whether the workspace has no base.
func (r WorkspaceRecord) IsRoot() bool {
	return r.BaseName == ""
}

// WorkspaceReader answers workspace lookups.
type WorkspaceReader interface {
	GetWorkspace(ctx context.Context, name ids.WorkspaceName) (WorkspaceRecord, error)
	ListWorkspaces(ctx context.Context) ([]WorkspaceRecord, error)
	ListDependentWorkspaces(ctx context.Context, base ids.WorkspaceName) ([]WorkspaceRecord, error)
}

// Projection names used for checkpoints and resets.
const (
	ProjectionContentGraph = "contentgraph"
	ProjectionHiddenState  = "hiddenstate"
	ProjectionWorkspace    = "workspace"
)

// NodeVariantRecord is one authored variant of an aggregate.
type NodeVariantRecord struct {
	ContentStreamID ids.ContentStreamID
	AggregateID     ids.NodeAggregateID
	Origin          dimension.OriginPoint
	NodeType        ids.NodeTypeName
	Classification  node.Classification
	Name            ids.NodeName
	Properties      node.PropertyValues
	CreatedAt       time.Time
	LastModifiedAt  time.Time
}

// ContentGraphWriter mutates the graph tables. Implementations run inside
// the projection transaction.
type ContentGraphWriter interface {
	GetContentStream(ctx context.Context, cs ids.ContentStreamID) (ContentStreamRecord, error)
	PutContentStream(ctx context.Context, record ContentStreamRecord) error
	// CopyContentStream duplicates every graph row of source under target.
	CopyContentStream(ctx context.Context, source, target ids.ContentStreamID) error
	InsertNodeVariant(ctx context.Context, record NodeVariantRecord) error
	// CopyNodeVariant duplicates the variant at source, with its references,
	// as a new variant at target.
	CopyNodeVariant(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, source, target dimension.OriginPoint, at time.Time) error
	// AssignCoverage makes the variant at origin visible at points under
	// parent, replacing any previous assignment of those points.
	AssignCoverage(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, origin dimension.OriginPoint, parent ids.NodeAggregateID, points dimension.PointSet) error
	// ParentOf returns the parent of the variant at origin.
	ParentOf(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, origin dimension.OriginPoint) (ids.NodeAggregateID, error)
	// InheritRestrictions copies the restrictions of parent onto child at points.
	InheritRestrictions(ctx context.Context, cs ids.ContentStreamID, parent, child ids.NodeAggregateID, points dimension.PointSet) error
	MergeNodeProperties(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, origin dimension.OriginPoint, values node.PropertyValues, at time.Time) error
	ReplaceReferences(ctx context.Context, cs ids.ContentStreamID, source ids.NodeAggregateID, origin dimension.OriginPoint, name ids.ReferenceName, references node.References, at time.Time) error
	// AddRestrictions disables aggregate and its descendants at points.
	AddRestrictions(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error
	// RemoveRestrictions lifts what AddRestrictions for aggregate recorded.
	RemoveRestrictions(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error
	// RemoveCoverage drops aggregate and its descendants at covered and the
	// variants authored at occupied, then prunes rows that cover nothing.
	RemoveCoverage(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, covered, occupied dimension.PointSet) error
	MovePoint(ctx context.Context, cs ids.ContentStreamID, source, target dimension.Point) error
}

// HiddenStateWriter mutates the hidden state table.
type HiddenStateWriter interface {
	CopyHiddenState(ctx context.Context, source, target ids.ContentStreamID) error
	MarkHidden(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error
	ClearHidden(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error
	MoveHiddenStatePoint(ctx context.Context, cs ids.ContentStreamID, source, target dimension.Point) error
}

// WorkspaceWriter mutates the workspace table.
type WorkspaceWriter interface {
	GetWorkspace(ctx context.Context, name ids.WorkspaceName) (WorkspaceRecord, error)
	PutWorkspace(ctx context.Context, record WorkspaceRecord) error
	// MarkDependentsOutdated flags every workspace based on base, except
	// the one named in except.
	MarkDependentsOutdated(ctx context.Context, base, except ids.WorkspaceName, at time.Time) error
}

// ProjectionTx is the write surface handed to one projection apply.
type ProjectionTx interface {
	ContentGraphWriter
	HiddenStateWriter
	WorkspaceWriter
}

// ProjectionStore persists projection state together with its checkpoints.
type ProjectionStore interface {
	// ApplyExactlyOnce runs fn and advances the checkpoint of projection to
	// seq in one transaction. It reports false without calling fn when seq
	// is at or below the checkpoint.
	ApplyExactlyOnce(ctx context.Context, projection string, seq uint64, fn func(context.Context, ProjectionTx) error) (bool, error)
	Checkpoint(ctx context.Context, projection string) (uint64, error)
	SetCheckpoint(ctx context.Context, projection string, seq uint64) error
	// ResetProjection truncates the tables of projection and its checkpoint.
	ResetProjection(ctx context.Context, projection string) error
}
