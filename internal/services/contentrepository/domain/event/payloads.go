package event

import (
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

const (
	TypeContentStreamWasCreated Type = "ContentStreamWasCreated"
	TypeContentStreamWasForked  Type = "ContentStreamWasForked"
	TypeContentStreamWasClosed  Type = "ContentStreamWasClosed"

	TypeRootNodeAggregateWithNodeWasCreated Type = "RootNodeAggregateWithNodeWasCreated"
	TypeNodeAggregateWithNodeWasCreated     Type = "NodeAggregateWithNodeWasCreated"
	TypeNodeVariantWasCreated               Type = "NodeVariantWasCreated"
	TypeNodePropertiesWereSet               Type = "NodePropertiesWereSet"
	TypeNodeReferencesWereSet               Type = "NodeReferencesWereSet"
	TypeNodeAggregateWasDisabled            Type = "NodeAggregateWasDisabled"
	TypeNodeAggregateWasEnabled             Type = "NodeAggregateWasEnabled"
	TypeNodeAggregateWasRemoved             Type = "NodeAggregateWasRemoved"
	TypeDimensionSpacePointWasMoved         Type = "DimensionSpacePointWasMoved"

	TypeRootWorkspaceWasCreated        Type = "RootWorkspaceWasCreated"
	TypeWorkspaceWasCreated            Type = "WorkspaceWasCreated"
	TypeWorkspaceWasRebased            Type = "WorkspaceWasRebased"
	TypeWorkspaceRebaseFailed          Type = "WorkspaceRebaseFailed"
	TypeWorkspaceWasPublished          Type = "WorkspaceWasPublished"
	TypeWorkspaceWasPartiallyPublished Type = "WorkspaceWasPartiallyPublished"
	TypeWorkspaceWasDiscarded          Type = "WorkspaceWasDiscarded"
	TypeWorkspaceWasPartiallyDiscarded Type = "WorkspaceWasPartiallyDiscarded"
)

// ErrPayloadInconsistent indicates a payload that decodes but breaks a
// structural rule of its event type.
var ErrPayloadInconsistent = errors.New("event payload is inconsistent")

// ContentStreamScoped is implemented by payloads stored on a content stream.
type ContentStreamScoped interface {
	ContentStream() ids.ContentStreamID
}

// WorkspaceScoped is implemented by payloads stored on a workspace stream.
type WorkspaceScoped interface {
	Workspace() ids.WorkspaceName
}

// ContentStreamWasCreated starts an empty content stream.
type ContentStreamWasCreated struct {
	ContentStreamID ids.ContentStreamID `json:"contentStreamId" validate:"required"`
}

func (p ContentStreamWasCreated) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

// ContentStreamWasForked starts a stream as a copy of its source at a
// recorded version.
type ContentStreamWasForked struct {
	ContentStreamID              ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	SourceContentStreamID        ids.ContentStreamID `json:"sourceContentStreamId" validate:"required"`
	VersionOfSourceContentStream uint64              `json:"versionOfSourceContentStream"`
}

func (p ContentStreamWasForked) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p ContentStreamWasForked) Validate() error {
	if p.ContentStreamID == p.SourceContentStreamID {
		return fmt.Errorf("%w: stream cannot fork itself", ErrPayloadInconsistent)
	}
	return nil
}

// ContentStreamWasClosed marks a stream read-only.
type ContentStreamWasClosed struct {
	ContentStreamID ids.ContentStreamID `json:"contentStreamId" validate:"required"`
}

func (p ContentStreamWasClosed) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

// RootNodeAggregateWithNodeWasCreated creates a root aggregate covering the
// whole dimension space from the empty origin.
type RootNodeAggregateWithNodeWasCreated struct {
	ContentStreamID             ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	NodeAggregateID             ids.NodeAggregateID `json:"nodeAggregateId" validate:"required"`
	NodeTypeName                ids.NodeTypeName    `json:"nodeTypeName" validate:"required"`
	CoveredDimensionSpacePoints dimension.PointSet  `json:"coveredDimensionSpacePoints"`
	NodeAggregateClassification node.Classification `json:"nodeAggregateClassification" validate:"required"`
}

func (p RootNodeAggregateWithNodeWasCreated) ContentStream() ids.ContentStreamID {
	return p.ContentStreamID
}

func (p RootNodeAggregateWithNodeWasCreated) Validate() error {
	if !p.NodeAggregateClassification.IsRoot() {
		return fmt.Errorf("%w: root aggregate must be classified root", ErrPayloadInconsistent)
	}
	if p.CoveredDimensionSpacePoints.IsEmpty() {
		return fmt.Errorf("%w: root aggregate must cover at least one point", ErrPayloadInconsistent)
	}
	return p.NodeAggregateID.Validate()
}

// NodeAggregateWithNodeWasCreated creates an aggregate with its first variant.
type NodeAggregateWithNodeWasCreated struct {
	ContentStreamID             ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	NodeAggregateID             ids.NodeAggregateID   `json:"nodeAggregateId" validate:"required"`
	NodeTypeName                ids.NodeTypeName      `json:"nodeTypeName" validate:"required"`
	OriginDimensionSpacePoint   dimension.OriginPoint `json:"originDimensionSpacePoint"`
	CoveredDimensionSpacePoints dimension.PointSet    `json:"coveredDimensionSpacePoints"`
	ParentNodeAggregateID       ids.NodeAggregateID   `json:"parentNodeAggregateId" validate:"required"`
	NodeName                    ids.NodeName          `json:"nodeName,omitempty"`
	InitialPropertyValues       node.PropertyValues   `json:"initialPropertyValues,omitempty"`
	NodeAggregateClassification node.Classification   `json:"nodeAggregateClassification" validate:"required"`
}

func (p NodeAggregateWithNodeWasCreated) ContentStream() ids.ContentStreamID {
	return p.ContentStreamID
}

func (p NodeAggregateWithNodeWasCreated) Validate() error {
	if p.NodeAggregateClassification.IsRoot() {
		return fmt.Errorf("%w: child aggregate cannot be classified root", ErrPayloadInconsistent)
	}
	if p.NodeAggregateClassification.IsTethered() && p.NodeName == "" {
		return node.ErrTetheredNodeNameRequired
	}
	if !p.CoveredDimensionSpacePoints.Contains(p.OriginDimensionSpacePoint.ToPoint()) {
		return fmt.Errorf("%w: covered points must include the origin", ErrPayloadInconsistent)
	}
	if p.NodeAggregateID == p.ParentNodeAggregateID {
		return fmt.Errorf("%w: aggregate cannot be its own parent", ErrPayloadInconsistent)
	}
	return p.NodeAggregateID.Validate()
}

// NodeVariantWasCreated adds a variant at TargetOrigin, copied from the
// variant at SourceOrigin. CoveredDimensionSpacePoints are the points that
// now resolve to the new variant.
type NodeVariantWasCreated struct {
	ContentStreamID             ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	NodeAggregateID             ids.NodeAggregateID   `json:"nodeAggregateId" validate:"required"`
	SourceOrigin                dimension.OriginPoint `json:"sourceOrigin"`
	TargetOrigin                dimension.OriginPoint `json:"targetOrigin"`
	CoveredDimensionSpacePoints dimension.PointSet    `json:"coveredDimensionSpacePoints"`
}

func (p NodeVariantWasCreated) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p NodeVariantWasCreated) Validate() error {
	if p.SourceOrigin == p.TargetOrigin {
		return fmt.Errorf("%w: variant target equals source", ErrPayloadInconsistent)
	}
	if !p.CoveredDimensionSpacePoints.Contains(p.TargetOrigin.ToPoint()) {
		return fmt.Errorf("%w: covered points must include the target origin", ErrPayloadInconsistent)
	}
	return nil
}

// NodePropertiesWereSet replaces property values of one variant.
type NodePropertiesWereSet struct {
	ContentStreamID           ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	NodeAggregateID           ids.NodeAggregateID   `json:"nodeAggregateId" validate:"required"`
	OriginDimensionSpacePoint dimension.OriginPoint `json:"originDimensionSpacePoint"`
	PropertyValues            node.PropertyValues   `json:"propertyValues"`
}

func (p NodePropertiesWereSet) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

// NodeReferencesWereSet replaces one named reference list of one variant.
type NodeReferencesWereSet struct {
	ContentStreamID                 ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	SourceNodeAggregateID           ids.NodeAggregateID   `json:"sourceNodeAggregateId" validate:"required"`
	SourceOriginDimensionSpacePoint dimension.OriginPoint `json:"sourceOriginDimensionSpacePoint"`
	ReferenceName                   ids.ReferenceName     `json:"referenceName" validate:"required"`
	References                      node.References       `json:"references"`
}

func (p NodeReferencesWereSet) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p NodeReferencesWereSet) Validate() error {
	return p.References.Validate()
}

// NodeAggregateWasDisabled hides an aggregate and its descendants at the
// affected points.
type NodeAggregateWasDisabled struct {
	ContentStreamID              ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	NodeAggregateID              ids.NodeAggregateID `json:"nodeAggregateId" validate:"required"`
	AffectedDimensionSpacePoints dimension.PointSet  `json:"affectedDimensionSpacePoints"`
}

func (p NodeAggregateWasDisabled) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p NodeAggregateWasDisabled) Validate() error {
	if p.AffectedDimensionSpacePoints.IsEmpty() {
		return fmt.Errorf("%w: no affected points", ErrPayloadInconsistent)
	}
	return nil
}

// NodeAggregateWasEnabled lifts a disable at the affected points.
type NodeAggregateWasEnabled struct {
	ContentStreamID              ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	NodeAggregateID              ids.NodeAggregateID `json:"nodeAggregateId" validate:"required"`
	AffectedDimensionSpacePoints dimension.PointSet  `json:"affectedDimensionSpacePoints"`
}

func (p NodeAggregateWasEnabled) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p NodeAggregateWasEnabled) Validate() error {
	if p.AffectedDimensionSpacePoints.IsEmpty() {
		return fmt.Errorf("%w: no affected points", ErrPayloadInconsistent)
	}
	return nil
}

// NodeAggregateWasRemoved removes coverage of an aggregate and its
// descendants. Variants whose origin is in the occupied set are dropped.
type NodeAggregateWasRemoved struct {
	ContentStreamID                      ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	NodeAggregateID                      ids.NodeAggregateID `json:"nodeAggregateId" validate:"required"`
	AffectedOccupiedDimensionSpacePoints dimension.PointSet  `json:"affectedOccupiedDimensionSpacePoints"`
	AffectedCoveredDimensionSpacePoints  dimension.PointSet  `json:"affectedCoveredDimensionSpacePoints"`
}

func (p NodeAggregateWasRemoved) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p NodeAggregateWasRemoved) Validate() error {
	if p.AffectedCoveredDimensionSpacePoints.IsEmpty() {
		return fmt.Errorf("%w: no affected points", ErrPayloadInconsistent)
	}
	return nil
}

// DimensionSpacePointWasMoved renames a point across the whole stream.
type DimensionSpacePointWasMoved struct {
	ContentStreamID ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	Source          dimension.Point     `json:"source"`
	Target          dimension.Point     `json:"target"`
}

func (p DimensionSpacePointWasMoved) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p DimensionSpacePointWasMoved) Validate() error {
	if p.Source == p.Target {
		return fmt.Errorf("%w: move target equals source", ErrPayloadInconsistent)
	}
	return nil
}

// RootWorkspaceWasCreated registers a workspace without a base.
type RootWorkspaceWasCreated struct {
	WorkspaceName      ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NewContentStreamID ids.ContentStreamID `json:"newContentStreamId" validate:"required"`
	Title              string              `json:"title,omitempty"`
	Description        string              `json:"description,omitempty"`
}

func (p RootWorkspaceWasCreated) Workspace() ids.WorkspaceName { return p.WorkspaceName }

// WorkspaceWasCreated registers a workspace on top of a base workspace.
type WorkspaceWasCreated struct {
	WorkspaceName      ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	BaseWorkspaceName  ids.WorkspaceName   `json:"baseWorkspaceName" validate:"required"`
	NewContentStreamID ids.ContentStreamID `json:"newContentStreamId" validate:"required"`
	Title              string              `json:"title,omitempty"`
	Description        string              `json:"description,omitempty"`
	WorkspaceOwner     ids.UserID          `json:"workspaceOwner,omitempty"`
}

func (p WorkspaceWasCreated) Workspace() ids.WorkspaceName { return p.WorkspaceName }

func (p WorkspaceWasCreated) Validate() error {
	if p.WorkspaceName == p.BaseWorkspaceName {
		return fmt.Errorf("%w: workspace cannot be its own base", ErrPayloadInconsistent)
	}
	return nil
}

// WorkspaceWasRebased switches a workspace onto a rebased content stream.
type WorkspaceWasRebased struct {
	WorkspaceName           ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NewContentStreamID      ids.ContentStreamID `json:"newContentStreamId" validate:"required"`
	PreviousContentStreamID ids.ContentStreamID `json:"previousContentStreamId" validate:"required"`
}

func (p WorkspaceWasRebased) Workspace() ids.WorkspaceName { return p.WorkspaceName }

// RebaseError describes one command that failed to replay during a rebase.
type RebaseError struct {
	CommandIndex    int                 `json:"commandIndex"`
	CommandType     string              `json:"commandType"`
	NodeAggregateID ids.NodeAggregateID `json:"nodeAggregateId,omitempty"`
	Reason          string              `json:"reason"`
	Message         string              `json:"message"`
}

// WorkspaceRebaseFailed records a rebase that left the workspace unchanged.
// The candidate stream stays addressable for inspection.
type WorkspaceRebaseFailed struct {
	WorkspaceName            ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	CandidateContentStreamID ids.ContentStreamID `json:"candidateContentStreamId" validate:"required"`
	SourceContentStreamID    ids.ContentStreamID `json:"sourceContentStreamId" validate:"required"`
	InitiatingUserID         ids.UserID          `json:"initiatingUserId,omitempty"`
	Errors                   []RebaseError       `json:"errors"`
}

func (p WorkspaceRebaseFailed) Workspace() ids.WorkspaceName { return p.WorkspaceName }

func (p WorkspaceRebaseFailed) Validate() error {
	if len(p.Errors) == 0 {
		return fmt.Errorf("%w: rebase failure without errors", ErrPayloadInconsistent)
	}
	return nil
}

// WorkspaceWasPublished records that all changes reached the base workspace.
type WorkspaceWasPublished struct {
	SourceWorkspaceName           ids.WorkspaceName   `json:"sourceWorkspaceName" validate:"required"`
	TargetWorkspaceName           ids.WorkspaceName   `json:"targetWorkspaceName" validate:"required"`
	NewSourceContentStreamID      ids.ContentStreamID `json:"newSourceContentStreamId" validate:"required"`
	PreviousSourceContentStreamID ids.ContentStreamID `json:"previousSourceContentStreamId" validate:"required"`
}

func (p WorkspaceWasPublished) Workspace() ids.WorkspaceName { return p.SourceWorkspaceName }

// WorkspaceWasPartiallyPublished records a selective publish.
type WorkspaceWasPartiallyPublished struct {
	SourceWorkspaceName           ids.WorkspaceName   `json:"sourceWorkspaceName" validate:"required"`
	TargetWorkspaceName           ids.WorkspaceName   `json:"targetWorkspaceName" validate:"required"`
	NewSourceContentStreamID      ids.ContentStreamID `json:"newSourceContentStreamId" validate:"required"`
	PreviousSourceContentStreamID ids.ContentStreamID `json:"previousSourceContentStreamId" validate:"required"`
	PublishedNodes                node.Addresses      `json:"publishedNodes"`
}

func (p WorkspaceWasPartiallyPublished) Workspace() ids.WorkspaceName {
	return p.SourceWorkspaceName
}

// WorkspaceWasDiscarded records that all changes were dropped.
type WorkspaceWasDiscarded struct {
	WorkspaceName           ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NewContentStreamID      ids.ContentStreamID `json:"newContentStreamId" validate:"required"`
	PreviousContentStreamID ids.ContentStreamID `json:"previousContentStreamId" validate:"required"`
}

func (p WorkspaceWasDiscarded) Workspace() ids.WorkspaceName { return p.WorkspaceName }

// WorkspaceWasPartiallyDiscarded records a selective discard.
type WorkspaceWasPartiallyDiscarded struct {
	WorkspaceName           ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NewContentStreamID      ids.ContentStreamID `json:"newContentStreamId" validate:"required"`
	PreviousContentStreamID ids.ContentStreamID `json:"previousContentStreamId" validate:"required"`
	DiscardedNodes          node.Addresses      `json:"discardedNodes"`
}

func (p WorkspaceWasPartiallyDiscarded) Workspace() ids.WorkspaceName { return p.WorkspaceName }
