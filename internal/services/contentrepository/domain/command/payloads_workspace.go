package command

import (
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

const (
	TypeCreateRootWorkspace                 Type = "CreateRootWorkspace"
	TypeCreateWorkspace                     Type = "CreateWorkspace"
	TypeRebaseWorkspace                     Type = "RebaseWorkspace"
	TypePublishWorkspace                    Type = "PublishWorkspace"
	TypePublishIndividualNodesFromWorkspace Type = "PublishIndividualNodesFromWorkspace"
	TypeDiscardWorkspace                    Type = "DiscardWorkspace"
	TypeDiscardIndividualNodesFromWorkspace Type = "DiscardIndividualNodesFromWorkspace"
)

// IsWorkspaceCommand reports whether the workspace engine handles cmdType.
func IsWorkspaceCommand(cmdType Type) bool {
	switch cmdType {
	case TypeCreateRootWorkspace, TypeCreateWorkspace, TypeRebaseWorkspace,
		TypePublishWorkspace, TypePublishIndividualNodesFromWorkspace,
		TypeDiscardWorkspace, TypeDiscardIndividualNodesFromWorkspace:
		return true
	}
	return false
}

// CreateRootWorkspace creates a workspace without a base, backed by a new
// empty content stream.
type CreateRootWorkspace struct {
	WorkspaceName      ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NewContentStreamID ids.ContentStreamID `json:"newContentStreamId,omitempty"`
	Title              string              `json:"title,omitempty"`
	Description        string              `json:"description,omitempty"`
}

func (CreateRootWorkspace) CommandType() Type              { return TypeCreateRootWorkspace }
func (p CreateRootWorkspace) Workspace() ids.WorkspaceName { return p.WorkspaceName }
func (p CreateRootWorkspace) Validate() error              { return p.WorkspaceName.Validate() }

// CreateWorkspace creates a workspace on a fork of its base's stream.
type CreateWorkspace struct {
	WorkspaceName      ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	BaseWorkspaceName  ids.WorkspaceName   `json:"baseWorkspaceName" validate:"required"`
	NewContentStreamID ids.ContentStreamID `json:"newContentStreamId,omitempty"`
	Title              string              `json:"title,omitempty"`
	Description        string              `json:"description,omitempty"`
	WorkspaceOwner     ids.UserID          `json:"workspaceOwner,omitempty"`
}

func (CreateWorkspace) CommandType() Type              { return TypeCreateWorkspace }
func (p CreateWorkspace) Workspace() ids.WorkspaceName { return p.WorkspaceName }

func (p CreateWorkspace) Validate() error {
	if err := p.WorkspaceName.Validate(); err != nil {
		return err
	}
	if p.WorkspaceName == p.BaseWorkspaceName {
		return fmt.Errorf("workspace %s cannot be its own base", p.WorkspaceName)
	}
	return nil
}

// RebaseWorkspace replays a workspace's commands on top of its base.
type RebaseWorkspace struct {
	WorkspaceName          ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	RebasedContentStreamID ids.ContentStreamID `json:"rebasedContentStreamId,omitempty"`
}

func (RebaseWorkspace) CommandType() Type              { return TypeRebaseWorkspace }
func (p RebaseWorkspace) Workspace() ids.WorkspaceName { return p.WorkspaceName }

// PublishWorkspace copies every change of a workspace onto its base.
type PublishWorkspace struct {
	WorkspaceName      ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NewContentStreamID ids.ContentStreamID `json:"newContentStreamId,omitempty"`
}

func (PublishWorkspace) CommandType() Type              { return TypePublishWorkspace }
func (p PublishWorkspace) Workspace() ids.WorkspaceName { return p.WorkspaceName }

// PublishIndividualNodesFromWorkspace publishes the changes of the selected
// variants and keeps the rest in the workspace.
type PublishIndividualNodesFromWorkspace struct {
	WorkspaceName                   ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NodesToPublish                  node.Addresses      `json:"nodesToPublish" validate:"required"`
	ContentStreamIDForMatchingPart  ids.ContentStreamID `json:"contentStreamIdForMatchingPart,omitempty"`
	ContentStreamIDForRemainingPart ids.ContentStreamID `json:"contentStreamIdForRemainingPart,omitempty"`
}

func (PublishIndividualNodesFromWorkspace) CommandType() Type {
	return TypePublishIndividualNodesFromWorkspace
}

func (p PublishIndividualNodesFromWorkspace) Workspace() ids.WorkspaceName {
	return p.WorkspaceName
}

// DiscardWorkspace drops every change of a workspace.
type DiscardWorkspace struct {
	WorkspaceName      ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NewContentStreamID ids.ContentStreamID `json:"newContentStreamId,omitempty"`
}

func (DiscardWorkspace) CommandType() Type              { return TypeDiscardWorkspace }
func (p DiscardWorkspace) Workspace() ids.WorkspaceName { return p.WorkspaceName }

// DiscardIndividualNodesFromWorkspace drops the changes of the selected
// variants and keeps the rest.
type DiscardIndividualNodesFromWorkspace struct {
	WorkspaceName      ids.WorkspaceName   `json:"workspaceName" validate:"required"`
	NodesToDiscard     node.Addresses      `json:"nodesToDiscard" validate:"required"`
	NewContentStreamID ids.ContentStreamID `json:"newContentStreamId,omitempty"`
}

func (DiscardIndividualNodesFromWorkspace) CommandType() Type {
	return TypeDiscardIndividualNodesFromWorkspace
}

func (p DiscardIndividualNodesFromWorkspace) Workspace() ids.WorkspaceName {
	return p.WorkspaceName
}
