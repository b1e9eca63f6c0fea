package command

import (
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/core/encoding"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

// Type identifies the command type string.
type Type string

// Command captures the canonical command envelope.
type Command struct {
	Type             Type
	InitiatingUserID ids.UserID
	RequestID        string
	PayloadJSON      []byte
	// ExpectedVersion pins the target stream version instead of the version
	// read from the projection.
	ExpectedVersion *uint64
}

// Payload is a typed command payload.
type Payload interface {
	CommandType() Type
}

// StreamCommand is a payload that targets one content stream.
type StreamCommand interface {
	Payload
	ContentStream() ids.ContentStreamID
}

// Rebasable is a content stream command that a workspace can replay onto
// another content stream.
type Rebasable interface {
	StreamCommand
	CopyForContentStream(target ids.ContentStreamID) Rebasable
	// MatchesNodeID reports whether the command changes the addressed variant.
	MatchesNodeID(address node.Address) bool
}

// AggregateAddressing is implemented by commands aimed at one aggregate.
type AggregateAddressing interface {
	NodeAggregate() ids.NodeAggregateID
}

// WorkspaceCommand is a payload handled by the workspace engine.
type WorkspaceCommand interface {
	Payload
	Workspace() ids.WorkspaceName
}

// New encodes a typed payload into a command envelope.
func New(payload Payload, user ids.UserID) (Command, error) {
	data, err := encoding.CanonicalJSON(payload)
	if err != nil {
		return Command{}, fmt.Errorf("encode %s payload: %w", payload.CommandType(), err)
	}
	return Command{
		Type:             payload.CommandType(),
		InitiatingUserID: user,
		PayloadJSON:      data,
	}, nil
}

// FromMap builds a command from its plain key-value form, as found in event
// metadata or in tooling input.
func FromMap(cmdType Type, values map[string]any) (Command, error) {
	if values == nil {
		values = map[string]any{}
	}
	data, err := encoding.CanonicalJSON(values)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return Command{Type: cmdType, PayloadJSON: data}, nil
}
