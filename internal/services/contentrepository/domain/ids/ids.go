// Package ids defines the validated identifier types of the content repository.
//
// Identifiers are plain string newtypes compared by value.
package ids

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const maxIdentifierLength = 255

var (
	// ErrContentStreamIDInvalid indicates an empty or oversized content stream id.
	ErrContentStreamIDInvalid = errors.New("content stream id is invalid")
	// ErrNodeAggregateIDInvalid indicates a node aggregate id outside [a-z0-9-]{1,255}.
	ErrNodeAggregateIDInvalid = errors.New("node aggregate id is invalid")
	// ErrWorkspaceNameInvalid indicates a workspace name outside [a-z0-9-]{1,255}.
	ErrWorkspaceNameInvalid = errors.New("workspace name is invalid")
	// ErrNodeNameInvalid indicates an empty or malformed node name.
	ErrNodeNameInvalid = errors.New("node name is invalid")
	// ErrNodeTypeNameInvalid indicates an empty node type name.
	ErrNodeTypeNameInvalid = errors.New("node type name is invalid")
	// ErrReferenceNameInvalid indicates an empty reference name.
	ErrReferenceNameInvalid = errors.New("reference name is invalid")
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9\-]{1,255}$`)
	nodeNamePattern = regexp.MustCompile(`^[a-z0-9\-_]{1,255}$`)
)

// ContentStreamID identifies one branch of event history.
type ContentStreamID string

// NodeAggregateID identifies one logical node across streams and variants.
type NodeAggregateID string

// WorkspaceName identifies a workspace.
type WorkspaceName string

// UserID identifies the user who initiated a command.
type UserID string

// NodeName is the optional name of a node below its parent.
type NodeName string

// NodeTypeName names a node type from the node type catalog.
type NodeTypeName string

// ReferenceName names a reference declared on a node type.
type ReferenceName string

// PropertyName names a property declared on a node type.
type PropertyName string

// SystemUserID is recorded when no user initiated a command.
const SystemUserID UserID = "system"

// LiveWorkspaceName is the conventional name of the root workspace.
const LiveWorkspaceName WorkspaceName = "live"

// ParseContentStreamID trims and validates a content stream id.
func ParseContentStreamID(raw string) (ContentStreamID, error) {
	value := strings.TrimSpace(raw)
	if value == "" || len(value) > maxIdentifierLength {
		return "", fmt.Errorf("%w: %q", ErrContentStreamIDInvalid, raw)
	}
	return ContentStreamID(value), nil
}

// Validate reports whether the id is usable.
func (id ContentStreamID) Validate() error {
	_, err := ParseContentStreamID(string(id))
	if err == nil && strings.TrimSpace(string(id)) != string(id) {
		return fmt.Errorf("%w: %q", ErrContentStreamIDInvalid, string(id))
	}
	return err
}

func (id ContentStreamID) String() string { return string(id) }

// ParseNodeAggregateID validates a node aggregate id.
func ParseNodeAggregateID(raw string) (NodeAggregateID, error) {
	if !slugPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrNodeAggregateIDInvalid, raw)
	}
	return NodeAggregateID(raw), nil
}

// Validate reports whether the id matches the allowed pattern.
func (id NodeAggregateID) Validate() error {
	_, err := ParseNodeAggregateID(string(id))
	return err
}

func (id NodeAggregateID) String() string { return string(id) }

// ParseWorkspaceName validates a workspace name.
func ParseWorkspaceName(raw string) (WorkspaceName, error) {
	if !slugPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrWorkspaceNameInvalid, raw)
	}
	return WorkspaceName(raw), nil
}

// Validate reports whether the name matches the allowed pattern.
func (n WorkspaceName) Validate() error {
	_, err := ParseWorkspaceName(string(n))
	return err
}

func (n WorkspaceName) String() string { return string(n) }

// ParseNodeName validates a node name. Names are lowercased.
func ParseNodeName(raw string) (NodeName, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if !nodeNamePattern.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrNodeNameInvalid, raw)
	}
	return NodeName(value), nil
}

// Validate reports whether the name is well formed. Empty names are invalid;
// callers that allow unnamed nodes check for "" first.
func (n NodeName) Validate() error {
	if !nodeNamePattern.MatchString(string(n)) {
		return fmt.Errorf("%w: %q", ErrNodeNameInvalid, string(n))
	}
	return nil
}

func (n NodeName) String() string { return string(n) }

// Validate reports whether the node type name is set.
func (n NodeTypeName) Validate() error {
	if strings.TrimSpace(string(n)) == "" {
		return ErrNodeTypeNameInvalid
	}
	return nil
}

func (n NodeTypeName) String() string { return string(n) }

// Validate reports whether the reference name is set.
func (n ReferenceName) Validate() error {
	if strings.TrimSpace(string(n)) == "" {
		return ErrReferenceNameInvalid
	}
	return nil
}

func (n ReferenceName) String() string { return string(n) }

// OrSystem returns the user id, or SystemUserID when empty.
func (u UserID) OrSystem() UserID {
	if strings.TrimSpace(string(u)) == "" {
		return SystemUserID
	}
	return u
}
