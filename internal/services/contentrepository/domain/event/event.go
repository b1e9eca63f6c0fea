package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/core/encoding"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

// Type identifies an event variant.
type Type string

// StreamName addresses one append-only stream in the event store.
type StreamName string

const (
	contentStreamPrefix = "contentstream:"
	workspacePrefix     = "workspace:"
)

// ContentStreamStream names the stream holding a content stream's events.
func ContentStreamStream(id ids.ContentStreamID) StreamName {
	return StreamName(contentStreamPrefix + string(id))
}

// WorkspaceStream names the stream holding a workspace's events.
func WorkspaceStream(name ids.WorkspaceName) StreamName {
	return StreamName(workspacePrefix + string(name))
}

// ContentStreamID extracts the content stream id from a stream name.
func (s StreamName) ContentStreamID() (ids.ContentStreamID, bool) {
	rest, ok := strings.CutPrefix(string(s), contentStreamPrefix)
	return ids.ContentStreamID(rest), ok && rest != ""
}

// WorkspaceName extracts the workspace name from a stream name.
func (s StreamName) WorkspaceName() (ids.WorkspaceName, bool) {
	rest, ok := strings.CutPrefix(string(s), workspacePrefix)
	return ids.WorkspaceName(rest), ok && rest != ""
}

// Metadata travels with an event but is not part of the fact itself.
//
// The first event of every command batch carries the command, so the
// workspace engine can reconstruct and replay a stream's commands.
type Metadata struct {
	InitiatingUserID ids.UserID      `json:"initiatingUserId,omitempty"`
	CommandType      string          `json:"commandType,omitempty"`
	CommandPayload   json.RawMessage `json:"commandPayload,omitempty"`
	CorrelationID    string          `json:"correlationId,omitempty"`
}

// HasCommand reports whether the event heads a command batch.
func (m Metadata) HasCommand() bool {
	return m.CommandType != ""
}

// Event is the stored event envelope.
type Event struct {
	ID            string
	Seq           uint64 // global position across all streams
	StreamName    StreamName
	StreamVersion uint64 // 1-based position within StreamName
	Type          Type
	Timestamp     time.Time
	PayloadJSON   []byte
	Metadata      Metadata

	Hash           string
	PrevHash       string
	ChainHash      string
	Signature      string
	SignatureKeyID string
}

// New builds an unsaved event from a typed payload.
func New(stream StreamName, eventType Type, payload any, now time.Time) (Event, error) {
	data, err := encoding.CanonicalJSON(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		StreamName:  stream,
		Type:        eventType,
		Timestamp:   now.UTC(),
		PayloadJSON: data,
	}, nil
}

// Unsaved returns a copy with store-assigned fields cleared.
func (e Event) Unsaved() Event {
	e.ID = ""
	e.Seq = 0
	e.StreamVersion = 0
	e.Hash = ""
	e.PrevHash = ""
	e.ChainHash = ""
	e.Signature = ""
	e.SignatureKeyID = ""
	return e
}

// DecodePayload unmarshals the payload into target.
func (e Event) DecodePayload(target any) error {
	if err := json.Unmarshal(e.PayloadJSON, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Retarget rewrites a content stream event so it belongs to another stream.
// Store-assigned fields are cleared.
func Retarget(e Event, target ids.ContentStreamID) (Event, error) {
	if _, ok := e.StreamName.ContentStreamID(); !ok {
		return Event{}, fmt.Errorf("event %s on %s is not content stream scoped", e.Type, e.StreamName)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.PayloadJSON, &fields); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	encoded, err := json.Marshal(target)
	if err != nil {
		return Event{}, err
	}
	fields["contentStreamId"] = encoded
	data, err := encoding.CanonicalJSON(fields)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	out := e.Unsaved()
	out.StreamName = ContentStreamStream(target)
	out.PayloadJSON = data
	return out, nil
}
