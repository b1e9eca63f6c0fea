package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/core/encoding"
)

var (
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an unregistered event type.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrStreamRequired indicates a missing stream name.
	ErrStreamRequired = errors.New("event stream name is required")
	// ErrTimestampRequired indicates a missing event timestamp.
	ErrTimestampRequired = errors.New("event timestamp is required")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
	// ErrStreamMismatch indicates the envelope stream disagrees with the
	// stream the payload belongs to.
	ErrStreamMismatch = errors.New("event stream does not match payload scope")
)

var validate = validator.New()

// Definition registers one event type with its payload shape.
type Definition struct {
	Type Type
	// NewPayload returns a pointer to a zero payload value.
	NewPayload func() any
}

// Registry is the closed set of event types the repository accepts.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// NewDefaultRegistry returns a registry holding every content repository
// event type.
func NewDefaultRegistry() (*Registry, error) {
	registry := NewRegistry()
	if err := RegisterAll(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// Register adds an event definition.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if def.NewPayload == nil {
		return fmt.Errorf("event type %s requires a payload factory", def.Type)
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// ValidateForAppend validates and normalizes an event before it is stored.
//
// The payload is canonicalized, decoded strictly into its registered shape,
// checked by struct tags and by its own Validate method, and matched against
// the envelope stream.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, errors.New("registry is required")
	}
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	if _, ok := r.definitions[evt.Type]; !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}
	evt.StreamName = StreamName(strings.TrimSpace(string(evt.StreamName)))
	if evt.StreamName == "" {
		return Event{}, ErrStreamRequired
	}
	if evt.Timestamp.IsZero() {
		return Event{}, ErrTimestampRequired
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	canonical, err := encoding.Canonicalize(evt.PayloadJSON)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	evt.PayloadJSON = canonical
	evt.Timestamp = evt.Timestamp.UTC()

	payload, err := r.Decode(evt)
	if err != nil {
		return Event{}, err
	}
	if err := checkStream(evt.StreamName, payload); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// Decode returns the typed payload of an event as a value.
func (r *Registry) Decode(evt Event) (any, error) {
	if r == nil {
		return nil, errors.New("registry is required")
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}
	target := def.NewPayload()
	decoder := json.NewDecoder(bytes.NewReader(evt.PayloadJSON))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, evt.Type, err)
	}
	if err := validate.Struct(target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, evt.Type, err)
	}
	if v, ok := target.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", evt.Type, err)
		}
	}
	return deref(target), nil
}

// Definition returns the definition for a type.
func (r *Registry) Definition(eventType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[Type(strings.TrimSpace(string(eventType)))]
	return def, ok
}

// IsRegistered reports whether the type belongs to the registry.
func (r *Registry) IsRegistered(eventType Type) bool {
	_, ok := r.Definition(eventType)
	return ok
}

// ListDefinitions returns a stable, sorted snapshot of registered definitions.
func (r *Registry) ListDefinitions() []Definition {
	if r == nil || len(r.definitions) == 0 {
		return nil
	}
	definitions := make([]Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool {
		return string(definitions[i].Type) < string(definitions[j].Type)
	})
	return definitions
}

func checkStream(stream StreamName, payload any) error {
	switch scoped := payload.(type) {
	case ContentStreamScoped:
		if want := ContentStreamStream(scoped.ContentStream()); stream != want {
			return fmt.Errorf("%w: %s, want %s", ErrStreamMismatch, stream, want)
		}
	case WorkspaceScoped:
		if want := WorkspaceStream(scoped.Workspace()); stream != want {
			return fmt.Errorf("%w: %s, want %s", ErrStreamMismatch, stream, want)
		}
	default:
		return fmt.Errorf("%w: payload %T has no scope", ErrStreamMismatch, payload)
	}
	return nil
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// RegisterAll registers the closed set of repository event types.
func RegisterAll(registry *Registry) error {
	definitions := []Definition{
		{Type: TypeContentStreamWasCreated, NewPayload: payloadOf[ContentStreamWasCreated]()},
		{Type: TypeContentStreamWasForked, NewPayload: payloadOf[ContentStreamWasForked]()},
		{Type: TypeContentStreamWasClosed, NewPayload: payloadOf[ContentStreamWasClosed]()},
		{Type: TypeRootNodeAggregateWithNodeWasCreated, NewPayload: payloadOf[RootNodeAggregateWithNodeWasCreated]()},
		{Type: TypeNodeAggregateWithNodeWasCreated, NewPayload: payloadOf[NodeAggregateWithNodeWasCreated]()},
		{Type: TypeNodeVariantWasCreated, NewPayload: payloadOf[NodeVariantWasCreated]()},
		{Type: TypeNodePropertiesWereSet, NewPayload: payloadOf[NodePropertiesWereSet]()},
		{Type: TypeNodeReferencesWereSet, NewPayload: payloadOf[NodeReferencesWereSet]()},
		{Type: TypeNodeAggregateWasDisabled, NewPayload: payloadOf[NodeAggregateWasDisabled]()},
		{Type: TypeNodeAggregateWasEnabled, NewPayload: payloadOf[NodeAggregateWasEnabled]()},
		{Type: TypeNodeAggregateWasRemoved, NewPayload: payloadOf[NodeAggregateWasRemoved]()},
		{Type: TypeDimensionSpacePointWasMoved, NewPayload: payloadOf[DimensionSpacePointWasMoved]()},
		{Type: TypeRootWorkspaceWasCreated, NewPayload: payloadOf[RootWorkspaceWasCreated]()},
		{Type: TypeWorkspaceWasCreated, NewPayload: payloadOf[WorkspaceWasCreated]()},
		{Type: TypeWorkspaceWasRebased, NewPayload: payloadOf[WorkspaceWasRebased]()},
		{Type: TypeWorkspaceRebaseFailed, NewPayload: payloadOf[WorkspaceRebaseFailed]()},
		{Type: TypeWorkspaceWasPublished, NewPayload: payloadOf[WorkspaceWasPublished]()},
		{Type: TypeWorkspaceWasPartiallyPublished, NewPayload: payloadOf[WorkspaceWasPartiallyPublished]()},
		{Type: TypeWorkspaceWasDiscarded, NewPayload: payloadOf[WorkspaceWasDiscarded]()},
		{Type: TypeWorkspaceWasPartiallyDiscarded, NewPayload: payloadOf[WorkspaceWasPartiallyDiscarded]()},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}
