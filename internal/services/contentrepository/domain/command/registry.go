package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/core/encoding"
)

var (
	// ErrTypeRequired indicates a missing command type.
	ErrTypeRequired = errors.New("command type is required")
	// ErrTypeUnknown indicates an unregistered command type.
	ErrTypeUnknown = errors.New("command type is not registered")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

var validate = validator.New()

// Definition registers metadata for a command type.
type Definition struct {
	Type Type
	// NewPayload returns a pointer to a zero payload value.
	NewPayload func() Payload
}

// Registry stores command definitions and validates commands.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// NewDefaultRegistry returns a registry holding every repository command.
func NewDefaultRegistry() (*Registry, error) {
	registry := NewRegistry()
	if err := RegisterAll(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// Register adds a new command type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if def.NewPayload == nil {
		return fmt.Errorf("command type %s requires a payload factory", def.Type)
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("command type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// ValidateForDecision validates and normalizes a command before decision handling.
func (r *Registry) ValidateForDecision(cmd Command) (Command, error) {
	if r == nil {
		return Command{}, errors.New("registry is required")
	}
	cmd.Type = Type(strings.TrimSpace(string(cmd.Type)))
	if cmd.Type == "" {
		return Command{}, ErrTypeRequired
	}
	if _, ok := r.definitions[cmd.Type]; !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrTypeUnknown, cmd.Type)
	}
	cmd.InitiatingUserID = cmd.InitiatingUserID.OrSystem()
	cmd.RequestID = strings.TrimSpace(cmd.RequestID)

	if len(cmd.PayloadJSON) == 0 {
		cmd.PayloadJSON = []byte("{}")
	}
	if !json.Valid(cmd.PayloadJSON) {
		return Command{}, ErrPayloadInvalid
	}
	canonical, err := encoding.Canonicalize(cmd.PayloadJSON)
	if err != nil {
		return Command{}, fmt.Errorf("canonical payload json: %w", err)
	}
	cmd.PayloadJSON = canonical
	if _, err := r.Decode(cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Decode returns the typed payload of a command.
func (r *Registry) Decode(cmd Command) (Payload, error) {
	if r == nil {
		return nil, errors.New("registry is required")
	}
	def, ok := r.definitions[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeUnknown, cmd.Type)
	}
	target := def.NewPayload()
	decoder := json.NewDecoder(bytes.NewReader(cmd.PayloadJSON))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, cmd.Type, err)
	}
	if err := validate.Struct(target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, cmd.Type, err)
	}
	if v, ok := target.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("payload invalid: %w", err)
		}
	}
	return deref(target), nil
}

// Definition returns the command definition for a given type.
func (r *Registry) Definition(cmdType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	cmdType = Type(strings.TrimSpace(string(cmdType)))
	if cmdType == "" {
		return Definition{}, false
	}
	def, ok := r.definitions[cmdType]
	return def, ok
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

func payloadOf[T any, P interface {
	*T
	Payload
}]() func() Payload {
	return func() Payload { return P(new(T)) }
}

// deref returns the payload value behind the pointer built by a factory so
// deciders can type switch on payload structs.
func deref(p Payload) Payload {
	v := reflect.ValueOf(p)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		if out, ok := v.Elem().Interface().(Payload); ok {
			return out
		}
	}
	return p
}

// RegisterAll registers the closed set of repository commands.
func RegisterAll(registry *Registry) error {
	definitions := []Definition{
		{Type: TypeCreateContentStream, NewPayload: payloadOf[CreateContentStream]()},
		{Type: TypeForkContentStream, NewPayload: payloadOf[ForkContentStream]()},
		{Type: TypeCloseContentStream, NewPayload: payloadOf[CloseContentStream]()},
		{Type: TypeCreateRootNodeAggregateWithNode, NewPayload: payloadOf[CreateRootNodeAggregateWithNode]()},
		{Type: TypeCreateNodeAggregateWithNode, NewPayload: payloadOf[CreateNodeAggregateWithNode]()},
		{Type: TypeCreateNodeVariant, NewPayload: payloadOf[CreateNodeVariant]()},
		{Type: TypeSetNodeProperties, NewPayload: payloadOf[SetNodeProperties]()},
		{Type: TypeSetSerializedNodeReferences, NewPayload: payloadOf[SetSerializedNodeReferences]()},
		{Type: TypeDisableNodeAggregate, NewPayload: payloadOf[DisableNodeAggregate]()},
		{Type: TypeEnableNodeAggregate, NewPayload: payloadOf[EnableNodeAggregate]()},
		{Type: TypeRemoveNodeAggregate, NewPayload: payloadOf[RemoveNodeAggregate]()},
		{Type: TypeMoveDimensionSpacePoint, NewPayload: payloadOf[MoveDimensionSpacePoint]()},
		{Type: TypeCreateRootWorkspace, NewPayload: payloadOf[CreateRootWorkspace]()},
		{Type: TypeCreateWorkspace, NewPayload: payloadOf[CreateWorkspace]()},
		{Type: TypeRebaseWorkspace, NewPayload: payloadOf[RebaseWorkspace]()},
		{Type: TypePublishWorkspace, NewPayload: payloadOf[PublishWorkspace]()},
		{Type: TypePublishIndividualNodesFromWorkspace, NewPayload: payloadOf[PublishIndividualNodesFromWorkspace]()},
		{Type: TypeDiscardWorkspace, NewPayload: payloadOf[DiscardWorkspace]()},
		{Type: TypeDiscardIndividualNodesFromWorkspace, NewPayload: payloadOf[DiscardIndividualNodesFromWorkspace]()},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}
