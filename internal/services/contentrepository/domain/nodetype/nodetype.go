// Package nodetype resolves the node type catalog used to validate commands.
package nodetype

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

var (
	// ErrNodeTypeNotFound indicates a reference to an undeclared node type.
	ErrNodeTypeNotFound = errors.New("node type not found")
	// ErrSuperTypeCycle indicates node types inheriting from themselves.
	ErrSuperTypeCycle = errors.New("node type inheritance contains a cycle")
	// ErrTetheredCycle indicates tethered children that would nest forever.
	ErrTetheredCycle = errors.New("tethered child nodes nest recursively")
	// ErrInvalidTetheredType indicates an abstract or root type used as a tethered child.
	ErrInvalidTetheredType = errors.New("tethered child node type must be concrete and non-root")
	// ErrPropertyTypeMismatch indicates a value that does not fit the declared type.
	ErrPropertyTypeMismatch = errors.New("property value does not match declared type")
)

// Property value types. An empty type accepts any JSON value.
const (
	PropertyString  = "string"
	PropertyInteger = "integer"
	PropertyFloat   = "float"
	PropertyBoolean = "boolean"
	PropertyArray   = "array"
	PropertyObject  = "object"
)

// PropertyConfig declares a property.
type PropertyConfig struct {
	Type string `yaml:"type" toml:"type" json:"type,omitempty"`
}

// ReferenceConfig declares a reference. MaxItems of zero means unbounded.
type ReferenceConfig struct {
	MaxItems int `yaml:"maxItems" toml:"maxItems" json:"maxItems,omitempty"`
}

// Config declares one node type in the settings file.
type Config struct {
	Abstract   bool                       `yaml:"abstract" toml:"abstract" json:"abstract,omitempty"`
	Root       bool                       `yaml:"root" toml:"root" json:"root,omitempty"`
	SuperTypes []string                   `yaml:"superTypes" toml:"superTypes" json:"superTypes,omitempty"`
	Properties map[string]PropertyConfig  `yaml:"properties" toml:"properties" json:"properties,omitempty"`
	References map[string]ReferenceConfig `yaml:"references" toml:"references" json:"references,omitempty"`
	ChildNodes map[string]string          `yaml:"childNodes" toml:"childNodes" json:"childNodes,omitempty"`
}

// TetheredChild is a named child created together with its parent.
type TetheredChild struct {
	Name ids.NodeName
	Type ids.NodeTypeName
}

// NodeType is a fully resolved node type, with inherited declarations merged.
type NodeType struct {
	Name       ids.NodeTypeName
	Abstract   bool
	Root       bool
	SuperTypes []ids.NodeTypeName
	Properties map[ids.PropertyName]PropertyConfig
	References map[ids.ReferenceName]ReferenceConfig
	Tethered   []TetheredChild
}

// HasProperty reports whether name is declared.
func (t NodeType) HasProperty(name ids.PropertyName) bool {
	_, ok := t.Properties[name]
	return ok
}

// HasReference reports whether name is declared.
func (t NodeType) HasReference(name ids.ReferenceName) bool {
	_, ok := t.References[name]
	return ok
}

// IsOfType reports whether the type is name or inherits from it.
func (t NodeType) IsOfType(name ids.NodeTypeName) bool {
	if t.Name == name {
		return true
	}
	for _, super := range t.SuperTypes {
		if super == name {
			return true
		}
	}
	return false
}

// ValidateValue checks one property value against its declaration.
func (t NodeType) ValidateValue(name ids.PropertyName, raw json.RawMessage) error {
	decl, ok := t.Properties[name]
	if !ok {
		return fmt.Errorf("property %q is not declared on %s", name, t.Name)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" || decl.Type == "" {
		return nil
	}
	var valid bool
	switch decl.Type {
	case PropertyString:
		valid = trimmed[0] == '"'
	case PropertyBoolean:
		valid = string(trimmed) == "true" || string(trimmed) == "false"
	case PropertyArray:
		valid = trimmed[0] == '['
	case PropertyObject:
		valid = trimmed[0] == '{'
	case PropertyInteger:
		var n json.Number
		valid = json.Unmarshal(trimmed, &n) == nil && !strings.ContainsAny(n.String(), ".eE")
	case PropertyFloat:
		var f float64
		valid = json.Unmarshal(trimmed, &f) == nil
	default:
		return fmt.Errorf("property %q on %s has unknown type %q", name, t.Name, decl.Type)
	}
	if !valid {
		return fmt.Errorf("%w: %s.%s expects %s", ErrPropertyTypeMismatch, t.Name, name, decl.Type)
	}
	return nil
}

// Manager holds the resolved catalog.
type Manager struct {
	types map[ids.NodeTypeName]NodeType
}

// NewManager resolves inheritance and validates tethered children.
func NewManager(configs map[string]Config) (*Manager, error) {
	resolver := &inheritance{configs: configs, resolved: make(map[string]NodeType), visiting: make(map[string]bool)}
	names := make([]string, 0, len(configs))
	for name := range configs {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty node type name", ErrNodeTypeNotFound)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := resolver.resolve(name); err != nil {
			return nil, err
		}
	}

	m := &Manager{types: make(map[ids.NodeTypeName]NodeType, len(resolver.resolved))}
	for name, nt := range resolver.resolved {
		m.types[ids.NodeTypeName(name)] = nt
	}
	for _, name := range names {
		if err := m.checkTethered(ids.NodeTypeName(name), map[ids.NodeTypeName]bool{}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Get returns a node type by name.
func (m *Manager) Get(name ids.NodeTypeName) (NodeType, error) {
	if m == nil {
		return NodeType{}, fmt.Errorf("%w: %s", ErrNodeTypeNotFound, name)
	}
	nt, ok := m.types[name]
	if !ok {
		return NodeType{}, fmt.Errorf("%w: %s", ErrNodeTypeNotFound, name)
	}
	return nt, nil
}

// Names lists all node type names in sorted order.
func (m *Manager) Names() []ids.NodeTypeName {
	names := make([]ids.NodeTypeName, 0, len(m.types))
	for name := range m.types {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (m *Manager) checkTethered(name ids.NodeTypeName, path map[ids.NodeTypeName]bool) error {
	if path[name] {
		return fmt.Errorf("%w: %s", ErrTetheredCycle, name)
	}
	path[name] = true
	defer delete(path, name)

	for _, child := range m.types[name].Tethered {
		childType, ok := m.types[child.Type]
		if !ok {
			return fmt.Errorf("%w: %s (tethered child %q of %s)", ErrNodeTypeNotFound, child.Type, child.Name, name)
		}
		if childType.Abstract || childType.Root {
			return fmt.Errorf("%w: %s.%s is %s", ErrInvalidTetheredType, name, child.Name, child.Type)
		}
		if err := m.checkTethered(child.Type, path); err != nil {
			return err
		}
	}
	return nil
}

type inheritance struct {
	configs  map[string]Config
	resolved map[string]NodeType
	visiting map[string]bool
}

func (in *inheritance) resolve(name string) (NodeType, error) {
	if nt, ok := in.resolved[name]; ok {
		return nt, nil
	}
	cfg, ok := in.configs[name]
	if !ok {
		return NodeType{}, fmt.Errorf("%w: %s", ErrNodeTypeNotFound, name)
	}
	if in.visiting[name] {
		return NodeType{}, fmt.Errorf("%w: %s", ErrSuperTypeCycle, name)
	}
	in.visiting[name] = true
	defer delete(in.visiting, name)

	nt := NodeType{
		Name:       ids.NodeTypeName(name),
		Abstract:   cfg.Abstract,
		Root:       cfg.Root,
		Properties: make(map[ids.PropertyName]PropertyConfig),
		References: make(map[ids.ReferenceName]ReferenceConfig),
	}
	children := make(map[ids.NodeName]ids.NodeTypeName)
	seenSuper := make(map[ids.NodeTypeName]bool)
	for _, superName := range cfg.SuperTypes {
		super, err := in.resolve(superName)
		if err != nil {
			return NodeType{}, fmt.Errorf("node type %s: %w", name, err)
		}
		nt.Root = nt.Root || super.Root
		for _, inherited := range append([]ids.NodeTypeName{super.Name}, super.SuperTypes...) {
			if !seenSuper[inherited] {
				seenSuper[inherited] = true
				nt.SuperTypes = append(nt.SuperTypes, inherited)
			}
		}
		for k, v := range super.Properties {
			nt.Properties[k] = v
		}
		for k, v := range super.References {
			nt.References[k] = v
		}
		for _, child := range super.Tethered {
			children[child.Name] = child.Type
		}
	}
	for k, v := range cfg.Properties {
		nt.Properties[ids.PropertyName(k)] = v
	}
	for k, v := range cfg.References {
		nt.References[ids.ReferenceName(k)] = v
	}
	for rawName, childType := range cfg.ChildNodes {
		childName, err := ids.ParseNodeName(rawName)
		if err != nil {
			return NodeType{}, fmt.Errorf("node type %s: %w", name, err)
		}
		children[childName] = ids.NodeTypeName(childType)
	}
	for childName, childType := range children {
		nt.Tethered = append(nt.Tethered, TetheredChild{Name: childName, Type: childType})
	}
	sort.Slice(nt.Tethered, func(i, j int) bool { return nt.Tethered[i].Name < nt.Tethered[j].Name })

	in.resolved[name] = nt
	return nt, nil
}
