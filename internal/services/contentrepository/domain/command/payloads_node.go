package command

import (
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

const (
	TypeCreateRootNodeAggregateWithNode Type = "CreateRootNodeAggregateWithNode"
	TypeCreateNodeAggregateWithNode     Type = "CreateNodeAggregateWithNode"
	TypeCreateNodeVariant               Type = "CreateNodeVariant"
	TypeSetNodeProperties               Type = "SetNodeProperties"
	TypeSetSerializedNodeReferences     Type = "SetSerializedNodeReferences"
	TypeDisableNodeAggregate            Type = "DisableNodeAggregate"
	TypeEnableNodeAggregate             Type = "EnableNodeAggregate"
	TypeRemoveNodeAggregate             Type = "RemoveNodeAggregate"
	TypeMoveDimensionSpacePoint         Type = "MoveDimensionSpacePoint"
)

// VariantSelectionStrategy chooses which points a disable, enable or
// removal affects.
type VariantSelectionStrategy string

const (
	// StrategyAllSpecializations affects the given point and every point
	// that falls back to it.
	StrategyAllSpecializations VariantSelectionStrategy = "allSpecializations"
	// StrategyAllVariants affects every point the aggregate covers.
	StrategyAllVariants VariantSelectionStrategy = "allVariants"
)

// Validate accepts the empty strategy as the default.
func (s VariantSelectionStrategy) Validate() error {
	switch s {
	case "", StrategyAllSpecializations, StrategyAllVariants:
		return nil
	default:
		return fmt.Errorf("node variant selection strategy %q is invalid", string(s))
	}
}

// OrDefault returns allSpecializations for the empty strategy.
func (s VariantSelectionStrategy) OrDefault() VariantSelectionStrategy {
	if s == "" {
		return StrategyAllSpecializations
	}
	return s
}

// TetheredIDs pins ids for auto-created tethered descendants by node path,
// for example "main" or "main/footer". Paths not listed get derived ids.
type TetheredIDs map[string]ids.NodeAggregateID

// CreateRootNodeAggregateWithNode creates a root aggregate covering every
// point of the dimension space.
type CreateRootNodeAggregateWithNode struct {
	ContentStreamID                    ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	NodeAggregateID                    ids.NodeAggregateID `json:"nodeAggregateId" validate:"required"`
	NodeTypeName                       ids.NodeTypeName    `json:"nodeTypeName" validate:"required"`
	TetheredDescendantNodeAggregateIDs TetheredIDs         `json:"tetheredDescendantNodeAggregateIds,omitempty"`
}

func (CreateRootNodeAggregateWithNode) CommandType() Type {
	return TypeCreateRootNodeAggregateWithNode
}

func (p CreateRootNodeAggregateWithNode) ContentStream() ids.ContentStreamID {
	return p.ContentStreamID
}

func (p CreateRootNodeAggregateWithNode) NodeAggregate() ids.NodeAggregateID {
	return p.NodeAggregateID
}

func (p CreateRootNodeAggregateWithNode) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p CreateRootNodeAggregateWithNode) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, dimension.OriginPoint{}, p.NodeAggregateID)
}

func (p CreateRootNodeAggregateWithNode) Validate() error {
	return p.NodeAggregateID.Validate()
}

// CreateNodeAggregateWithNode creates an aggregate with its first variant
// below a parent.
type CreateNodeAggregateWithNode struct {
	ContentStreamID                    ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	NodeAggregateID                    ids.NodeAggregateID   `json:"nodeAggregateId" validate:"required"`
	NodeTypeName                       ids.NodeTypeName      `json:"nodeTypeName" validate:"required"`
	OriginDimensionSpacePoint          dimension.OriginPoint `json:"originDimensionSpacePoint"`
	ParentNodeAggregateID              ids.NodeAggregateID   `json:"parentNodeAggregateId" validate:"required"`
	NodeName                           ids.NodeName          `json:"nodeName,omitempty"`
	InitialPropertyValues              node.PropertyValues   `json:"initialPropertyValues,omitempty"`
	TetheredDescendantNodeAggregateIDs TetheredIDs           `json:"tetheredDescendantNodeAggregateIds,omitempty"`
}

func (CreateNodeAggregateWithNode) CommandType() Type { return TypeCreateNodeAggregateWithNode }

func (p CreateNodeAggregateWithNode) ContentStream() ids.ContentStreamID {
	return p.ContentStreamID
}

func (p CreateNodeAggregateWithNode) NodeAggregate() ids.NodeAggregateID {
	return p.NodeAggregateID
}

func (p CreateNodeAggregateWithNode) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p CreateNodeAggregateWithNode) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, p.OriginDimensionSpacePoint, p.NodeAggregateID)
}

func (p CreateNodeAggregateWithNode) Validate() error {
	if err := p.NodeAggregateID.Validate(); err != nil {
		return err
	}
	if p.NodeName != "" {
		if err := p.NodeName.Validate(); err != nil {
			return err
		}
	}
	if p.NodeAggregateID == p.ParentNodeAggregateID {
		return fmt.Errorf("node aggregate %s cannot be its own parent", p.NodeAggregateID)
	}
	return nil
}

// CreateNodeVariant makes an existing variant visible at another origin.
type CreateNodeVariant struct {
	ContentStreamID ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	NodeAggregateID ids.NodeAggregateID   `json:"nodeAggregateId" validate:"required"`
	SourceOrigin    dimension.OriginPoint `json:"sourceOrigin"`
	TargetOrigin    dimension.OriginPoint `json:"targetOrigin"`
}

func (CreateNodeVariant) CommandType() Type                    { return TypeCreateNodeVariant }
func (p CreateNodeVariant) ContentStream() ids.ContentStreamID { return p.ContentStreamID }
func (p CreateNodeVariant) NodeAggregate() ids.NodeAggregateID { return p.NodeAggregateID }

func (p CreateNodeVariant) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p CreateNodeVariant) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, p.TargetOrigin, p.NodeAggregateID)
}

func (p CreateNodeVariant) Validate() error {
	if p.SourceOrigin == p.TargetOrigin {
		return fmt.Errorf("variant target %s equals source", p.TargetOrigin.String())
	}
	return nil
}

// SetNodeProperties replaces property values of one variant.
type SetNodeProperties struct {
	ContentStreamID           ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	NodeAggregateID           ids.NodeAggregateID   `json:"nodeAggregateId" validate:"required"`
	OriginDimensionSpacePoint dimension.OriginPoint `json:"originDimensionSpacePoint"`
	PropertyValues            node.PropertyValues   `json:"propertyValues" validate:"required"`
}

func (SetNodeProperties) CommandType() Type                    { return TypeSetNodeProperties }
func (p SetNodeProperties) ContentStream() ids.ContentStreamID { return p.ContentStreamID }
func (p SetNodeProperties) NodeAggregate() ids.NodeAggregateID { return p.NodeAggregateID }

func (p SetNodeProperties) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p SetNodeProperties) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, p.OriginDimensionSpacePoint, p.NodeAggregateID)
}

// SetSerializedNodeReferences replaces one named reference list of one
// variant.
type SetSerializedNodeReferences struct {
	ContentStreamID                 ids.ContentStreamID   `json:"contentStreamId" validate:"required"`
	SourceNodeAggregateID           ids.NodeAggregateID   `json:"sourceNodeAggregateId" validate:"required"`
	SourceOriginDimensionSpacePoint dimension.OriginPoint `json:"sourceOriginDimensionSpacePoint"`
	ReferenceName                   ids.ReferenceName     `json:"referenceName" validate:"required"`
	References                      node.References       `json:"references"`
}

func (SetSerializedNodeReferences) CommandType() Type { return TypeSetSerializedNodeReferences }

func (p SetSerializedNodeReferences) ContentStream() ids.ContentStreamID {
	return p.ContentStreamID
}

func (p SetSerializedNodeReferences) NodeAggregate() ids.NodeAggregateID {
	return p.SourceNodeAggregateID
}

func (p SetSerializedNodeReferences) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p SetSerializedNodeReferences) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, p.SourceOriginDimensionSpacePoint, p.SourceNodeAggregateID)
}

func (p SetSerializedNodeReferences) Validate() error {
	if err := p.ReferenceName.Validate(); err != nil {
		return err
	}
	return p.References.Validate()
}

// DisableNodeAggregate hides an aggregate and its descendants.
type DisableNodeAggregate struct {
	ContentStreamID              ids.ContentStreamID      `json:"contentStreamId" validate:"required"`
	NodeAggregateID              ids.NodeAggregateID      `json:"nodeAggregateId" validate:"required"`
	CoveredDimensionSpacePoint   dimension.Point          `json:"coveredDimensionSpacePoint"`
	NodeVariantSelectionStrategy VariantSelectionStrategy `json:"nodeVariantSelectionStrategy,omitempty"`
}

func (DisableNodeAggregate) CommandType() Type                    { return TypeDisableNodeAggregate }
func (p DisableNodeAggregate) ContentStream() ids.ContentStreamID { return p.ContentStreamID }
func (p DisableNodeAggregate) NodeAggregate() ids.NodeAggregateID { return p.NodeAggregateID }

func (p DisableNodeAggregate) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p DisableNodeAggregate) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, p.CoveredDimensionSpacePoint.AsOrigin(), p.NodeAggregateID)
}

func (p DisableNodeAggregate) Validate() error {
	return p.NodeVariantSelectionStrategy.Validate()
}

// EnableNodeAggregate lifts a disable.
type EnableNodeAggregate struct {
	ContentStreamID              ids.ContentStreamID      `json:"contentStreamId" validate:"required"`
	NodeAggregateID              ids.NodeAggregateID      `json:"nodeAggregateId" validate:"required"`
	CoveredDimensionSpacePoint   dimension.Point          `json:"coveredDimensionSpacePoint"`
	NodeVariantSelectionStrategy VariantSelectionStrategy `json:"nodeVariantSelectionStrategy,omitempty"`
}

func (EnableNodeAggregate) CommandType() Type                    { return TypeEnableNodeAggregate }
func (p EnableNodeAggregate) ContentStream() ids.ContentStreamID { return p.ContentStreamID }
func (p EnableNodeAggregate) NodeAggregate() ids.NodeAggregateID { return p.NodeAggregateID }

func (p EnableNodeAggregate) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p EnableNodeAggregate) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, p.CoveredDimensionSpacePoint.AsOrigin(), p.NodeAggregateID)
}

func (p EnableNodeAggregate) Validate() error {
	return p.NodeVariantSelectionStrategy.Validate()
}

// RemoveNodeAggregate removes an aggregate and its descendants.
type RemoveNodeAggregate struct {
	ContentStreamID              ids.ContentStreamID      `json:"contentStreamId" validate:"required"`
	NodeAggregateID              ids.NodeAggregateID      `json:"nodeAggregateId" validate:"required"`
	CoveredDimensionSpacePoint   dimension.Point          `json:"coveredDimensionSpacePoint"`
	NodeVariantSelectionStrategy VariantSelectionStrategy `json:"nodeVariantSelectionStrategy,omitempty"`
}

func (RemoveNodeAggregate) CommandType() Type                    { return TypeRemoveNodeAggregate }
func (p RemoveNodeAggregate) ContentStream() ids.ContentStreamID { return p.ContentStreamID }
func (p RemoveNodeAggregate) NodeAggregate() ids.NodeAggregateID { return p.NodeAggregateID }

func (p RemoveNodeAggregate) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

func (p RemoveNodeAggregate) MatchesNodeID(address node.Address) bool {
	return address.Matches(p.ContentStreamID, p.CoveredDimensionSpacePoint.AsOrigin(), p.NodeAggregateID)
}

func (p RemoveNodeAggregate) Validate() error {
	return p.NodeVariantSelectionStrategy.Validate()
}

// MoveDimensionSpacePoint renames a point across a whole stream, for
// example after a dimension value was renamed in settings.
type MoveDimensionSpacePoint struct {
	ContentStreamID ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	Source          dimension.Point     `json:"source"`
	Target          dimension.Point     `json:"target"`
}

func (MoveDimensionSpacePoint) CommandType() Type                    { return TypeMoveDimensionSpacePoint }
func (p MoveDimensionSpacePoint) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p MoveDimensionSpacePoint) CopyForContentStream(target ids.ContentStreamID) Rebasable {
	p.ContentStreamID = target
	return p
}

// MatchesNodeID is always false: a move addresses no single node.
func (p MoveDimensionSpacePoint) MatchesNodeID(node.Address) bool { return false }

func (p MoveDimensionSpacePoint) Validate() error {
	if p.Source == p.Target {
		return fmt.Errorf("move target %s equals source", p.Target.String())
	}
	return nil
}
