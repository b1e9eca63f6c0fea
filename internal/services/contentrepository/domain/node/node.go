package node

import (
	"errors"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

// ErrTetheredNodeNameRequired indicates a tethered node without a name.
var ErrTetheredNodeNameRequired = errors.New("tethered node requires a name")

// Visibility selects whether disabled nodes are returned.
type Visibility string

const (
	// VisibilityFrontend hides disabled nodes.
	VisibilityFrontend Visibility = "frontend"
	// VisibilityWithoutRestrictions returns disabled nodes too.
	VisibilityWithoutRestrictions Visibility = "without-restrictions"
)

// IncludesDisabled reports whether disabled nodes are visible.
func (v Visibility) IncludesDisabled() bool {
	return v == VisibilityWithoutRestrictions
}

// SubgraphIdentity scopes a read to one stream, one point and one visibility.
type SubgraphIdentity struct {
	ContentStreamID     ids.ContentStreamID
	DimensionSpacePoint dimension.Point
	Visibility          Visibility
}

// Timestamps records when a variant was created and last changed.
type Timestamps struct {
	Created      time.Time
	LastModified time.Time
}

// Node is one materialized variant as seen from a subgraph.
type Node struct {
	subgraph       SubgraphIdentity
	aggregateID    ids.NodeAggregateID
	origin         dimension.OriginPoint
	classification Classification
	nodeType       ids.NodeTypeName
	properties     PropertyValues
	name           ids.NodeName
	timestamps     Timestamps
	disabled       bool
}

// Params carries the fields of a node read row.
type Params struct {
	Subgraph       SubgraphIdentity
	AggregateID    ids.NodeAggregateID
	Origin         dimension.OriginPoint
	Classification Classification
	NodeType       ids.NodeTypeName
	Properties     PropertyValues
	Name           ids.NodeName
	Timestamps     Timestamps
	Disabled       bool
}

// NewNode builds a read row, enforcing that tethered nodes are named.
func NewNode(p Params) (Node, error) {
	if p.Classification.IsTethered() && p.Name == "" {
		return Node{}, ErrTetheredNodeNameRequired
	}
	if _, err := ParseClassification(string(p.Classification)); err != nil {
		return Node{}, err
	}
	return Node{
		subgraph:       p.Subgraph,
		aggregateID:    p.AggregateID,
		origin:         p.Origin,
		classification: p.Classification,
		nodeType:       p.NodeType,
		properties:     PropertyValues{}.Merge(p.Properties),
		name:           p.Name,
		timestamps:     p.Timestamps,
		disabled:       p.Disabled,
	}, nil
}

func (n Node) Subgraph() SubgraphIdentity       { return n.subgraph }
func (n Node) AggregateID() ids.NodeAggregateID { return n.aggregateID }
func (n Node) Origin() dimension.OriginPoint    { return n.origin }
func (n Node) Classification() Classification   { return n.classification }
func (n Node) NodeType() ids.NodeTypeName       { return n.nodeType }
func (n Node) Name() ids.NodeName               { return n.name }
func (n Node) Timestamps() Timestamps           { return n.timestamps }
func (n Node) Disabled() bool                   { return n.disabled }
func (n Node) Properties() PropertyValues       { return PropertyValues{}.Merge(n.properties) }
func (n Node) IsTethered() bool                 { return n.classification.IsTethered() }

// Equal reports identity equality: same subgraph and same aggregate.
func (n Node) Equal(other Node) bool {
	return n.subgraph == other.subgraph && n.aggregateID == other.aggregateID
}

// DeepEqual compares every field, for read consistency checks.
func (n Node) DeepEqual(other Node) bool {
	return n.Equal(other) &&
		n.origin == other.origin &&
		n.classification == other.classification &&
		n.nodeType == other.nodeType &&
		n.name == other.name &&
		n.timestamps.Created.Equal(other.timestamps.Created) &&
		n.timestamps.LastModified.Equal(other.timestamps.LastModified) &&
		n.disabled == other.disabled &&
		n.properties.Equal(other.properties)
}

// Aggregate summarizes every variant of one aggregate in one content stream.
type Aggregate struct {
	ContentStreamID  ids.ContentStreamID
	ID               ids.NodeAggregateID
	Classification   Classification
	NodeType         ids.NodeTypeName
	Name             ids.NodeName
	OccupiedOrigins  dimension.PointSet
	CoveredPoints    dimension.PointSet
	CoverageByOrigin map[dimension.Point]dimension.PointSet
	ParentIDs        []ids.NodeAggregateID
	DisabledPoints   dimension.PointSet
}

// OccupiesOrigin reports whether a variant was authored at origin.
func (a Aggregate) OccupiesOrigin(origin dimension.OriginPoint) bool {
	return a.OccupiedOrigins.Contains(origin.ToPoint())
}

// Covers reports whether some variant is visible at p.
func (a Aggregate) Covers(p dimension.Point) bool {
	return a.CoveredPoints.Contains(p)
}

// OriginCovering returns the origin whose variant covers p.
func (a Aggregate) OriginCovering(p dimension.Point) (dimension.OriginPoint, bool) {
	for origin, covered := range a.CoverageByOrigin {
		if covered.Contains(p) {
			return origin.AsOrigin(), true
		}
	}
	return dimension.OriginPoint{}, false
}

// IsDisabledAt reports whether the aggregate itself is disabled at p.
func (a Aggregate) IsDisabledAt(p dimension.Point) bool {
	return a.DisabledPoints.Contains(p)
}
