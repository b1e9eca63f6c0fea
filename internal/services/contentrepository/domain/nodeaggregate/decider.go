// Package nodeaggregate decides the structural and property commands of
// node aggregates.
//
// Deciders read the content graph projection through the snapshot and emit
// events that carry every affected point explicitly, so projections never
// need the dimension configuration to apply them.
package nodeaggregate

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/nodetype"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// Decider holds the configuration node aggregate rules depend on.
type Decider struct {
	Dimensions *dimension.Resolver
	NodeTypes  *nodetype.Manager
}

// New validates the collaborators of a decider.
func New(dimensions *dimension.Resolver, nodeTypes *nodetype.Manager) (Decider, error) {
	if dimensions == nil {
		return Decider{}, errors.New("dimension resolver is required")
	}
	if nodeTypes == nil {
		return Decider{}, errors.New("node type manager is required")
	}
	return Decider{Dimensions: dimensions, NodeTypes: nodeTypes}, nil
}

// Deciders returns the dispatch entries for node aggregate commands.
func (d Decider) Deciders() engine.Deciders {
	return engine.Deciders{
		command.TypeCreateRootNodeAggregateWithNode: d.decideCreateRoot,
		command.TypeCreateNodeAggregateWithNode:     d.decideCreate,
		command.TypeCreateNodeVariant:               d.decideCreateVariant,
		command.TypeSetNodeProperties:               d.decideSetProperties,
		command.TypeSetSerializedNodeReferences:     d.decideSetReferences,
		command.TypeDisableNodeAggregate:            d.decideDisable,
		command.TypeEnableNodeAggregate:             d.decideEnable,
		command.TypeRemoveNodeAggregate:             d.decideRemove,
		command.TypeMoveDimensionSpacePoint:         d.decideMove,
	}
}

// rejection is returned by helpers that found a rule violation; deciders turn
// it into a rejected decision.
type rejection struct {
	code    apperrors.Code
	message string
}

func (r *rejection) Error() string { return r.message }

func reject(code apperrors.Code, format string, args ...any) error {
	return &rejection{code: code, message: fmt.Sprintf(format, args...)}
}

// settle converts helper errors: rejections become decisions, anything else
// stays an error.
func settle(err error) (command.Decision, error) {
	var r *rejection
	if errors.As(err, &r) {
		return engine.Reject(r.code, "%s", r.message), nil
	}
	return command.Decision{}, err
}

func (d Decider) requireAggregate(ctx context.Context, snap engine.Snapshot, id ids.NodeAggregateID) (node.Aggregate, error) {
	agg, err := snap.Graph.FindNodeAggregate(ctx, snap.ContentStreamID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return node.Aggregate{}, reject(apperrors.CodeNodeAggregateNotFound, "node aggregate %s does not exist in content stream %s", id, snap.ContentStreamID)
	}
	return agg, err
}

func (d Decider) requireAbsent(ctx context.Context, snap engine.Snapshot, id ids.NodeAggregateID) error {
	_, err := snap.Graph.FindNodeAggregate(ctx, snap.ContentStreamID, id)
	switch {
	case err == nil:
		return reject(apperrors.CodeNodeAggregateExists, "node aggregate %s already exists", id)
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (d Decider) requireNodeType(name ids.NodeTypeName) (nodetype.NodeType, error) {
	nt, err := d.NodeTypes.Get(name)
	if err != nil {
		return nodetype.NodeType{}, reject(apperrors.CodeNodeTypeNotFound, "node type %s is not configured", name)
	}
	return nt, nil
}

func (d Decider) requirePoint(p dimension.Point) error {
	if err := d.Dimensions.ValidatePoint(p); err != nil {
		return reject(apperrors.CodeDimensionPointInvalid, "%v", err)
	}
	return nil
}

func (d Decider) requireOrigin(agg node.Aggregate, origin dimension.OriginPoint) error {
	if !agg.OccupiesOrigin(origin) {
		return reject(apperrors.CodeNodeVariantNotFound, "node aggregate %s has no variant at %s", agg.ID, origin.String())
	}
	return nil
}

func (d Decider) requireProperties(nt nodetype.NodeType, values node.PropertyValues) error {
	for _, name := range values.Names() {
		if !nt.HasProperty(name) {
			return reject(apperrors.CodePropertyNotDeclared, "property %s is not declared on %s", name, nt.Name)
		}
		if err := nt.ValidateValue(name, values[name]); err != nil {
			return reject(apperrors.CodeValidationFailed, "%v", err)
		}
	}
	return nil
}

// affectedPoints applies a variant selection strategy to the points an
// aggregate covers.
func (d Decider) affectedPoints(agg node.Aggregate, point dimension.Point, strategy command.VariantSelectionStrategy) (dimension.PointSet, error) {
	if strategy.OrDefault() == command.StrategyAllVariants {
		return agg.CoveredPoints, nil
	}
	specializations, err := d.Dimensions.Specializations(point)
	if err != nil {
		return dimension.PointSet{}, reject(apperrors.CodeDimensionPointInvalid, "%v", err)
	}
	return specializations.Intersect(agg.CoveredPoints), nil
}

// rootPoints returns the points that fall back to nothing but themselves.
func (d Decider) rootPoints() []dimension.Point {
	var roots []dimension.Point
	for _, p := range d.Dimensions.AllPoints().Points() {
		chain, err := d.Dimensions.ResolveFallbackChain(p)
		if err == nil && len(chain) == 1 {
			roots = append(roots, p)
		}
	}
	return roots
}
