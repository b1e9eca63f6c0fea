package node

import (
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

// ErrDuplicateReferenceTarget indicates the same target listed twice.
var ErrDuplicateReferenceTarget = errors.New("reference target listed more than once")

// Reference points from a source variant to a target aggregate.
type Reference struct {
	TargetNodeAggregateID ids.NodeAggregateID `json:"targetNodeAggregateId" validate:"required"`
	Properties            PropertyValues      `json:"properties,omitempty"`
}

// References is an ordered reference set; order is the authored order.
type References []Reference

// Validate checks target ids and uniqueness.
func (r References) Validate() error {
	seen := make(map[ids.NodeAggregateID]struct{}, len(r))
	for _, ref := range r {
		if err := ref.TargetNodeAggregateID.Validate(); err != nil {
			return err
		}
		if _, dup := seen[ref.TargetNodeAggregateID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateReferenceTarget, ref.TargetNodeAggregateID)
		}
		seen[ref.TargetNodeAggregateID] = struct{}{}
	}
	return nil
}

// TargetIDs lists targets in order.
func (r References) TargetIDs() []ids.NodeAggregateID {
	targets := make([]ids.NodeAggregateID, 0, len(r))
	for _, ref := range r {
		targets = append(targets, ref.TargetNodeAggregateID)
	}
	return targets
}
