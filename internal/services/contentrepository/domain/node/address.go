package node

import (
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

// Address selects one node variant for selective publish or discard.
type Address struct {
	ContentStreamID     ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	DimensionSpacePoint dimension.Point     `json:"dimensionSpacePoint"`
	NodeAggregateID     ids.NodeAggregateID `json:"nodeAggregateId" validate:"required"`
}

// Matches reports whether the address selects the given variant.
func (a Address) Matches(cs ids.ContentStreamID, origin dimension.OriginPoint, aggregate ids.NodeAggregateID) bool {
	return a.ContentStreamID == cs && a.DimensionSpacePoint == origin.ToPoint() && a.NodeAggregateID == aggregate
}

// Addresses is a selection of node variants.
type Addresses []Address

// Matches reports whether any address selects the variant.
func (s Addresses) Matches(cs ids.ContentStreamID, origin dimension.OriginPoint, aggregate ids.NodeAggregateID) bool {
	for _, a := range s {
		if a.Matches(cs, origin, aggregate) {
			return true
		}
	}
	return false
}
