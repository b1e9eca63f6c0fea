// Package node holds the node value objects and the immutable read rows
// produced by the content graph.
package node

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClassificationInvalid indicates an unknown classification value.
var ErrClassificationInvalid = errors.New("node aggregate classification is invalid")

// Classification distinguishes root, regular and tethered aggregates.
type Classification string

const (
	// ClassificationRoot is a graph entry point without a parent.
	ClassificationRoot Classification = "root"
	// ClassificationRegular is an ordinary authored node.
	ClassificationRegular Classification = "regular"
	// ClassificationTethered is auto-created with its parent and removed only with it.
	ClassificationTethered Classification = "tethered"
)

// ParseClassification validates a stored classification value.
func ParseClassification(raw string) (Classification, error) {
	switch c := Classification(raw); c {
	case ClassificationRoot, ClassificationRegular, ClassificationTethered:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrClassificationInvalid, raw)
	}
}

// IsRoot reports whether the aggregate is a root.
func (c Classification) IsRoot() bool { return c == ClassificationRoot }

// IsRegular reports whether the aggregate is regular.
func (c Classification) IsRegular() bool { return c == ClassificationRegular }

// IsTethered reports whether the aggregate is tethered to its parent.
func (c Classification) IsTethered() bool { return c == ClassificationTethered }

// UnmarshalJSON rejects unknown values.
func (c *Classification) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClassification(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
