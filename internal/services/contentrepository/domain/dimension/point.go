// Package dimension models dimension space points and their fallback graph.
package dimension

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/core/encoding"
)

// ErrPointInvalid indicates a malformed coordinate.
var ErrPointInvalid = errors.New("dimension space point is invalid")

// emptyKey is the canonical form of the point without coordinates.
const emptyKey = "{}"

// Point is a coordinate in the dimension space, for example
// {"language":"de","audience":"members"}.
//
// Points are comparable with ==; the zero value is the empty point used as
// the origin of root node aggregates.
type Point struct {
	key string
}

// OriginPoint marks the one point at which a node variant was authored.
type OriginPoint struct {
	Point
}

// NewPoint builds a point from dimension name to value.
func NewPoint(coordinates map[string]string) (Point, error) {
	if len(coordinates) == 0 {
		return Point{}, nil
	}
	clean := make(map[string]string, len(coordinates))
	for name, value := range coordinates {
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			return Point{}, fmt.Errorf("%w: empty dimension or value in %v", ErrPointInvalid, coordinates)
		}
		clean[name] = value
	}
	canonical, err := encoding.CanonicalJSON(clean)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrPointInvalid, err)
	}
	return Point{key: string(canonical)}, nil
}

// MustPoint is NewPoint for literals in tests and defaults.
func MustPoint(coordinates map[string]string) Point {
	p, err := NewPoint(coordinates)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePoint decodes the canonical JSON form.
func ParsePoint(raw string) (Point, error) {
	var p Point
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Coordinates returns a copy of the dimension values.
func (p Point) Coordinates() map[string]string {
	coordinates := make(map[string]string)
	if p.key == "" {
		return coordinates
	}
	_ = json.Unmarshal([]byte(p.key), &coordinates)
	return coordinates
}

// Value returns the coordinate for one dimension.
func (p Point) Value(dimension string) (string, bool) {
	value, ok := p.Coordinates()[dimension]
	return value, ok
}

// IsEmpty reports whether the point has no coordinates.
func (p Point) IsEmpty() bool {
	return p.key == "" || p.key == emptyKey
}

// String returns the canonical JSON form.
func (p Point) String() string {
	if p.key == "" {
		return emptyKey
	}
	return p.key
}

// Hash is the derived fast-compare key stored next to the raw point.
func (p Point) Hash() string {
	return encoding.Hash([]byte(p.String()))
}

// AsOrigin marks the point as the origin of a variant.
func (p Point) AsOrigin() OriginPoint {
	return OriginPoint{Point: p}
}

// ToPoint returns the plain point.
func (o OriginPoint) ToPoint() Point {
	return o.Point
}

// MarshalJSON writes the coordinate object.
func (p Point) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON reads a coordinate object; null reads as the empty point.
func (p *Point) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Point{}
		return nil
	}
	var coordinates map[string]string
	if err := json.Unmarshal(data, &coordinates); err != nil {
		return fmt.Errorf("%w: %v", ErrPointInvalid, err)
	}
	parsed, err := NewPoint(coordinates)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PointSet is a sorted, de-duplicated set of points.
type PointSet struct {
	points []Point
}

// NewPointSet builds a set from points in any order.
func NewPointSet(points ...Point) PointSet {
	seen := make(map[Point]struct{}, len(points))
	unique := make([]Point, 0, len(points))
	for _, p := range points {
		p = normalize(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].String() < unique[j].String() })
	return PointSet{points: unique}
}

// normalize maps the explicit "{}" key onto the zero value.
func normalize(p Point) Point {
	if p.key == emptyKey {
		return Point{}
	}
	return p
}

// Points returns the members in canonical order.
func (s PointSet) Points() []Point {
	return append([]Point(nil), s.points...)
}

// Len returns the number of members.
func (s PointSet) Len() int {
	return len(s.points)
}

// IsEmpty reports whether the set has no members.
func (s PointSet) IsEmpty() bool {
	return len(s.points) == 0
}

// Contains reports membership.
func (s PointSet) Contains(p Point) bool {
	p = normalize(p)
	idx := sort.Search(len(s.points), func(i int) bool { return s.points[i].String() >= p.String() })
	return idx < len(s.points) && s.points[idx] == p
}

// Intersect returns members present in both sets.
func (s PointSet) Intersect(other PointSet) PointSet {
	var out []Point
	for _, p := range s.points {
		if other.Contains(p) {
			out = append(out, p)
		}
	}
	return PointSet{points: out}
}

// Union returns members present in either set.
func (s PointSet) Union(other PointSet) PointSet {
	return NewPointSet(append(s.Points(), other.points...)...)
}

// Without returns members not present in other.
func (s PointSet) Without(other PointSet) PointSet {
	var out []Point
	for _, p := range s.points {
		if !other.Contains(p) {
			out = append(out, p)
		}
	}
	return PointSet{points: out}
}

// Equal compares membership.
func (s PointSet) Equal(other PointSet) bool {
	if len(s.points) != len(other.points) {
		return false
	}
	for i := range s.points {
		if s.points[i] != other.points[i] {
			return false
		}
	}
	return true
}

// MarshalJSON writes the members as an array.
func (s PointSet) MarshalJSON() ([]byte, error) {
	if s.points == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.points)
}

// UnmarshalJSON reads an array of points.
func (s *PointSet) UnmarshalJSON(data []byte) error {
	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	*s = NewPointSet(points...)
	return nil
}
