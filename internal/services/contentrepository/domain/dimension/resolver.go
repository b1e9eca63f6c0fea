package dimension

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

var (
	// ErrFallbackCycle indicates a dimension value that falls back to itself.
	ErrFallbackCycle = errors.New("dimension fallback graph contains a cycle")
	// ErrUnknownFallback indicates a fallback naming an undeclared value.
	ErrUnknownFallback = errors.New("dimension fallback names an unknown value")
	// ErrUnknownDefault indicates a default that is undeclared or not a root value.
	ErrUnknownDefault = errors.New("dimension default must be a declared root value")
	// ErrInvalidLanguage indicates a language dimension value that is not a BCP 47 tag.
	ErrInvalidLanguage = errors.New("language dimension value is not a valid language tag")
	// ErrDimensionInvalid indicates a missing name, duplicate dimension or empty value set.
	ErrDimensionInvalid = errors.New("dimension configuration is invalid")
	// ErrPointNotInSpace indicates a point outside the configured dimension space.
	ErrPointNotInSpace = errors.New("dimension space point is not in the configured space")
)

// KindLanguage validates every value as a language tag.
const KindLanguage = "language"

// ValueConfig declares one dimension value.
type ValueConfig struct {
	Fallback string `yaml:"fallback" toml:"fallback" json:"fallback,omitempty"`
}

// DimensionConfig declares one dimension. Earlier dimensions take precedence
// when fallback chains are ordered.
type DimensionConfig struct {
	Name    string                 `yaml:"name" toml:"name" json:"name"`
	Kind    string                 `yaml:"kind" toml:"kind" json:"kind,omitempty"`
	Default string                 `yaml:"default" toml:"default" json:"default,omitempty"`
	Values  map[string]ValueConfig `yaml:"values" toml:"values" json:"values"`
}

// Config is the dimension section of the repository settings.
type Config struct {
	Dimensions []DimensionConfig `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
}

type dimensionChains struct {
	name   string
	def    string
	values []string
	chains map[string][]string
}

// Resolver answers fallback questions over a fixed dimension space.
// Everything is computed by NewResolver; lookups never fail on configuration.
type Resolver struct {
	dimensions      []dimensionChains
	space           PointSet
	chains          map[Point][]Point
	specializations map[Point]PointSet
	defaultPoint    Point
}

// NewResolver validates cfg and precomputes the fallback graph.
func NewResolver(cfg Config) (*Resolver, error) {
	r := &Resolver{
		chains:          make(map[Point][]Point),
		specializations: make(map[Point]PointSet),
	}
	seen := make(map[string]struct{})
	defaults := make(map[string]string)
	for _, dc := range cfg.Dimensions {
		dim, err := buildDimension(dc)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[dim.name]; dup {
			return nil, fmt.Errorf("%w: duplicate dimension %q", ErrDimensionInvalid, dim.name)
		}
		seen[dim.name] = struct{}{}
		r.dimensions = append(r.dimensions, dim)
		defaults[dim.name] = dim.def
	}

	defaultPoint, err := NewPoint(defaults)
	if err != nil {
		return nil, err
	}
	r.defaultPoint = defaultPoint

	points := r.enumerate()
	r.space = NewPointSet(points...)
	inverse := make(map[Point][]Point)
	for _, p := range points {
		chain := r.chainFor(p)
		r.chains[p] = chain
		for _, general := range chain {
			inverse[general] = append(inverse[general], p)
		}
	}
	for general, specifics := range inverse {
		r.specializations[general] = NewPointSet(specifics...)
	}
	return r, nil
}

func buildDimension(dc DimensionConfig) (dimensionChains, error) {
	name := strings.TrimSpace(dc.Name)
	if name == "" {
		return dimensionChains{}, fmt.Errorf("%w: dimension name is required", ErrDimensionInvalid)
	}
	if len(dc.Values) == 0 {
		return dimensionChains{}, fmt.Errorf("%w: dimension %q declares no values", ErrDimensionInvalid, name)
	}
	dim := dimensionChains{name: name, chains: make(map[string][]string, len(dc.Values))}
	for value := range dc.Values {
		if strings.TrimSpace(value) == "" {
			return dimensionChains{}, fmt.Errorf("%w: dimension %q has an empty value", ErrDimensionInvalid, name)
		}
		if dc.Kind == KindLanguage {
			if _, err := language.Parse(strings.ReplaceAll(value, "_", "-")); err != nil {
				return dimensionChains{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidLanguage, name, value, err)
			}
		}
		dim.values = append(dim.values, value)
	}
	sort.Strings(dim.values)

	for _, value := range dim.values {
		chain := []string{value}
		visited := map[string]struct{}{value: {}}
		current := value
		for {
			next := strings.TrimSpace(dc.Values[current].Fallback)
			if next == "" {
				break
			}
			if _, ok := dc.Values[next]; !ok {
				return dimensionChains{}, fmt.Errorf("%w: %s=%q falls back to %q", ErrUnknownFallback, name, current, next)
			}
			if _, loop := visited[next]; loop {
				return dimensionChains{}, fmt.Errorf("%w: %s via %q", ErrFallbackCycle, name, strings.Join(append(chain, next), " -> "))
			}
			visited[next] = struct{}{}
			chain = append(chain, next)
			current = next
		}
		dim.chains[value] = chain
	}

	dim.def = strings.TrimSpace(dc.Default)
	if dim.def == "" {
		for _, value := range dim.values {
			if len(dim.chains[value]) == 1 {
				dim.def = value
				break
			}
		}
	}
	if chain, ok := dim.chains[dim.def]; !ok || len(chain) != 1 {
		return dimensionChains{}, fmt.Errorf("%w: %s default %q", ErrUnknownDefault, name, dim.def)
	}
	return dim, nil
}

// enumerate lists the cartesian product of all dimension values.
func (r *Resolver) enumerate() []Point {
	combos := []map[string]string{{}}
	for _, dim := range r.dimensions {
		next := make([]map[string]string, 0, len(combos)*len(dim.values))
		for _, combo := range combos {
			for _, value := range dim.values {
				extended := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[dim.name] = value
				next = append(next, extended)
			}
		}
		combos = next
	}
	points := make([]Point, 0, len(combos))
	for _, combo := range combos {
		points = append(points, MustPoint(combo))
	}
	return points
}

// chainFor orders generalizations by per-dimension depth, first dimension
// most significant: (0,0), (0,1), (1,0), (1,1), ...
func (r *Resolver) chainFor(p Point) []Point {
	coordinates := p.Coordinates()
	perDimension := make([][]string, len(r.dimensions))
	for i, dim := range r.dimensions {
		perDimension[i] = dim.chains[coordinates[dim.name]]
	}

	var chain []Point
	offsets := make([]int, len(r.dimensions))
	for {
		combo := make(map[string]string, len(r.dimensions))
		for i, dim := range r.dimensions {
			combo[dim.name] = perDimension[i][offsets[i]]
		}
		chain = append(chain, MustPoint(combo))

		i := len(offsets) - 1
		for ; i >= 0; i-- {
			offsets[i]++
			if offsets[i] < len(perDimension[i]) {
				break
			}
			offsets[i] = 0
		}
		if i < 0 {
			return chain
		}
	}
}

// Contains reports whether p is a configured point.
func (r *Resolver) Contains(p Point) bool {
	_, ok := r.chains[normalize(p)]
	return ok
}

// ValidatePoint returns ErrPointNotInSpace for unknown points.
func (r *Resolver) ValidatePoint(p Point) error {
	if !r.Contains(p) {
		return fmt.Errorf("%w: %s", ErrPointNotInSpace, p)
	}
	return nil
}

// AllPoints returns the whole configured space.
func (r *Resolver) AllPoints() PointSet {
	return r.space
}

// DefaultPoint combines every dimension's default value.
func (r *Resolver) DefaultPoint() Point {
	return r.defaultPoint
}

// ResolveFallbackChain returns p followed by its generalizations, most
// specific first, ending at a point made only of root values.
func (r *Resolver) ResolveFallbackChain(p Point) ([]Point, error) {
	chain, ok := r.chains[normalize(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPointNotInSpace, p)
	}
	return append([]Point(nil), chain...), nil
}

// Specializations returns p and every point whose fallback chain contains p.
func (r *Resolver) Specializations(p Point) (PointSet, error) {
	set, ok := r.specializations[normalize(p)]
	if !ok {
		return PointSet{}, fmt.Errorf("%w: %s", ErrPointNotInSpace, p)
	}
	return set, nil
}

// Generalizations returns the fallback chain of p as a set.
func (r *Resolver) Generalizations(p Point) (PointSet, error) {
	chain, err := r.ResolveFallbackChain(p)
	if err != nil {
		return PointSet{}, err
	}
	return NewPointSet(chain...), nil
}

// IsGeneralizationOf reports whether general is in the chain of specific.
func (r *Resolver) IsGeneralizationOf(general, specific Point) bool {
	return r.FallsBackTo(specific, general)
}

// FallsBackTo reports whether specific reaches general through its chain.
// A point falls back to itself.
func (r *Resolver) FallsBackTo(specific, general Point) bool {
	for _, candidate := range r.chains[normalize(specific)] {
		if candidate == normalize(general) {
			return true
		}
	}
	return false
}

// ResolveVisibleOrigin returns the first chain element of p found in occupied.
func (r *Resolver) ResolveVisibleOrigin(p Point, occupied PointSet) (Point, bool) {
	for _, candidate := range r.chains[normalize(p)] {
		if occupied.Contains(candidate) {
			return candidate, true
		}
	}
	return Point{}, false
}

// Dimensions lists configured dimension names in precedence order.
func (r *Resolver) Dimensions() []string {
	names := make([]string, 0, len(r.dimensions))
	for _, dim := range r.dimensions {
		names = append(names, dim.name)
	}
	return names
}
