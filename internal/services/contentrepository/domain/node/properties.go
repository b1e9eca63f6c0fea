package node

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/core/encoding"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

// PropertyValues is the serialized property bag of one node variant.
// A JSON null value unsets the property when merged.
type PropertyValues map[ids.PropertyName]json.RawMessage

// ParsePropertyValues decodes a JSON object into a property bag.
func ParsePropertyValues(data []byte) (PropertyValues, error) {
	if len(data) == 0 {
		return PropertyValues{}, nil
	}
	var values PropertyValues
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	if values == nil {
		values = PropertyValues{}
	}
	return values, nil
}

// Names returns the property names in sorted order.
func (p PropertyValues) Names() []ids.PropertyName {
	names := make([]ids.PropertyName, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Merge returns a copy of p with updates applied; null updates remove keys.
func (p PropertyValues) Merge(updates PropertyValues) PropertyValues {
	merged := make(PropertyValues, len(p)+len(updates))
	for name, value := range p {
		merged[name] = append(json.RawMessage(nil), value...)
	}
	for name, value := range updates {
		if string(value) == "null" {
			delete(merged, name)
			continue
		}
		merged[name] = append(json.RawMessage(nil), value...)
	}
	return merged
}

// Get decodes one property into target. It reports false when unset.
func (p PropertyValues) Get(name ids.PropertyName, target any) (bool, error) {
	raw, ok := p[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return true, fmt.Errorf("decode property %s: %w", name, err)
	}
	return true, nil
}

// Canonical returns the canonical JSON object form.
func (p PropertyValues) Canonical() ([]byte, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	return encoding.CanonicalJSON(p)
}

// Equal compares canonical forms.
func (p PropertyValues) Equal(other PropertyValues) bool {
	left, err := p.Canonical()
	if err != nil {
		return false
	}
	right, err := other.Canonical()
	if err != nil {
		return false
	}
	return string(left) == string(right)
}
