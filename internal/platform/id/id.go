// Package id generates identifiers for content streams, events and derived nodes.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// tetheredNamespace seeds deterministic ids for auto-created child nodes.
var tetheredNamespace = uuid.MustParse("6f1b8a52-3f0e-4d53-9a43-0c0b8c7b1e5d")

// Generator produces new random identifiers.
type Generator func() (string, error)

// NewID returns a random, lowercase UUIDv4 string.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return value.String(), nil
}

// Derive returns a stable UUIDv5 for the given parts.
//
// The same parts always yield the same id, so a command that needs ids for
// auto-created children can be replayed without changing them.
func Derive(parts ...string) string {
	return uuid.NewSHA1(tetheredNamespace, []byte(strings.Join(parts, "/"))).String()
}

// Sequence returns a generator that yields prefix-1, prefix-2, ... for tests.
func Sequence(prefix string) Generator {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("%s-%d", prefix, next), nil
	}
}
