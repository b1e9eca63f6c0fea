// Package encoding provides deterministic JSON and content hashes.
package encoding

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the digest length in bytes; hex output is twice as long.
const HashSize = 16

// CanonicalJSON marshals v with object keys sorted at every depth, numbers
// kept verbatim, no insignificant whitespace and no HTML escaping.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return Canonicalize(data)
}

// Canonicalize rewrites an existing JSON document into canonical form.
func Canonicalize(data []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("decode: trailing data")
	}

	// encoding/json writes map keys in sorted order, which is all the
	// ordering canonical form needs once structs are flattened to maps.
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(raw); err != nil {
		return nil, fmt.Errorf("encode canonical: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Hash returns the truncated blake3 digest of data as lowercase hex.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:HashSize])
}

// ContentHash hashes the canonical JSON form of v.
func ContentHash(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("canonical json: %w", err)
	}
	return Hash(canonical), nil
}
