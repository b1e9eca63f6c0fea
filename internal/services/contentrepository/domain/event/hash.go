package event

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/core/encoding"
)

// ErrHashRequired indicates a chain hash was requested before the event hash.
var ErrHashRequired = errors.New("event hash is required")

type hashEnvelope struct {
	StreamName    string   `json:"stream_name"`
	StreamVersion uint64   `json:"stream_version"`
	Type          string   `json:"type"`
	Timestamp     string   `json:"timestamp"`
	Payload       []byte   `json:"payload"`
	Metadata      Metadata `json:"metadata"`
}

type chainEnvelope struct {
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
	Seq      uint64 `json:"seq"`
}

// EventHash computes the content hash of an event envelope.
func EventHash(evt Event) (string, error) {
	data, err := encoding.CanonicalJSON(hashEnvelope{
		StreamName:    string(evt.StreamName),
		StreamVersion: evt.StreamVersion,
		Type:          string(evt.Type),
		Timestamp:     evt.Timestamp.UTC().Format(time.RFC3339Nano),
		Payload:       evt.PayloadJSON,
		Metadata:      evt.Metadata,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash links an event to the chain hash of its stream predecessor.
func ChainHash(evt Event, prevHash string) (string, error) {
	if evt.Hash == "" {
		return "", ErrHashRequired
	}
	data, err := encoding.CanonicalJSON(chainEnvelope{
		Hash:     evt.Hash,
		PrevHash: prevHash,
		Seq:      evt.StreamVersion,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
