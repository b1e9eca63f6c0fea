package integrity

import (
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

// Sign adds a signature to a hashed event. A nil keyring leaves it unsigned.
func Sign(ring *Keyring, evt *event.Event) error {
	if ring == nil {
		return nil
	}
	signature, keyID, err := ring.SignChainHash(string(evt.StreamName), evt.ChainHash)
	if err != nil {
		return fmt.Errorf("sign %s v%d: %w", evt.StreamName, evt.StreamVersion, err)
	}
	evt.Signature = signature
	evt.SignatureKeyID = keyID
	return nil
}

// ChainVerifier checks one stream's events in version order. Feed it pages
// with Next; it keeps the running chain between calls.
type ChainVerifier struct {
	ring        *Keyring
	stream      event.StreamName
	lastVersion uint64
	prevChain   string
}

// NewChainVerifier starts verification of stream. With a nil keyring,
// signatures are not checked.
func NewChainVerifier(ring *Keyring, stream event.StreamName) *ChainVerifier {
	return &ChainVerifier{ring: ring, stream: stream}
}

// Next verifies the next event of the stream.
func (v *ChainVerifier) Next(evt event.Event) error {
	if evt.StreamName != v.stream {
		return fmt.Errorf("event %s belongs to %s, verifying %s", evt.ID, evt.StreamName, v.stream)
	}
	if evt.StreamVersion != v.lastVersion+1 {
		return fmt.Errorf("stream version gap stream=%s expected=%d got=%d", v.stream, v.lastVersion+1, evt.StreamVersion)
	}
	if evt.StreamVersion == 1 && evt.PrevHash != "" {
		return fmt.Errorf("first event prev hash must be empty stream=%s", v.stream)
	}
	if evt.StreamVersion > 1 && evt.PrevHash != v.prevChain {
		return fmt.Errorf("prev hash mismatch stream=%s version=%d", v.stream, evt.StreamVersion)
	}
	hash, err := event.EventHash(evt)
	if err != nil {
		return fmt.Errorf("compute event hash stream=%s version=%d: %w", v.stream, evt.StreamVersion, err)
	}
	if hash != evt.Hash {
		return fmt.Errorf("event hash mismatch stream=%s version=%d", v.stream, evt.StreamVersion)
	}
	chainHash, err := event.ChainHash(evt, v.prevChain)
	if err != nil {
		return fmt.Errorf("compute chain hash stream=%s version=%d: %w", v.stream, evt.StreamVersion, err)
	}
	if chainHash != evt.ChainHash {
		return fmt.Errorf("chain hash mismatch stream=%s version=%d", v.stream, evt.StreamVersion)
	}
	if v.ring != nil {
		if err := v.ring.VerifyChainHash(string(v.stream), chainHash, evt.Signature, evt.SignatureKeyID); err != nil {
			return fmt.Errorf("signature stream=%s version=%d: %w", v.stream, evt.StreamVersion, err)
		}
	}
	v.prevChain = evt.ChainHash
	v.lastVersion = evt.StreamVersion
	return nil
}
