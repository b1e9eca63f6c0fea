package integrity

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyringNotConfigured indicates signing was requested without keys.
	ErrKeyringNotConfigured = errors.New("hmac keyring is not configured")
	// ErrSignatureMismatch indicates a chain hash whose signature does not verify.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Keyring stores root HMAC keys and the active key id.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for HMAC signing and verification.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active hmac key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active hmac key id %q is not configured", activeKeyID)
	}
	return &Keyring{keys: keys, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the configured signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// SignChainHash signs a chain hash of stream with the active key.
func (k *Keyring) SignChainHash(stream, chainHash string) (signature, keyID string, err error) {
	if k == nil {
		return "", "", ErrKeyringNotConfigured
	}
	key, err := deriveStreamKey(k.keys[k.activeKeyID], stream)
	if err != nil {
		return "", "", err
	}
	return hmacSHA256Hex(key, chainHash), k.activeKeyID, nil
}

// VerifyChainHash validates a chain hash signature made by any known key.
func (k *Keyring) VerifyChainHash(stream, chainHash, signature, keyID string) error {
	if k == nil {
		return ErrKeyringNotConfigured
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return fmt.Errorf("signature key id is required")
	}
	rootKey, ok := k.keys[keyID]
	if !ok {
		return fmt.Errorf("signature key id %q is unknown", keyID)
	}
	key, err := deriveStreamKey(rootKey, stream)
	if err != nil {
		return err
	}
	expected := hmacSHA256Hex(key, chainHash)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func deriveStreamKey(rootKey []byte, stream string) ([]byte, error) {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, "stream:"+stream, 32)
	if err != nil {
		return nil, fmt.Errorf("derive stream key: %w", err)
	}
	return key, nil
}

func hmacSHA256Hex(key []byte, value string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
