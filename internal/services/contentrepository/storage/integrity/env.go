package integrity

import (
	"fmt"
	"strings"

	"github.com/louisbranch/contentgraph/internal/platform/config"
)

const defaultKeyID = "v1"

type keyringEnv struct {
	Keys        string `env:"HMAC_KEYS"`
	ActiveKeyID string `env:"HMAC_ACTIVE_KEY" envDefault:"v1"`
}

// KeyringFromEnv loads CONTENTGRAPH_HMAC_KEYS ("id=secret,id2=secret2") and
// CONTENTGRAPH_HMAC_ACTIVE_KEY. Without keys it returns a nil keyring and
// events are stored unsigned.
func KeyringFromEnv() (*Keyring, error) {
	var cfg keyringEnv
	if err := config.ParseEnvWithPrefix(&cfg, config.EnvPrefix); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Keys) == "" {
		return nil, nil
	}
	entries, err := config.ParseKeyValueList(cfg.Keys)
	if err != nil {
		return nil, fmt.Errorf("invalid %sHMAC_KEYS: %w", config.EnvPrefix, err)
	}
	keys := make(map[string][]byte, len(entries))
	for id, secret := range entries {
		if secret == "" {
			return nil, fmt.Errorf("invalid %sHMAC_KEYS: empty secret for %q", config.EnvPrefix, id)
		}
		keys[id] = []byte(secret)
	}
	activeKeyID := strings.TrimSpace(cfg.ActiveKeyID)
	if activeKeyID == "" {
		activeKeyID = defaultKeyID
	}
	return NewKeyring(keys, activeKeyID)
}
