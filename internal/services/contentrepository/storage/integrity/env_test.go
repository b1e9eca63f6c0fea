package integrity

import "testing"

func TestKeyringFromEnv(t *testing.T) {
	t.Setenv("CONTENTGRAPH_HMAC_KEYS", "v1=alpha, v2=beta")
	t.Setenv("CONTENTGRAPH_HMAC_ACTIVE_KEY", "v2")
	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != "v2" {
		t.Fatalf("active key = %q, want v2", ring.ActiveKeyID())
	}
}

func TestKeyringFromEnvWithoutKeys(t *testing.T) {
	t.Setenv("CONTENTGRAPH_HMAC_KEYS", "")
	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring != nil {
		t.Fatal("expected nil keyring without keys")
	}
}

func TestKeyringFromEnvRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name   string
		keys   string
		active string
	}{
		{name: "missing separator", keys: "v1", active: "v1"},
		{name: "empty secret", keys: "v1=", active: "v1"},
		{name: "unknown active", keys: "v1=alpha", active: "v9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONTENTGRAPH_HMAC_KEYS", tt.keys)
			t.Setenv("CONTENTGRAPH_HMAC_ACTIVE_KEY", tt.active)
			if _, err := KeyringFromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
