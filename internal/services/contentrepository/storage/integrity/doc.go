// Package integrity signs and verifies the per-stream event hash chain.
//
// Hashes themselves are computed by the event package; this package only
// holds key material. Root keys are never used directly: each stream signs
// with a key derived from the root key and the stream name, so a leaked
// stream key does not expose other streams.
package integrity
