// Package timeouts collects the durations shared by the server and the CLI.
package timeouts

import "time"

// ReadHeader limits how long the metrics endpoint waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the metrics endpoint drains in-flight requests.
const Shutdown = 5 * time.Second

// HealthCheck caps a single health RPC.
const HealthCheck = time.Second

// HealthWait is how long clients wait by default for a server to report
// SERVING.
const HealthWait = 5 * time.Second
