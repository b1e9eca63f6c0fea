// Package app assembles a content repository from its stores and settings
// and hosts it as a long-running process.
//
// Repository is the in-process entry point: it routes content stream commands
// to the command engine and workspace commands to the workspace engine, and
// keeps every projection caught up after each write. Server wraps a
// Repository with a gRPC health endpoint, a Prometheus metrics endpoint and a
// periodic catch-up loop.
package app
