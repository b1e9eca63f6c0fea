// Package projection turns the event journal into the read models the
// write side and readers query: the content graph, the hidden state overlay
// and workspace metadata.
//
// Every projection applies one event per transaction through
// storage.ProjectionStore.ApplyExactlyOnce, so a re-delivered event is a
// no-op and a rebuild from zero yields the same tables as incremental
// application.
package projection
