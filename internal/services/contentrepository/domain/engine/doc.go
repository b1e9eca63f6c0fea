// Package engine wires command validation, snapshot loading, decision
// dispatch and optimistic event append for content stream commands.
//
// Deciders are pure functions of a command and a read-only snapshot of the
// content graph. The handler appends their events with the stream version
// the snapshot was taken at, so a concurrent writer turns into a
// concurrency conflict instead of a lost update.
package engine
