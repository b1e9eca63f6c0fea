// Package sqlite persists the event journal and the projections in SQLite.
//
// Two databases are used. The events database holds the append-only journal
// with its per-stream hash chain. The projections database holds the content
// graph, hidden state and workspace tables together with one checkpoint row
// per projection, so state and checkpoint always commit in one transaction.
package sqlite
