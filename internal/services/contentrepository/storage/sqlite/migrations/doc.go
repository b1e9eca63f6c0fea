// Package migrations embeds the SQL schema history of the event store and
// the projections database.
package migrations
