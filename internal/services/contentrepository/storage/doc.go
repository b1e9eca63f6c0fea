// Package storage defines the read models and persistence contracts shared by
// the projections and the write side.
//
// Deciders read projected state through these interfaces; the sqlite package
// implements them on top of the projections database.
package storage
