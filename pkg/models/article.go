// Package models holds the domain types shared across every pipeline stage:
// the raw per-article revision history produced by extraction (C4), and the
// delta-encoded article produced by the link-history diff (C7).
package models

import "time"

// RawArticle is the unit C4 emits and C5 stages. It decompresses/deserializes
// back to this exact shape (see the staging round-trip law in SPEC_FULL.md §8).
type RawArticle struct {
	Title     string         `cbor:"title"`
	Revisions []RawRevision  `cbor:"revisions"`
}

// RawRevision is one dump-order snapshot of an article's wikitext.
type RawRevision struct {
	Timestamp time.Time `cbor:"timestamp"`
	UserID    int64     `cbor:"user_id"`
	Links     []string  `cbor:"links"`
}

// Edge is a directed, temporally-scoped hyperlink from one article to another.
type Edge struct {
	DstID          int64
	CreatedAt      time.Time
	CreatedByUser  int64
	RemovedAt      *time.Time
	RemovedByUser  *int64
}

// DeltaEncodedArticle is C7's output: a dense article id, its normalized
// title, and the set of outbound edges derived from its revision history.
type DeltaEncodedArticle struct {
	ID    int64
	Title string
	Links []Edge
}
