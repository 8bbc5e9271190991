package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two upstream entity types that end up on the
// timeline. The upstream sometimes mirrors one email as both an email record
// and a note record; the merger collapses those (see Fingerprint).
type Kind string

const (
	KindNote  Kind = "note"
	KindEmail Kind = "email"
)

// Item is the canonical, upstream-shape-independent form of a note or email.
// It is created by the normalizer (partially, author may still be empty),
// mutated only by the enricher and the author resolver, and is immutable once
// handed to the merger.
type Item struct {
	Kind      Kind
	ID        string
	CreatedAt time.Time
	Author    string // empty means unresolved, a valid terminal state
	Title     string
	Body      string
	Comments  []*Comment

	// TimeSynthesized marks CreatedAt as wall-clock fallback because no
	// source field parsed to a valid instant. It must never be treated as
	// ground truth.
	TimeSynthesized bool
}

// Comment is a canonical sub-record owned by exactly one parent Item.
type Comment struct {
	ID        string
	CreatedAt time.Time
	Author    string
	Body      string

	TimeSynthesized bool
}

// RunID identifies one export run.
type RunID string

// NewRunID generates a new unique RunID.
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// Timeline is the sole externally visible output of a run: the deduplicated,
// chronologically ordered items plus per-run diagnostics. Serialization is
// the renderer's concern.
type Timeline struct {
	RunID       RunID
	GeneratedAt time.Time
	Items       []*Item
	Report      Report
}

// CollectionStatus is the outcome of one top-level collection fetch.
type CollectionStatus string

const (
	CollectionOK     CollectionStatus = "ok"
	CollectionFailed CollectionStatus = "failed"
)

// CollectionOutcome records how one collection fetch went. A failed
// collection contributed zero items but did not abort the run unless every
// collection failed.
type CollectionOutcome struct {
	Collection string
	Status     CollectionStatus
	Items      int
	Error      string
}

// Report collects the diagnostics of a degraded run: which collections were
// fetched, and how many items lost their comments along the way. A run with
// a non-empty Report is still a complete, correctly ordered export.
type Report struct {
	Collections   []CollectionOutcome
	DegradedItems int
}

// Failed reports whether every collection fetch failed.
func (r *Report) Failed() bool {
	if len(r.Collections) == 0 {
		return false
	}
	for _, c := range r.Collections {
		if c.Status != CollectionFailed {
			return false
		}
	}
	return true
}
