package export

import (
	"sort"

	"github.com/m-mizutani/caselog/pkg/model"
)

// MergeAndSort collapses cross-type duplicates and imposes the single global
// chronological order of the run. It is a pure function of its input: no I/O,
// deterministic, idempotent.
//
// Dedup rule: items colliding on fingerprint represent the same message
// emitted under two entity types; exactly one survives. The email wins over
// the note regardless of input order, since the email representation carries
// the richer header context. Same-kind collisions keep the first seen. No
// field merging across duplicates ever happens.
//
// Sort: ascending CreatedAt, ties keep input order (notes before emails when
// both collections produced an item at the same instant, matching the order
// the caller appended them).
func MergeAndSort(items []*model.Item) []*model.Item {
	keep := make([]bool, len(items))
	byFingerprint := make(map[string]int, len(items))

	for i, item := range items {
		fp := item.Fingerprint()
		prev, ok := byFingerprint[fp]
		if !ok {
			byFingerprint[fp] = i
			keep[i] = true
			continue
		}
		if items[prev].Kind == model.KindNote && item.Kind == model.KindEmail {
			keep[prev] = false
			keep[i] = true
			byFingerprint[fp] = i
		}
	}

	merged := make([]*model.Item, 0, len(items))
	for i, item := range items {
		if keep[i] {
			merged = append(merged, item)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	return merged
}
