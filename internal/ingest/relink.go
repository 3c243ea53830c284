package ingest

import (
	"fmt"

	"sayit/api/internal/store"
)

// Relink sets previous/next from list adjacency alone.
func Relink(sections []store.Section) {
	for i := range sections {
		sections[i].Previous = nil
		sections[i].Next = nil
		if i > 0 {
			sections[i].Previous = store.Int64Ptr(sections[i-1].ID)
		}
		if i < len(sections)-1 {
			sections[i].Next = store.Int64Ptr(sections[i+1].ID)
		}
	}
}

// CheckLinks verifies that walking next from the head visits every section
// once and ends at null, and that walking previous from the tail mirrors it.
func CheckLinks(sections []store.Section) error {
	if len(sections) == 0 {
		return nil
	}
	byID := make(map[int64]store.Section, len(sections))
	for _, s := range sections {
		if _, dup := byID[s.ID]; dup {
			return fmt.Errorf("duplicate section id %d", s.ID)
		}
		byID[s.ID] = s
	}

	var head, tail *store.Section
	for i := range sections {
		if sections[i].Previous == nil {
			if head != nil {
				return fmt.Errorf("sections %d and %d both start the list", head.ID, sections[i].ID)
			}
			head = &sections[i]
		}
		if sections[i].Next == nil {
			tail = &sections[i]
		}
	}
	if head == nil || tail == nil {
		return fmt.Errorf("links form a cycle")
	}

	forward := walk(byID, head.ID, func(s store.Section) *int64 { return s.Next })
	if len(forward) != len(sections) {
		return fmt.Errorf("forward walk visited %d of %d sections", len(forward), len(sections))
	}
	backward := walk(byID, tail.ID, func(s store.Section) *int64 { return s.Previous })
	if len(backward) != len(forward) {
		return fmt.Errorf("backward walk visited %d of %d sections", len(backward), len(forward))
	}
	for i := range forward {
		if forward[i] != backward[len(backward)-1-i] {
			return fmt.Errorf("backward walk diverges at section %d", forward[i])
		}
	}
	return nil
}

func walk(byID map[int64]store.Section, from int64, step func(store.Section) *int64) []int64 {
	seen := make(map[int64]bool, len(byID))
	var ids []int64
	id := from
	for {
		s, found := byID[id]
		if !found || seen[id] {
			break
		}
		seen[id] = true
		ids = append(ids, id)
		next := step(s)
		if next == nil {
			break
		}
		id = *next
	}
	return ids
}
