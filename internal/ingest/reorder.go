package ingest

import (
	"sort"

	"sayit/api/internal/store"
)

// Ordering reports how Reorder arrived at its result.
type Ordering int

const (
	// OrderedByLinks means one walk from a single head reached every section.
	OrderedByLinks Ordering = iota
	// OrderedBestEffort means the links were broken: several heads, a cycle,
	// or sections the walk never reached. Unreached sections follow in ID order.
	OrderedBestEffort
)

// CheckMonotonic reports whether section IDs strictly increase.
func CheckMonotonic(sections []store.Section) bool {
	for i := 1; i < len(sections); i++ {
		if sections[i].ID <= sections[i-1].ID {
			return false
		}
	}
	return true
}

// NormalizeSections keeps rows whose IDs already increase and whose links
// agree with that order, and reorders everything else.
func NormalizeSections(rows []store.Section) []store.Section {
	if CheckMonotonic(rows) && linksFollowOrder(rows) {
		return rows
	}
	ordered, _ := Reorder(rows)
	return ordered
}

// Reorder reconstructs reading order by walking next links from the head.
// The head is the section whose previous link is null or points outside the
// set, the smallest ID winning ties; with no such section (a cycle) the
// smallest ID is used.
func Reorder(rows []store.Section) ([]store.Section, Ordering) {
	if len(rows) == 0 {
		return []store.Section{}, OrderedByLinks
	}

	byID := make(map[int64]int, len(rows))
	for i, row := range rows {
		byID[row.ID] = i
	}

	heads := 0
	head := -1
	for i, row := range rows {
		if row.Previous != nil {
			if _, ok := byID[*row.Previous]; ok {
				continue
			}
		}
		heads++
		if head < 0 || row.ID < rows[head].ID {
			head = i
		}
	}
	ordering := OrderedByLinks
	if heads != 1 {
		ordering = OrderedBestEffort
	}
	if head < 0 {
		head = 0
		for i, row := range rows {
			if row.ID < rows[head].ID {
				head = i
			}
		}
	}

	ordered := make([]store.Section, 0, len(rows))
	visited := make(map[int64]bool, len(rows))
	for i, ok := head, true; ok && !visited[rows[i].ID]; {
		visited[rows[i].ID] = true
		ordered = append(ordered, rows[i])
		next := rows[i].Next
		if next == nil {
			break
		}
		i, ok = byID[*next]
	}

	if len(ordered) < len(rows) {
		ordering = OrderedBestEffort
		rest := make([]store.Section, 0, len(rows)-len(ordered))
		for _, row := range rows {
			if !visited[row.ID] {
				rest = append(rest, row)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i].ID < rest[j].ID })
		ordered = append(ordered, rest...)
	}
	return ordered, ordering
}

func linksFollowOrder(rows []store.Section) bool {
	for i, row := range rows {
		if !sameLink(row.Previous, rows, i-1) || !sameLink(row.Next, rows, i+1) {
			return false
		}
	}
	return true
}

func sameLink(link *int64, rows []store.Section, i int) bool {
	if i < 0 || i >= len(rows) {
		return link == nil
	}
	return link != nil && *link == rows[i].ID
}
