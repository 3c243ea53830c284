package ingest

import "sayit/api/internal/store"

// Key is what two paragraphs must share to count as unchanged.
type Key struct {
	Speaker string
	Content string
}

func sectionKey(s store.Section) Key {
	return Key{Speaker: s.Speaker, Content: s.Content}
}

// Edit is one outcome of aligning the old sections with the new paragraphs:
// Matched, Inserted or Deleted.
type Edit interface {
	edit()
}

// Matched keeps the old section ID for a new paragraph. Exact is false when
// the paragraph changed and only inherits the ID by position.
type Matched struct {
	OldIndex int
	NewIndex int
	OldID    int64
	Exact    bool
}

// Inserted is a new paragraph that needs a fresh ID.
type Inserted struct {
	NewIndex int
}

// Deleted is an old section absent from the new text.
type Deleted struct {
	OldIndex int
	OldID    int64
}

func (Matched) edit()  {}
func (Inserted) edit() {}
func (Deleted) edit()  {}

type pair struct {
	old, new int
}

// Diff aligns old sections (in reading order) with new paragraph keys.
//
// Unchanged paragraphs are found with a longest common subsequence over Key.
// Between two unchanged paragraphs, new paragraphs take over the old IDs of
// that gap in order; surplus new paragraphs are insertions and surplus old
// sections are deletions.
//
// The first paragraph always keeps the first old ID, even when its content
// changed, so that editing the opening narration never moves the speech
// anchor. This is a product rule, not an LCS property.
//
// Edits are returned in new-text order with deletions at the end of the gap
// they belong to.
func Diff(old []store.Section, fresh []Key) []Edit {
	oldKeys := make([]Key, len(old))
	for i, s := range old {
		oldKeys[i] = sectionKey(s)
	}

	var pairs []pair
	if len(old) > 0 && len(fresh) > 0 && oldKeys[0] != fresh[0] {
		pairs = append(pairs, pair{0, 0})
		pairs = append(pairs, lcs(oldKeys, fresh, 1, 1)...)
	} else {
		pairs = lcs(oldKeys, fresh, 0, 0)
	}

	edits := make([]Edit, 0, len(old)+len(fresh))
	oi, ni := 0, 0
	gap := func(oldEnd, newEnd int) {
		for ; oi < oldEnd && ni < newEnd; oi, ni = oi+1, ni+1 {
			edits = append(edits, Matched{OldIndex: oi, NewIndex: ni, OldID: old[oi].ID})
		}
		for ; ni < newEnd; ni++ {
			edits = append(edits, Inserted{NewIndex: ni})
		}
		for ; oi < oldEnd; oi++ {
			edits = append(edits, Deleted{OldIndex: oi, OldID: old[oi].ID})
		}
	}
	for _, p := range pairs {
		gap(p.old, p.new)
		edits = append(edits, Matched{
			OldIndex: p.old,
			NewIndex: p.new,
			OldID:    old[p.old].ID,
			Exact:    oldKeys[p.old] == fresh[p.new],
		})
		oi, ni = p.old+1, p.new+1
	}
	gap(len(old), len(fresh))
	return edits
}

// lcs returns the ascending matched pairs of a[fromA:] and b[fromB:]. The
// table holds suffix lengths so the walk can run forward from the start.
func lcs(a, b []Key, fromA, fromB int) []pair {
	n, m := len(a)-fromA, len(b)-fromB
	if n <= 0 || m <= 0 {
		return nil
	}
	width := m + 1
	table := make([]int32, (n+1)*width)
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[fromA+i] == b[fromB+j] {
				table[i*width+j] = table[(i+1)*width+j+1] + 1
			} else if down, right := table[(i+1)*width+j], table[i*width+j+1]; down >= right {
				table[i*width+j] = down
			} else {
				table[i*width+j] = right
			}
		}
	}

	pairs := make([]pair, 0, table[0])
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case a[fromA+i] == b[fromB+j]:
			pairs = append(pairs, pair{fromA + i, fromB + j})
			i++
			j++
		case table[(i+1)*width+j] >= table[i*width+j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
