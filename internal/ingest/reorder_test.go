package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sayit/api/internal/store"
)

func linked(id int64, prev, next int64) store.Section {
	s := store.Section{ID: id}
	if prev != 0 {
		s.Previous = store.Int64Ptr(prev)
	}
	if next != 0 {
		s.Next = store.Int64Ptr(next)
	}
	return s
}

func ids(sections []store.Section) []int64 {
	out := make([]int64, len(sections))
	for i, s := range sections {
		out[i] = s.ID
	}
	return out
}

func TestReorderFollowsLinks(t *testing.T) {
	// 2701 was inserted between 27 and 28, then stored in ID order.
	rows := []store.Section{
		linked(27, 0, 2701),
		linked(28, 2701, 0),
		linked(2701, 27, 28),
	}
	ordered, ordering := Reorder(rows)
	assert.Equal(t, OrderedByLinks, ordering)
	assert.Equal(t, []int64{27, 2701, 28}, ids(ordered))
}

func TestReorderTreatsOutsidePreviousAsHead(t *testing.T) {
	rows := []store.Section{
		linked(31, 30, 32),
		linked(32, 31, 0),
	}
	ordered, ordering := Reorder(rows)
	assert.Equal(t, OrderedByLinks, ordering)
	assert.Equal(t, []int64{31, 32}, ids(ordered))
}

func TestReorderBestEffort(t *testing.T) {
	t.Run("two heads", func(t *testing.T) {
		rows := []store.Section{
			linked(5, 0, 6),
			linked(6, 5, 0),
			linked(9, 0, 0),
			linked(3, 0, 0),
		}
		ordered, ordering := Reorder(rows)
		assert.Equal(t, OrderedBestEffort, ordering)
		assert.Equal(t, []int64{3, 5, 6, 9}, ids(ordered))
	})

	t.Run("cycle", func(t *testing.T) {
		rows := []store.Section{
			linked(8, 7, 7),
			linked(7, 8, 8),
		}
		ordered, ordering := Reorder(rows)
		assert.Equal(t, OrderedBestEffort, ordering)
		assert.Equal(t, []int64{7, 8}, ids(ordered))
	})

	t.Run("dangling next", func(t *testing.T) {
		rows := []store.Section{
			linked(1, 0, 99),
			linked(2, 1, 0),
		}
		ordered, ordering := Reorder(rows)
		assert.Equal(t, OrderedBestEffort, ordering)
		assert.Equal(t, []int64{1, 2}, ids(ordered))
	})
}

func TestReorderEmpty(t *testing.T) {
	ordered, ordering := Reorder(nil)
	assert.Equal(t, OrderedByLinks, ordering)
	assert.Empty(t, ordered)
}

func TestNormalizeSections(t *testing.T) {
	inOrder := []store.Section{linked(1, 0, 2), linked(2, 1, 0)}
	assert.Equal(t, inOrder, NormalizeSections(inOrder))

	rows := []store.Section{linked(27, 0, 2701), linked(28, 2701, 0), linked(2701, 27, 28)}
	assert.Equal(t, []int64{27, 2701, 28}, ids(NormalizeSections(rows)))
}

func TestCheckMonotonic(t *testing.T) {
	assert.True(t, CheckMonotonic(nil))
	assert.True(t, CheckMonotonic([]store.Section{{ID: 1}, {ID: 5}}))
	assert.False(t, CheckMonotonic([]store.Section{{ID: 5}, {ID: 5}}))
}

func TestRelinkAndCheckLinks(t *testing.T) {
	sections := []store.Section{{ID: 27}, {ID: 2701}, {ID: 28}}
	Relink(sections)
	require.NoError(t, CheckLinks(sections))
	assert.Nil(t, sections[0].Previous)
	assert.Equal(t, int64(2701), *sections[0].Next)
	assert.Equal(t, int64(27), *sections[1].Previous)
	assert.Equal(t, int64(28), *sections[1].Next)
	assert.Nil(t, sections[2].Next)

	single := []store.Section{{ID: 4, Previous: store.Int64Ptr(3)}}
	Relink(single)
	assert.Nil(t, single[0].Previous)
	assert.Nil(t, single[0].Next)
	assert.NoError(t, CheckLinks(single))
	assert.NoError(t, CheckLinks(nil))
}

func TestCheckLinksRejectsBrokenLists(t *testing.T) {
	tests := []struct {
		name     string
		sections []store.Section
	}{
		{name: "duplicate id", sections: []store.Section{linked(1, 0, 1), linked(1, 1, 0)}},
		{name: "two heads", sections: []store.Section{linked(1, 0, 0), linked(2, 0, 0)}},
		{name: "cycle", sections: []store.Section{linked(1, 2, 2), linked(2, 1, 1)}},
		{name: "skipped section", sections: []store.Section{linked(1, 0, 3), linked(2, 1, 3), linked(3, 2, 0)}},
		{name: "asymmetric", sections: []store.Section{linked(1, 0, 2), linked(2, 1, 3), linked(3, 1, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, CheckLinks(tt.sections))
		})
	}
}
