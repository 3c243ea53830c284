package ingest

import (
	"errors"
	"fmt"
	"strconv"

	"sayit/api/internal/store"
)

const (
	// MaxRun is the longest insertion run one anchor can absorb.
	MaxRun = 99
	// maxProbes bounds the search for a free candidate ID.
	maxProbes = 300
	// topLevelDigits is the widest ID still treated as top level.
	topLevelDigits = 7
	// lookupChunk is how many consecutive IDs one TakenLookup call covers.
	lookupChunk = 512
)

var (
	ErrAllocationOverflow = errors.New("allocation overflow")
	ErrNoAnchor           = errors.New("no anchor available")
)

// TakenLookup returns the IDs in [lo, hi] that already belong to any speech.
type TakenLookup func(lo, hi int64) ([]int64, error)

// LookupError wraps a failed TakenLookup call.
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("look up taken section ids: %v", e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Allocator hands out section IDs for one reconcile call. It must not be
// shared between calls.
type Allocator struct {
	used     map[int64]struct{}
	topLevel map[int64]struct{}
	cursor   int64
	global   bool
	lookup   TakenLookup
	fetched  map[int64]struct{}
}

type AllocatorOption func(*Allocator)

// WithTakenLookup makes every candidate ID be checked against the whole
// store, not only the speech being reconciled.
func WithTakenLookup(lookup TakenLookup) AllocatorOption {
	return func(a *Allocator) { a.lookup = lookup }
}

// NewAllocator seeds the used set with the IDs already present in the speech.
// globalMax is the largest top-level ID in the system; a negative value means
// it is unknown and runs without an anchor fail with ErrNoAnchor.
func NewAllocator(used []int64, globalMax int64, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		used:     make(map[int64]struct{}, len(used)),
		topLevel: map[int64]struct{}{},
		cursor:   globalMax + 1,
		global:   globalMax >= 0,
		fetched:  map[int64]struct{}{},
	}
	for _, id := range used {
		a.used[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsTopLevel reports whether id was handed out by Sequential.
func (a *Allocator) IsTopLevel(id int64) bool {
	_, ok := a.topLevel[id]
	return ok
}

// Anchored returns n IDs for paragraphs inserted right after anchor. Top-level
// anchors shift left two decimal places (27 -> 2701, 2702, ...); anchors that
// are already derived count up from themselves.
func (a *Allocator) Anchored(anchor int64, n int) ([]int64, error) {
	if anchor <= 0 {
		return nil, ErrNoAnchor
	}
	if n > MaxRun {
		return nil, fmt.Errorf("%w: %d paragraphs inserted after section %d, limit is %d", ErrAllocationOverflow, n, anchor, MaxRun)
	}

	candidate := anchor + 1
	if len(strconv.FormatInt(anchor, 10)) <= topLevelDigits {
		candidate = anchor*100 + 1
	}

	ids := make([]int64, 0, n)
	for len(ids) < n {
		probes := 0
		for {
			taken, err := a.taken(candidate)
			if err != nil {
				return nil, err
			}
			if !taken {
				break
			}
			probes++
			if probes > maxProbes {
				return nil, fmt.Errorf("%w: no free id near section %d", ErrAllocationOverflow, anchor)
			}
			candidate++
		}
		a.claim(candidate)
		ids = append(ids, candidate)
		candidate++
	}
	return ids, nil
}

// Sequential returns n top-level IDs continuing the global sequence. It is
// used for a speech that has no sections yet.
func (a *Allocator) Sequential(n int) ([]int64, error) {
	if !a.global {
		return nil, ErrNoAnchor
	}
	ids := make([]int64, 0, n)
	for len(ids) < n {
		for {
			if a.cursor >= store.TopLevelLimit {
				return nil, fmt.Errorf("%w: top-level ids exhausted", ErrAllocationOverflow)
			}
			taken, err := a.taken(a.cursor)
			if err != nil {
				return nil, err
			}
			if !taken {
				break
			}
			a.cursor++
		}
		a.claim(a.cursor)
		a.topLevel[a.cursor] = struct{}{}
		ids = append(ids, a.cursor)
		a.cursor++
	}
	return ids, nil
}

// taken checks the local used set first, then loads the chunk around id from
// the lookup once.
func (a *Allocator) taken(id int64) (bool, error) {
	if _, ok := a.used[id]; ok {
		return true, nil
	}
	if a.lookup == nil {
		return false, nil
	}
	chunk := id / lookupChunk
	if _, ok := a.fetched[chunk]; ok {
		return false, nil
	}
	lo := chunk * lookupChunk
	found, err := a.lookup(lo, lo+lookupChunk-1)
	if err != nil {
		return false, &LookupError{Err: err}
	}
	a.fetched[chunk] = struct{}{}
	for _, other := range found {
		a.used[other] = struct{}{}
	}
	_, ok := a.used[id]
	return ok, nil
}

func (a *Allocator) claim(id int64) {
	a.used[id] = struct{}{}
}
