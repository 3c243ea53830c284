package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sayit/api/internal/store"
)

type fakeSource struct {
	sections []store.SectionDetail
	speakers []store.Speaker
	err      error
	calls    int
}

func (f *fakeSource) SearchSections(_ context.Context, text string, limit, offset int) ([]store.SectionDetail, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.sections, len(f.sections), nil
}

func (f *fakeSource) SearchSpeakers(_ context.Context, text string, limit int) ([]store.Speaker, error) {
	f.calls++
	return f.speakers, f.err
}

type fakeIndex struct {
	mu        sync.Mutex
	healthy   bool
	resp      Response
	err       error
	sections  []SectionRecord
	speakers  []SpeakerRecord
	deleted   []int64
	forgotten []string
}

func (f *fakeIndex) Search(Query) (Response, error) { return f.resp, f.err }
func (f *fakeIndex) Healthy() bool                  { return f.healthy }

func (f *fakeIndex) IndexSections(records []SectionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sections = append(f.sections, records...)
	return nil
}

func (f *fakeIndex) DeleteSections(ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndex) IndexSpeakers(records []SpeakerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speakers = append(f.speakers, records...)
	return nil
}

func (f *fakeIndex) DeleteSpeakers(slugs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, slugs...)
	return nil
}

func detail(id int64, content string) store.SectionDetail {
	return store.SectionDetail{
		Section:     store.Section{ID: id, Filename: "talk", Speaker: "alice", Content: content},
		SpeakerName: "Alice",
		DisplayName: "Town hall",
	}
}

func TestSearchFallsBackToSQL(t *testing.T) {
	src := &fakeSource{
		sections: []store.SectionDetail{detail(1, "<p>Digital <b>ministry</b></p>")},
		speakers: []store.Speaker{{RoutePathname: "alice", Name: "Alice"}},
	}
	svc := NewService(nil, NewSQLFallback(src), zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: " ministry "})
	assert.Equal(t, "ministry", resp.Query)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Sections, 1)
	assert.Equal(t, "Digital <em>ministry</em>", resp.Sections[0].Snippet)
	assert.Equal(t, "Town hall", resp.Sections[0].DisplayName)
	require.Len(t, resp.Speakers, 1)
	assert.Equal(t, "Alice", resp.Speakers[0].Snippet)
}

func TestSearchPrefersHealthyIndex(t *testing.T) {
	src := &fakeSource{}
	idx := &fakeIndex{healthy: true, resp: Response{Query: "x", Total: 7}}
	svc := NewService(idx, NewSQLFallback(src), zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.Equal(t, 7, resp.Total)
	assert.Zero(t, src.calls)
}

func TestSearchIndexErrorFallsBack(t *testing.T) {
	src := &fakeSource{sections: []store.SectionDetail{detail(2, "<p>x marks</p>")}}
	idx := &fakeIndex{healthy: true, err: errors.New("timeout")}
	svc := NewService(idx, NewSQLFallback(src), zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 1, resp.Total)
}

func TestSearchErrorsGiveEmptyResponse(t *testing.T) {
	src := &fakeSource{err: errors.New("db gone")}
	svc := NewService(nil, NewSQLFallback(src), zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.Empty(t, resp.Sections)
	assert.NotNil(t, resp.Sections)

	resp = svc.Search(context.Background(), Query{Text: "   "})
	assert.Equal(t, "", resp.Query)
	assert.Equal(t, 1, src.calls, "blank queries never reach the store")
}

func TestIndexSpeechAndForget(t *testing.T) {
	idx := &fakeIndex{healthy: true}
	svc := NewService(idx, NewSQLFallback(&fakeSource{}), zerolog.Nop())

	svc.IndexSpeech(
		[]store.SectionDetail{detail(1, "<p>Hello &amp; welcome</p>")},
		[]store.Speaker{{RoutePathname: "%E5%94%90", Name: "唐"}},
	)
	svc.Forget([]int64{9}, []string{"bob"})
	svc.Wait()

	require.Len(t, idx.sections, 1)
	assert.Equal(t, "Hello & welcome", idx.sections[0].Text)
	assert.Equal(t, "Town hall", idx.sections[0].DisplayName)
	require.Len(t, idx.speakers, 1)
	assert.Equal(t, "254535253934253930", idx.speakers[0].ID)
	assert.Equal(t, []int64{9}, idx.deleted)
	assert.Equal(t, []string{"bob"}, idx.forgotten)
}

// orderedIndex records index writes and holds the first one until released.
type orderedIndex struct {
	fakeIndex
	first   chan struct{}
	release chan struct{}
	once    sync.Once
	ops     []string
}

func (o *orderedIndex) record(op string) {
	o.once.Do(func() {
		close(o.first)
		<-o.release
	})
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}

func (o *orderedIndex) IndexSections(records []SectionRecord) error {
	for _, r := range records {
		o.record(fmt.Sprintf("index %d", r.ID))
	}
	return nil
}

func (o *orderedIndex) DeleteSections(ids []int64) error {
	for _, id := range ids {
		o.record(fmt.Sprintf("delete %d", id))
	}
	return nil
}

func (o *orderedIndex) IndexSpeakers([]SpeakerRecord) error { return nil }
func (o *orderedIndex) DeleteSpeakers([]string) error       { return nil }

func TestIndexWritesApplyInSubmissionOrder(t *testing.T) {
	idx := &orderedIndex{
		fakeIndex: fakeIndex{healthy: true},
		first:     make(chan struct{}),
		release:   make(chan struct{}),
	}
	svc := NewService(idx, NewSQLFallback(&fakeSource{}), zerolog.Nop())

	svc.IndexSpeech([]store.SectionDetail{detail(1, "a")}, nil)
	<-idx.first
	// Queued while the first write is still running.
	svc.Forget([]int64{1}, nil)
	svc.IndexSpeech([]store.SectionDetail{detail(2, "b")}, nil)
	svc.Forget([]int64{2}, nil)
	close(idx.release)
	svc.Wait()

	assert.Equal(t, []string{"index 1", "delete 1", "index 2", "delete 2"}, idx.ops)
}

func TestIndexWritesSkippedWhenUnhealthy(t *testing.T) {
	idx := &fakeIndex{healthy: false}
	svc := NewService(idx, NewSQLFallback(&fakeSource{}), zerolog.Nop())
	svc.IndexSpeech([]store.SectionDetail{detail(1, "x")}, nil)
	svc.Wait()
	assert.Empty(t, idx.sections)
}

func TestQueryNormalized(t *testing.T) {
	q := Query{SpeakerLimit: 100, SectionLimit: -1, Offset: -5}.Normalized()
	assert.Equal(t, MaxSpeakerLimit, q.SpeakerLimit)
	assert.Equal(t, DefaultSectionLimit, q.SectionLimit)
	assert.Zero(t, q.Offset)
}
