package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTier struct {
	entries     map[string]Entry
	invalidated [][]string
	getErr      error
	invErr      error
}

func newMemTier() *memTier {
	return &memTier{entries: map[string]Entry{}}
}

func (m *memTier) Get(_ context.Context, key, variant string) (Entry, bool, error) {
	if m.getErr != nil {
		return Entry{}, false, m.getErr
	}
	e, ok := m.entries[objectName(key, variant)]
	return e, ok, nil
}

func (m *memTier) Put(_ context.Context, key, variant string, entry Entry) error {
	m.entries[objectName(key, variant)] = entry
	return nil
}

func (m *memTier) Invalidate(_ context.Context, keys []string) error {
	m.invalidated = append(m.invalidated, keys)
	return m.invErr
}

func TestFetchBuildsOnceThenHits(t *testing.T) {
	edge := newMemTier()
	svc := NewService(zerolog.Nop(), WithEdge(edge))
	builds := 0
	build := func(context.Context) (Entry, error) {
		builds++
		return Entry{ContentType: "application/json", Body: []byte("{}")}, nil
	}

	for i := 0; i < 2; i++ {
		entry, err := svc.Fetch(context.Background(), SpeechKey("talk"), "json", build)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(entry.Body))
	}
	assert.Equal(t, 1, builds)
}

func TestFetchRoutesDocumentsToObjectTier(t *testing.T) {
	edge, objects := newMemTier(), newMemTier()
	svc := NewService(zerolog.Nop(), WithEdge(edge), WithObjects(objects))
	build := func(context.Context) (Entry, error) { return Entry{Body: []byte("<akomaNtoso/>")}, nil }

	_, err := svc.Fetch(context.Background(), SpeechKey("talk"), "an", build)
	require.NoError(t, err)
	assert.Contains(t, objects.entries, "speech/talk/an")
	assert.Empty(t, edge.entries)
}

func TestFetchTreatsReadErrorsAsMiss(t *testing.T) {
	edge := newMemTier()
	edge.getErr = errors.New("redis down")
	svc := NewService(zerolog.Nop(), WithEdge(edge))

	entry, err := svc.Fetch(context.Background(), KeySpeakerIndex, "json", func(context.Context) (Entry, error) {
		return Entry{Body: []byte("fresh")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(entry.Body))
}

func TestFetchWithoutTiersAlwaysBuilds(t *testing.T) {
	svc := NewService(zerolog.Nop())
	boom := errors.New("boom")
	_, err := svc.Fetch(context.Background(), KeySpeechIndex, "json", func(context.Context) (Entry, error) {
		return Entry{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, svc.Invalidate(context.Background(), []string{KeySpeechIndex}))
}

func TestInvalidateReachesEveryTier(t *testing.T) {
	edge, objects := newMemTier(), newMemTier()
	edge.invErr = errors.New("edge down")
	svc := NewService(zerolog.Nop(), WithEdge(edge), WithObjects(objects))

	keys := []string{SpeechKey("talk"), SectionKey(1)}
	err := svc.Invalidate(context.Background(), keys)
	require.Error(t, err)
	assert.ErrorIs(t, err, edge.invErr)
	assert.Equal(t, [][]string{keys}, edge.invalidated)
	assert.Equal(t, [][]string{keys}, objects.invalidated, "a failing tier does not stop the others")
}

func TestKeys(t *testing.T) {
	filename, ok := SpeechFromKey(SpeechKey("2025-press"))
	assert.True(t, ok)
	assert.Equal(t, "2025-press", filename)

	id, ok := SectionFromKey(SectionKey(2701))
	assert.True(t, ok)
	assert.Equal(t, int64(2701), id)

	_, ok = SectionFromKey("section/abc")
	assert.False(t, ok)
	_, ok = SpeechFromKey(SpeakerKey("alice"))
	assert.False(t, ok)
}
