package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (m *memCache) GetDetectionCache(hash string) ([]byte, error) {
	return m.entries[hash], nil
}

func (m *memCache) SetDetectionCache(hash string, payload []byte) error {
	m.entries[hash] = payload
	return nil
}

func TestCachedAnalyzerMissThenHit(t *testing.T) {
	inner := &fakeAnalyzer{results: []*DetectionResult{{
		Items: []RawDetection{{Name: "Desk Lamp", Condition: "good"}},
	}}}
	cache := newMemCache()
	analyzer := NewCachedAnalyzer(inner, cache)

	opts := DetectOptions{Language: "en", Currency: "EUR"}

	first, err := analyzer.DetectItems(context.Background(), []byte("img"), opts)
	require.NoError(t, err)
	require.Len(t, inner.calls, 1)
	require.Len(t, cache.entries, 1)

	second, err := analyzer.DetectItems(context.Background(), []byte("img"), opts)
	require.NoError(t, err)
	assert.Len(t, inner.calls, 1, "cache hit must skip the model call")
	assert.Equal(t, first.Items, second.Items)
}

func TestCachedAnalyzerKeyIncludesContext(t *testing.T) {
	inner := &fakeAnalyzer{results: []*DetectionResult{{
		Items: []RawDetection{{Name: "Desk Lamp"}},
	}}}
	analyzer := NewCachedAnalyzer(inner, newMemCache())

	_, err := analyzer.DetectItems(context.Background(), []byte("img"), DetectOptions{Language: "en"})
	require.NoError(t, err)
	_, err = analyzer.DetectItems(context.Background(), []byte("img"), DetectOptions{Language: "fi"})
	require.NoError(t, err)
	_, err = analyzer.DetectItems(context.Background(), []byte("img"), DetectOptions{Language: "en", PriorItems: []string{"Mug"}})
	require.NoError(t, err)

	assert.Len(t, inner.calls, 3, "different language or prior context must not share cache entries")
}

func TestCachedAnalyzerDiscardsCorruptEntries(t *testing.T) {
	inner := &fakeAnalyzer{results: []*DetectionResult{{
		Items: []RawDetection{{Name: "Desk Lamp"}},
	}}}
	cache := newMemCache()
	analyzer := NewCachedAnalyzer(inner, cache)

	opts := DetectOptions{Language: "en"}
	cache.entries[hashRequest([]byte("img"), opts)] = []byte("{not json")

	result, err := analyzer.DetectItems(context.Background(), []byte("img"), opts)
	require.NoError(t, err)
	assert.Len(t, inner.calls, 1, "corrupt entry falls through to the model")
	assert.Equal(t, "Desk Lamp", result.Items[0].Name)
}

func TestCachedAnalyzerPropagatesErrors(t *testing.T) {
	inner := &fakeAnalyzer{err: ErrEmptyResponse}
	cache := newMemCache()
	analyzer := NewCachedAnalyzer(inner, cache)

	_, err := analyzer.DetectItems(context.Background(), []byte("img"), DetectOptions{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Empty(t, cache.entries, "failures are never cached")
}
