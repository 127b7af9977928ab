package hsg

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmemory/openmemory/internal/store"
)

func TestScoreWeightsCosineSalienceAndCoactivations(t *testing.T) {
	query := []float64{1, 0, 0}
	strong := &store.Memory{Embedding: []float64{1, 0, 0}, Salience: 1.0, Coactivations: 10}
	weak := &store.Memory{Embedding: []float64{1, 0, 0}, Salience: 0.1, Coactivations: 0}
	assert.Greater(t, Score(query, strong), Score(query, weak))

	orthogonal := &store.Memory{Embedding: []float64{0, 1, 0}, Salience: 1.0, Coactivations: 10}
	assert.Equal(t, 0.0, Score(query, orthogonal))
}

func TestQueryReturnsTopKAndTouchesResults(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := engine.Insert(ctx, "memory text", store.SectorSemantic, "u1", nil, nil, 0.5)
		require.NoError(t, err)
	}

	results, err := engine.Query(ctx, "memory text", QueryOptions{UserID: "u1", K: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	for _, r := range results {
		got, err := st.GetByID(ctx, r.Memory.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Coactivations)
	}
}

func TestQueryEmbedderFailureReturnsEmptyNotError(t *testing.T) {
	engine, _ := newTestEngine(t)
	results, err := engine.Query(context.Background(), "", QueryOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, results)
}

// stubCache is a minimal in-memory QueryCache used to exercise the
// SetCache-wired candidateSet path without a real Redis dependency.
type stubCache struct {
	store map[string][]byte
	hits  int
	misses int
}

func newStubCache() *stubCache {
	return &stubCache{store: make(map[string][]byte)}
}

func (c *stubCache) GetJSON(ctx context.Context, key string, dest any) error {
	raw, ok := c.store[key]
	if !ok {
		c.misses++
		return assertNotFoundErr
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *stubCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = raw
	return nil
}

var assertNotFoundErr = errNotFoundStub{}

type errNotFoundStub struct{}

func (errNotFoundStub) Error() string { return "not found in stub cache" }

// stubMetrics records RecordCacheHit/Miss calls so SetCache wiring is
// verifiable without importing internal/metrics.
type stubMetrics struct {
	hits   map[string]int
	misses map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{hits: make(map[string]int), misses: make(map[string]int)}
}

func (m *stubMetrics) RecordCacheHit(cacheType string)  { m.hits[cacheType]++ }
func (m *stubMetrics) RecordCacheMiss(cacheType string) { m.misses[cacheType]++ }

func TestQueryUsesCacheOnSecondCallWithSameScope(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Insert(ctx, "cached memory", store.SectorSemantic, "u1", nil, nil, 0.5)
	require.NoError(t, err)

	cache := newStubCache()
	metrics := newStubMetrics()
	engine.SetCache(cache, metrics)

	_, err = engine.Query(ctx, "cached memory", QueryOptions{UserID: "u1", K: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.misses["hsg_candidates"])
	assert.Equal(t, 0, metrics.hits["hsg_candidates"])

	_, err = engine.Query(ctx, "cached memory", QueryOptions{UserID: "u1", K: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.hits["hsg_candidates"])
}

func TestCandidateKeyStableUnderSectorOrder(t *testing.T) {
	a := candidateKey(QueryOptions{UserID: "u1", Sectors: []string{"semantic", "episodic"}})
	b := candidateKey(QueryOptions{UserID: "u1", Sectors: []string{"episodic", "semantic"}})
	assert.Equal(t, a, b)
}
