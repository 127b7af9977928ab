package hsg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmemory/openmemory/internal/store"
)

func TestDecayTickSkipsUntouchedMemories(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Insert(ctx, "fresh memory", store.SectorSemantic, "u1", nil, nil, 0.5)
	require.NoError(t, err)

	result, err := engine.DecayTick(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Decayed)
}

func TestDecayTickAppliesSectorLambda(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	m, err := engine.Insert(ctx, "stale memory", store.SectorEpisodic, "u1", nil, nil, 0.8)
	require.NoError(t, err)

	past := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, st.UpdateMemoryFields(ctx, m.ID, store.MemoryFields{LastSeenAt: &past}))

	result, err := engine.DecayTick(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Decayed)

	got, err := st.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Less(t, got.Salience, 0.8)
}

func TestDecayTickFloorsAtMinimumSalience(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	m, err := engine.Insert(ctx, "ancient memory", store.SectorEmotional, "u1", nil, nil, 0.9)
	require.NoError(t, err)

	past := time.Now().Add(-3650 * 24 * time.Hour)
	require.NoError(t, st.UpdateMemoryFields(ctx, m.ID, store.MemoryFields{LastSeenAt: &past}))

	result, err := engine.DecayTick(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Floored)

	got, err := st.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.1, got.Salience)
}

func TestDecayTickHandlesMultipleBatches(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := engine.Insert(ctx, "batch memory", store.SectorProcedural, "u1", nil, nil, 0.5)
		require.NoError(t, err)
	}

	result, err := engine.DecayTick(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, result.Scanned)
}
