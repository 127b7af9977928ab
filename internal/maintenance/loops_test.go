package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmemory/openmemory/internal/embedding"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/store"
)

func newTestEngine(t *testing.T) *hsg.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	st, err := store.New(db, zap.NewNop())
	require.NoError(t, err)

	emb := embedding.NewDeterministic(16)
	cfg := hsg.Config{SectorLambda: map[string]float64{
		"semantic":   0.005,
		"episodic":   0.015,
		"procedural": 0.008,
		"reflective": 0.001,
		"emotional":  0.020,
	}}
	return hsg.New(st, emb, cfg, zap.NewNop())
}

func TestLoops_StartStop(t *testing.T) {
	engine := newTestEngine(t)
	loops := New(engine, 50*time.Millisecond, 0.1, nil, zap.NewNop())

	loops.Start()
	time.Sleep(120 * time.Millisecond)
	loops.Stop()
}

func TestLoops_DecayTickRunsOnBoot(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.Insert(context.Background(), "boot memory", store.SectorSemantic, "user-1", nil, nil, 0.9)
	require.NoError(t, err)

	loops := New(engine, time.Hour, 0.1, nil, zap.NewNop())
	loops.runDecayTick()
}
