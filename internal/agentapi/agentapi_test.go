package agentapi

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmemory/openmemory/internal/embedding"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/store"
)

func newTestAPI(t *testing.T) (*API, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	st, err := store.New(db, zap.NewNop())
	require.NoError(t, err)

	emb := embedding.NewDeterministic(16)
	cfg := hsg.Config{SectorLambda: map[string]float64{"episodic": 0.015}}
	engine := hsg.New(st, emb, cfg, zap.NewNop())
	return New(engine, zap.NewNop()), st
}

func TestRecordAction_AutoWaypoints(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()

	decision, err := api.RecordDecision(ctx, "proj", "u1", DecisionInput{Decision: "use postgres", Rationale: "scale"})
	require.NoError(t, err)

	action, err := api.RecordAction(ctx, "proj", "u1", ActionInput{
		AgentName:       "agent-1",
		Action:          "wired the postgres driver",
		RelatedDecision: decision.ID,
	})
	require.NoError(t, err)

	edges, err := st.WaypointsFrom(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, decision.ID, edges[0].DstID)
	assert.Equal(t, weightRelatedDecision, edges[0].Weight)
}

func TestRecordEmotion_RejectsUnknownSentiment(t *testing.T) {
	api, _ := newTestAPI(t)
	_, err := api.RecordEmotion(context.Background(), "proj", "u1", EmotionInput{
		AgentName: "agent-1",
		Feeling:   "anxious",
		Sentiment: "bogus",
	})
	require.Error(t, err)
}

func TestContext_ModeTransitionsToResume(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()

	before, err := api.Context(ctx, st, "proj", "u1")
	require.NoError(t, err)
	assert.Equal(t, "INITIALIZE", before.Mode)

	_, err = api.StoreState(ctx, "proj", "u1", map[string]string{"phase": "build"})
	require.NoError(t, err)

	after, err := api.Context(ctx, st, "proj", "u1")
	require.NoError(t, err)
	assert.Equal(t, "RESUME", after.Mode)
	assert.NotNil(t, after.State)
}
