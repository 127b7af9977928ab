package learning

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/embedding"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/store"
)

func newTestRig(t *testing.T) (*store.Store, *agentapi.API) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db, zap.NewNop())
	require.NoError(t, err)
	engine := hsg.New(st, embedding.NewDeterministic(16), hsg.Config{SectorLambda: map[string]float64{"episodic": 0.001}}, zap.NewNop())
	api := agentapi.New(engine, zap.NewNop())
	return st, api
}

func recordSuccessfulAction(t *testing.T, api *agentapi.API, action string) {
	t.Helper()
	ctx := context.Background()
	_, err := api.RecordAction(ctx, "proj", "u1", agentapi.ActionInput{
		AgentName: "agent-1",
		Action:    action,
		Outcome:   "success",
	})
	require.NoError(t, err)
}

func TestSuccessPatternExtractor_ExtractsApproach(t *testing.T) {
	st, api := newTestRig(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		recordSuccessfulAction(t, api, "wrote a failing test first before implementing the handler")
	}

	ext := NewSuccessPatternExtractor(st, api, zap.NewNop())
	report, err := ext.Run(ctx, "proj", "u1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Counts["extracted"], 1)
}

func TestQualityGate_FlagsStaleDecision(t *testing.T) {
	st, api := newTestRig(t)
	ctx := context.Background()

	db := st.DB()
	m, err := api.RecordDecision(ctx, "proj", "u1", agentapi.DecisionInput{
		Decision:  "adopt postgres for storage",
		Rationale: "acid guarantees",
	})
	require.NoError(t, err)

	old := m.CreatedAt.Add(-30 * 24 * time.Hour)
	require.NoError(t, db.Model(&store.Memory{}).Where("id = ?", m.ID).Update("created_at", old).Error)

	gate := NewQualityGate(st, api, zap.NewNop())
	report, err := gate.Run(ctx, "proj", "u1")
	require.NoError(t, err)
	assert.Greater(t, report.Counts["violations"], 0)
}

func TestAnomalyDetector_NoBaselineNoAnomalies(t *testing.T) {
	st, api := newTestRig(t)
	ctx := context.Background()

	recordSuccessfulAction(t, api, "first action with no history")

	det := NewAnomalyDetector(st, api, zap.NewNop())
	report, err := det.Run(ctx, "proj", "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Counts["anomalies"])
}
