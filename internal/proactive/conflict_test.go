package proactive

import (
	"context"
	"testing"

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

func newTestConflictDetector(t *testing.T) (*ConflictDetector, *agentapi.API) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	st, err := store.New(db, zap.NewNop())
	require.NoError(t, err)

	emb := embedding.NewDeterministic(16)
	cfg := hsg.Config{SectorLambda: map[string]float64{
		"semantic": 0.005, "episodic": 0.015, "procedural": 0.008,
		"reflective": 0.001, "emotional": 0.02,
	}}
	engine := hsg.New(st, emb, cfg, zap.NewNop())
	api := agentapi.New(engine, zap.NewNop())
	return NewConflictDetector(st, api, zap.NewNop()), api
}

func TestConflictDetectorFindsDecisionContradiction(t *testing.T) {
	detector, api := newTestConflictDetector(t)
	ctx := context.Background()

	_, err := api.RecordDecision(ctx, "proj", "u1", agentapi.DecisionInput{
		Decision: "use synchronous api for service calls", Rationale: "simplicity",
	})
	require.NoError(t, err)
	_, err = api.RecordDecision(ctx, "proj", "u1", agentapi.DecisionInput{
		Decision: "move to event driven architecture", Rationale: "scalability",
	})
	require.NoError(t, err)

	report, err := detector.Run(ctx, "proj", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts["decision_contradictions"])

	found := false
	for _, issue := range report.Issues {
		if issue.Kind == "decision_contradiction" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConflictDetectorFindsResourceConflict(t *testing.T) {
	detector, api := newTestConflictDetector(t)
	ctx := context.Background()

	_, err := api.RecordAction(ctx, "proj", "u1", agentapi.ActionInput{
		AgentName: "a1", Action: "started server on :8080", Outcome: "success",
	})
	require.NoError(t, err)
	_, err = api.RecordAction(ctx, "proj", "u1", agentapi.ActionInput{
		AgentName: "a2", Action: "started worker on :8080", Outcome: "success",
	})
	require.NoError(t, err)

	report, err := detector.Run(ctx, "proj", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts["resource_conflicts"])
}

func TestConflictDetectorNoIssuesOnCleanHistory(t *testing.T) {
	detector, api := newTestConflictDetector(t)
	ctx := context.Background()

	_, err := api.RecordDecision(ctx, "proj", "u1", agentapi.DecisionInput{
		Decision: "adopt postgres for storage", Rationale: "durability",
	})
	require.NoError(t, err)

	report, err := detector.Run(ctx, "proj", "u1")
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestConflictDetectorName(t *testing.T) {
	detector, _ := newTestConflictDetector(t)
	assert.Equal(t, "conflict_detector", detector.Name())
}
