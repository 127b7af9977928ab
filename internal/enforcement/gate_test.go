package enforcement

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmemory/openmemory/internal/store"
	"github.com/openmemory/openmemory/types"
)

func newTestGate(t *testing.T) (*Gate, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db, zap.NewNop())
	require.NoError(t, err)
	return New(st, zap.NewNop()), st
}

func TestGate_RejectsMissingProjectName(t *testing.T) {
	g, _ := newTestGate(t)
	_, _, err := g.Check(context.Background(), Request{AgentName: "agent-1"})
	require.Error(t, err)
	assert.Equal(t, types.ErrEnforcementViolation, types.GetErrorCode(err))
}

func TestGate_RejectsWhenNoProjectState(t *testing.T) {
	g, _ := newTestGate(t)
	_, _, err := g.Check(context.Background(), Request{
		ProjectName: "proj", AgentName: "agent-1",
		PayloadKind: "action", Payload: map[string]any{"action": "did a thing"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrEnforcementViolation, types.GetErrorCode(err))
}

func TestGate_AllowsInitialStateWrite(t *testing.T) {
	g, _ := newTestGate(t)
	result, release, err := g.Check(context.Background(), Request{
		ProjectName: "proj", AgentName: "agent-1", Initial: true,
		PayloadKind: "state", Payload: map[string]any{"state": "{}"},
	})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	release()
}

func TestGate_RejectsMissingPayloadField(t *testing.T) {
	g, st := newTestGate(t)
	require.NoError(t, st.Insert(context.Background(), &store.Memory{
		ID: "state-1", Content: "{}", UserID: "ai-agent-system",
		PrimarySector: string(store.SectorSemantic), Tags: store.Tags{"project:proj", "state"}, Salience: 0.6,
	}))

	_, _, err := g.Check(context.Background(), Request{
		ProjectName: "proj", AgentName: "agent-1", UserID: "ai-agent-system",
		PayloadKind: "decision", Payload: map[string]any{"decision": "do the thing"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidationError, types.GetErrorCode(err))
}

func TestGate_LockExclusion(t *testing.T) {
	g, st := newTestGate(t)
	require.NoError(t, st.Insert(context.Background(), &store.Memory{
		ID: "state-1", Content: "{}", UserID: "ai-agent-system",
		PrimarySector: string(store.SectorSemantic), Tags: store.Tags{"project:proj", "state"}, Salience: 0.6,
	}))

	req := Request{
		ProjectName: "proj", UserID: "ai-agent-system", TaskID: "task-1",
		PayloadKind: "action", Payload: map[string]any{"action": "step one"},
	}

	req.AgentName = "agent-a"
	_, release, err := g.Check(context.Background(), req)
	require.NoError(t, err)

	req.AgentName = "agent-b"
	_, _, err = g.Check(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrResourceLocked, types.GetErrorCode(err))

	release()

	req.AgentName = "agent-b"
	_, release2, err := g.Check(context.Background(), req)
	require.NoError(t, err)
	release2()
}

func TestGate_StaleLockIsReclaimable(t *testing.T) {
	g, st := newTestGate(t)
	require.NoError(t, st.Insert(context.Background(), &store.Memory{
		ID: "state-1", Content: "{}", UserID: "ai-agent-system",
		PrimarySector: string(store.SectorSemantic), Tags: store.Tags{"project:proj", "state"}, Salience: 0.6,
	}))

	fixed := time.Now().Add(-10 * time.Minute)
	g.now = func() time.Time { return fixed }

	req := Request{
		ProjectName: "proj", UserID: "ai-agent-system", TaskID: "task-1", AgentName: "agent-a",
		PayloadKind: "action", Payload: map[string]any{"action": "step one"},
	}
	_, _, err := g.Check(context.Background(), req)
	require.NoError(t, err)

	g.now = time.Now
	req.AgentName = "agent-b"
	_, release, err := g.Check(context.Background(), req)
	require.NoError(t, err)
	release()
}

func TestGate_RejectsIncompleteDependency(t *testing.T) {
	g, st := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, &store.Memory{
		ID: "state-1", Content: "{}", UserID: "ai-agent-system",
		PrimarySector: string(store.SectorSemantic), Tags: store.Tags{"project:proj", "state"}, Salience: 0.6,
	}))
	require.NoError(t, st.Insert(ctx, &store.Memory{
		ID: "dep-1", Content: "dependency", UserID: "ai-agent-system",
		PrimarySector: string(store.SectorEpisodic), Tags: store.Tags{"project:proj"}, Salience: 0.5,
	}))

	_, _, err := g.Check(ctx, Request{
		ProjectName: "proj", AgentName: "agent-1", UserID: "ai-agent-system", TaskID: "task-2",
		PayloadKind: "action", Payload: map[string]any{"action": "step two"},
		Dependencies: []string{"dep-1"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrEnforcementViolation, types.GetErrorCode(err))
}
