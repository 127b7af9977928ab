package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/embedding"
	"github.com/openmemory/openmemory/internal/enforcement"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/orchestration"
	"github.com/openmemory/openmemory/internal/store"
)

func newTestHandlers(t *testing.T) *Handlers {
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
	gate := enforcement.New(st, zap.NewNop())
	orch := orchestration.New(st, engine, api, zap.NewNop())

	return New(api, engine, st, orch, gate, nil, "test-user", zap.NewNop())
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleStateUpsertAndGet(t *testing.T) {
	h := newTestHandlers(t)

	body, _ := json.Marshal(stateRequest{ProjectName: "proj1", State: map[string]any{"phase": "build"}})
	req := httptest.NewRequest(http.MethodPost, "/state", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleStateUpsert(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	getReq := httptest.NewRequest(http.MethodGet, "/state/proj1", nil)
	getReq.SetPathValue("project", "proj1")
	getRec := httptest.NewRecorder()
	h.HandleStateGet(getRec, getReq)

	require.Equal(t, http.StatusOK, getRec.Code)
	getResp := decodeResponse(t, getRec)
	assert.True(t, getResp.Success)
}

func TestHandleStateGetMissingProjectReturnsInitialize(t *testing.T) {
	h := newTestHandlers(t)

	getReq := httptest.NewRequest(http.MethodGet, "/state/unknown", nil)
	getReq.SetPathValue("project", "unknown")
	rec := httptest.NewRecorder()
	h.HandleStateGet(rec, getReq)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INITIALIZE", data["mode"])
}

func TestHandleActionRejectsUnknownFields(t *testing.T) {
	h := newTestHandlers(t)

	body := []byte(`{"project_name":"p","agent_name":"a","action":"x","bogus_field":"y"}`)
	req := httptest.NewRequest(http.MethodPost, "/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleAction(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleActionSucceeds(t *testing.T) {
	h := newTestHandlers(t)

	// The enforcement gate requires an existing project state before any
	// non-initial write; seed one directly through the Agent API.
	_, err := h.api.StoreState(context.Background(), "p", "test-user", map[string]any{"phase": "start"})
	require.NoError(t, err)

	body, _ := json.Marshal(actionRequest{ProjectName: "p", AgentName: "a", Action: "did a thing", Outcome: "success"})
	req := httptest.NewRequest(http.MethodPost, "/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleAction(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealthHandlerLivenessAlwaysHealthy(t *testing.T) {
	hh := NewHealthHandler(zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	hh.HandleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestHealthHandlerReadyFailsOnBadCheck(t *testing.T) {
	hh := NewHealthHandler(zap.NewNop())
	hh.RegisterCheck(NewDatabaseHealthCheck("database", func(ctx context.Context) error { return assertFailErr }))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	hh.HandleReady(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandlerReadyPassesOnGoodCheck(t *testing.T) {
	hh := NewHealthHandler(zap.NewNop())
	hh.RegisterCheck(NewDatabaseHealthCheck("database", func(ctx context.Context) error { return nil }))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	hh.HandleReady(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

var assertFailErr = errFailStub{}

type errFailStub struct{}

func (errFailStub) Error() string { return "dependency unavailable" }
