package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/enforcement"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/orchestration"
	"github.com/openmemory/openmemory/internal/store"
)

// Handlers holds every dependency the `/ai-agents/` route table needs:
// the Agent API façade, the HSG Engine and Record Store it sits on, the
// C10 orchestrator (also used for single-analyzer routes via its
// accessors), the C11 enforcement gate, and the default user id §6 names.
type Handlers struct {
	api           *agentapi.API
	engine        *hsg.Engine
	store         *store.Store
	orchestrator  *orchestration.Orchestrator
	gate          *enforcement.Gate
	broadcaster   *Broadcaster
	defaultUserID string
	logger        *zap.Logger
}

// New builds the full handler set. broadcaster may be nil when streaming
// is disabled; HandleAutonomous simply skips publishing in that case.
func New(api *agentapi.API, engine *hsg.Engine, st *store.Store, orch *orchestration.Orchestrator, gate *enforcement.Gate, broadcaster *Broadcaster, defaultUserID string, logger *zap.Logger) *Handlers {
	if defaultUserID == "" {
		defaultUserID = "ai-agent-system"
	}
	return &Handlers{
		api:           api,
		engine:        engine,
		store:         st,
		orchestrator:  orch,
		gate:          gate,
		broadcaster:   broadcaster,
		defaultUserID: defaultUserID,
		logger:        logger.With(zap.String("component", "httpapi")),
	}
}

// userIDOrDefault returns the user_id query param, or the project-wide
// default from §6 when absent.
func (h *Handlers) userIDOrDefault(r *http.Request) string {
	if uid := r.URL.Query().Get("user_id"); uid != "" {
		return uid
	}
	return h.defaultUserID
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
