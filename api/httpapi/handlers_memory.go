package httpapi

import (
	"net/http"
	"time"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/enforcement"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/types"
)

type writeMeta struct {
	TaskID       string   `json:"task_id,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// --- /state ---------------------------------------------------------------

type stateRequest struct {
	ProjectName string `json:"project_name"`
	State       any    `json:"state"`
	writeMeta
}

// HandleStateUpsert handles `POST /state`.
func (h *Handlers) HandleStateUpsert(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: "system", UserID: userID,
		PayloadKind: "state", Payload: map[string]any{"state": req.State},
		TaskID: req.TaskID, Dependencies: req.Dependencies, Initial: true,
	})
	if !ok {
		return
	}
	defer release()

	m, err := h.api.StoreState(r.Context(), req.ProjectName, userID, req.State)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, m)
}

// HandleStateGet handles `GET /state/{project}`.
func (h *Handlers) HandleStateGet(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	userID := h.userIDOrDefault(r)

	ctxResult, err := h.api.Context(r.Context(), h.store, project, userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if ctxResult.State == nil {
		WriteJSON(w, http.StatusNotFound, Response{
			Success:   true,
			Data:      map[string]any{"mode": "INITIALIZE"},
			Timestamp: nowRFC3339(),
			RequestID: w.Header().Get("X-Request-ID"),
		})
		return
	}
	WriteSuccess(w, r, map[string]any{"mode": "RESUME", "state": ctxResult.State})
}

// --- /action ----------------------------------------------------------------

type actionRequest struct {
	ProjectName     string `json:"project_name"`
	AgentName       string `json:"agent_name"`
	Action          string `json:"action"`
	Outcome         string `json:"outcome"`
	RelatedDecision string `json:"related_decision"`
	UsedPattern     string `json:"used_pattern"`
	writeMeta
}

func (h *Handlers) HandleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: req.AgentName, UserID: userID,
		PayloadKind: "action", Payload: map[string]any{"action": req.Action},
		TaskID: req.TaskID, Dependencies: req.Dependencies,
	})
	if !ok {
		return
	}
	defer release()

	m, err := h.api.RecordAction(r.Context(), req.ProjectName, userID, agentapi.ActionInput{
		AgentName: req.AgentName, Action: req.Action, Outcome: req.Outcome,
		RelatedDecision: req.RelatedDecision, UsedPattern: req.UsedPattern,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, m)
}

// --- /pattern -----------------------------------------------------------------

type patternRequest struct {
	ProjectName string   `json:"project_name"`
	PatternName string   `json:"pattern_name"`
	Description string   `json:"description"`
	Example     string   `json:"example"`
	Tags        []string `json:"tags"`
	writeMeta
}

func (h *Handlers) HandlePattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: "system", UserID: userID,
		PayloadKind: "pattern",
		Payload:     map[string]any{"pattern_name": req.PatternName, "description": req.Description},
		TaskID:      req.TaskID, Dependencies: req.Dependencies,
	})
	if !ok {
		return
	}
	defer release()

	m, err := h.api.RecordPattern(r.Context(), req.ProjectName, userID, agentapi.PatternInput{
		PatternName: req.PatternName, Description: req.Description, Example: req.Example, Tags: req.Tags,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, m)
}

// --- /decision -----------------------------------------------------------------

type decisionRequest struct {
	ProjectName  string `json:"project_name"`
	Decision     string `json:"decision"`
	Rationale    string `json:"rationale"`
	Alternatives string `json:"alternatives"`
	Consequences string `json:"consequences"`
	writeMeta
}

func (h *Handlers) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: "system", UserID: userID,
		PayloadKind: "decision",
		Payload:     map[string]any{"decision": req.Decision, "rationale": req.Rationale},
		TaskID:      req.TaskID, Dependencies: req.Dependencies,
	})
	if !ok {
		return
	}
	defer release()

	m, err := h.api.RecordDecision(r.Context(), req.ProjectName, userID, agentapi.DecisionInput{
		Decision: req.Decision, Rationale: req.Rationale, Alternatives: req.Alternatives, Consequences: req.Consequences,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, m)
}

// --- /emotion -----------------------------------------------------------------

type emotionRequest struct {
	ProjectName   string  `json:"project_name"`
	AgentName     string  `json:"agent_name"`
	Feeling       string  `json:"feeling"`
	Sentiment     string  `json:"sentiment"`
	Confidence    float64 `json:"confidence"`
	RelatedAction string  `json:"related_action"`
	writeMeta
}

func (h *Handlers) HandleEmotion(w http.ResponseWriter, r *http.Request) {
	var req emotionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: req.AgentName, UserID: userID,
		PayloadKind: "emotion", Payload: map[string]any{"feeling": req.Feeling},
		TaskID: req.TaskID, Dependencies: req.Dependencies,
	})
	if !ok {
		return
	}
	defer release()

	m, err := h.api.RecordEmotion(r.Context(), req.ProjectName, userID, agentapi.EmotionInput{
		AgentName: req.AgentName, Feeling: req.Feeling, Sentiment: req.Sentiment,
		Confidence: req.Confidence, RelatedAction: req.RelatedAction,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, m)
}

// --- /link -----------------------------------------------------------------

type linkRequest struct {
	ProjectName  string  `json:"project_name"`
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Weight       float64 `json:"weight"`
	Relationship string  `json:"relationship"`
	writeMeta
}

func (h *Handlers) HandleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: "system", UserID: userID,
		TaskID: req.TaskID, Dependencies: req.Dependencies,
	})
	if !ok {
		return
	}
	defer release()

	if err := h.api.Link(r.Context(), req.Source, req.Target, req.Weight, req.Relationship); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"source": req.Source, "target": req.Target, "weight": req.Weight})
}

// --- /graph/{memory_id} -----------------------------------------------------

func (h *Handlers) HandleGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("memory_id")
	depth := queryInt(r, "depth", 2)

	nodes, err := h.engine.Graph(r.Context(), id, depth)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"root": id, "depth": depth, "nodes": nodes})
}

// --- /reinforce/{memory_id} --------------------------------------------------

type reinforceRequest struct {
	ProjectName string  `json:"project_name"`
	Boost       float64 `json:"boost"`
	writeMeta
}

func (h *Handlers) HandleReinforce(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("memory_id")
	var req reinforceRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: "system", UserID: userID,
		TaskID: req.TaskID, Dependencies: req.Dependencies,
	})
	if !ok {
		return
	}
	defer release()

	if err := h.api.Reinforce(r.Context(), id, req.Boost); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"memory_id": id, "boost": req.Boost})
}

// --- /smart-reinforce ---------------------------------------------------------

type smartReinforceRequest struct {
	ProjectName string `json:"project_name"`
	MemoryID    string `json:"memory_id"`
	Reason      string `json:"reason"`
	writeMeta
}

func (h *Handlers) HandleSmartReinforce(w http.ResponseWriter, r *http.Request) {
	var req smartReinforceRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	release, ok := h.checkGate(w, r, enforcement.Request{
		ProjectName: req.ProjectName, AgentName: "system", UserID: userID,
		TaskID: req.TaskID, Dependencies: req.Dependencies,
	})
	if !ok {
		return
	}
	defer release()

	if err := h.api.SmartReinforce(r.Context(), req.MemoryID, req.Reason); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"memory_id": req.MemoryID, "reason": req.Reason})
}

// --- /metrics/{memory_id} ------------------------------------------------------

func (h *Handlers) HandleMemoryMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("memory_id")
	m, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if m == nil {
		WriteErrorMessage(w, r, types.ErrNotFound, http.StatusNotFound, "memory not found", h.logger)
		return
	}

	now := time.Now()
	ageDays := now.Sub(m.CreatedAt).Hours() / 24
	usageFrequency := 0.0
	if ageDays > 0 {
		usageFrequency = float64(m.Coactivations) / ageDays
	}

	WriteSuccess(w, r, map[string]any{
		"salience":         m.Salience,
		"coactivations":    m.Coactivations,
		"age_days":         ageDays,
		"usage_frequency":  usageFrequency,
		"importance_score": hsg.ImportanceScore(m),
		"tier":             hsg.TierOf(m, now),
		"sector":           m.PrimarySector,
	})
}

// --- /query --------------------------------------------------------------------

type queryRequest struct {
	ProjectName string   `json:"project_name"`
	Query       string   `json:"query"`
	MemoryType  []string `json:"memory_type"`
	K           int      `json:"k"`
}

func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	results, err := h.api.Query(r.Context(), agentapi.QueryInput{
		Project: req.ProjectName, Query: req.Query, UserID: userID, MemoryType: req.MemoryType, K: req.K,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"results": results})
}

// --- listings: /history, /patterns, /decisions, /emotions -----------------------

func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := h.userIDOrDefault(r)
	rows, err := h.api.History(r.Context(), h.store, userID, queryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"history": rows})
}

func (h *Handlers) HandlePatternsList(w http.ResponseWriter, r *http.Request) {
	userID := h.userIDOrDefault(r)
	rows, err := h.api.Patterns(r.Context(), h.store, userID, queryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"patterns": rows})
}

func (h *Handlers) HandleDecisionsList(w http.ResponseWriter, r *http.Request) {
	userID := h.userIDOrDefault(r)
	rows, err := h.api.Decisions(r.Context(), h.store, userID, queryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"decisions": rows})
}

func (h *Handlers) HandleEmotionsList(w http.ResponseWriter, r *http.Request) {
	userID := h.userIDOrDefault(r)
	rows, err := h.api.Emotions(r.Context(), h.store, userID, queryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"emotions": rows})
}

// --- /context/{project} -----------------------------------------------------

func (h *Handlers) HandleContext(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	userID := h.userIDOrDefault(r)
	res, err := h.api.Context(r.Context(), h.store, project, userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// --- /sentiment/{project} ---------------------------------------------------

func (h *Handlers) HandleSentiment(w http.ResponseWriter, r *http.Request) {
	userID := h.userIDOrDefault(r)
	trend, err := h.api.Sentiment(r.Context(), h.store, userID, queryInt(r, "limit", 100))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, trend)
}

// --- /detect-patterns ---------------------------------------------------------

func (h *Handlers) HandleDetectPatterns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectName string `json:"project_name"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	userID := h.userIDOrDefault(r)

	report, err := h.orchestrator.SuccessPatternExtractor().Run(r.Context(), req.ProjectName, userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, report)
}

// --- /important -----------------------------------------------------------------

func (h *Handlers) HandleImportant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		N int `json:"n"`
	}
	_ = DecodeJSONBody(w, r, &req) // n optional; empty body is fine
	userID := h.userIDOrDefault(r)
	n := req.N
	if n <= 0 {
		n = queryInt(r, "n", 10)
	}

	results, err := h.api.Important(r.Context(), h.store, userID, n)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"important": results})
}
