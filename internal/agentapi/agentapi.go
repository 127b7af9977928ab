// Package agentapi implements the Agent API (C5): a project-scoped façade
// over the HSG Engine. Every operation accepts a project_name, a user_id
// (defaulted by the caller), and payload-specific fields; each write tags
// the record with project_name plus role-specific labels and assigns its
// sector deterministically.
package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/store"
	"github.com/openmemory/openmemory/types"
)

// Auto-waypoint weights fixed by the operation that creates them.
const (
	weightRelatedDecision = 0.85
	weightUsedPattern     = 0.75
	weightRelatedAction   = 0.70
	defaultLinkWeight     = 0.8
)

// API is the Agent API façade.
type API struct {
	engine *hsg.Engine
	logger *zap.Logger
}

// New builds an API over an HSG Engine.
func New(engine *hsg.Engine, logger *zap.Logger) *API {
	return &API{engine: engine, logger: logger.With(zap.String("component", "agentapi"))}
}

func tagsWithProject(project string, extra ...string) store.Tags {
	tags := store.Tags{"project:" + project}
	for _, t := range extra {
		if t != "" {
			tags = tags.Add(t)
		}
	}
	return tags
}

// StoreState writes the project's semantic state snapshot.
func (a *API) StoreState(ctx context.Context, project, userID string, state any) (*store.Memory, error) {
	if project == "" {
		return nil, types.NewError(types.ErrBadRequest, "project_name is required")
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, types.NewError(types.ErrBadRequest, "state must be JSON-serialisable").WithCause(err)
	}
	meta := store.Meta{"project_name": project, "role": "state"}
	return a.engine.Insert(ctx, string(blob), store.SectorSemantic, userID, tagsWithProject(project, "state"), meta, 0.6)
}

// ActionInput carries the fields for RecordAction.
type ActionInput struct {
	AgentName        string
	Action           string
	Outcome          string
	RelatedDecision  string // memory id
	UsedPattern      string // memory id
}

// RecordAction writes an episodic action memory and auto-waypoints it to
// any referenced decision/pattern.
func (a *API) RecordAction(ctx context.Context, project, userID string, in ActionInput) (*store.Memory, error) {
	if project == "" || in.AgentName == "" || in.Action == "" {
		return nil, types.NewError(types.ErrBadRequest, "project_name, agent_name and action are required")
	}
	meta := store.Meta{"project_name": project, "agent_name": in.AgentName, "outcome": in.Outcome}
	m, err := a.engine.Insert(ctx, in.Action, store.SectorEpisodic, userID, tagsWithProject(project, "action"), meta, 0.5)
	if err != nil {
		return nil, err
	}

	if in.RelatedDecision != "" {
		if err := a.engine.Link(ctx, m.ID, in.RelatedDecision, weightRelatedDecision); err != nil {
			a.logger.Warn("failed to link action to decision", zap.Error(err))
		}
	}
	if in.UsedPattern != "" {
		if err := a.engine.Link(ctx, m.ID, in.UsedPattern, weightUsedPattern); err != nil {
			a.logger.Warn("failed to link action to pattern", zap.Error(err))
		}
	}
	return m, nil
}

// PatternInput carries the fields for RecordPattern.
type PatternInput struct {
	PatternName string
	Description string
	Example     string
	Tags        []string
}

// RecordPattern writes a procedural memory.
func (a *API) RecordPattern(ctx context.Context, project, userID string, in PatternInput) (*store.Memory, error) {
	if project == "" || in.PatternName == "" || in.Description == "" {
		return nil, types.NewError(types.ErrBadRequest, "project_name, pattern_name and description are required")
	}
	meta := store.Meta{"project_name": project, "pattern_name": in.PatternName, "example": in.Example}
	tags := tagsWithProject(project, "pattern")
	for _, t := range in.Tags {
		tags = tags.Add(t)
	}
	return a.engine.Insert(ctx, in.Description, store.SectorProcedural, userID, tags, meta, 0.5)
}

// DecisionInput carries the fields for RecordDecision.
type DecisionInput struct {
	Decision      string
	Rationale     string
	Alternatives  string
	Consequences  string
}

// RecordDecision writes a reflective memory.
func (a *API) RecordDecision(ctx context.Context, project, userID string, in DecisionInput) (*store.Memory, error) {
	if project == "" || in.Decision == "" || in.Rationale == "" {
		return nil, types.NewError(types.ErrBadRequest, "project_name, decision and rationale are required")
	}
	meta := store.Meta{
		"project_name": project,
		"rationale":    in.Rationale,
		"alternatives": in.Alternatives,
		"consequences": in.Consequences,
	}
	return a.engine.Insert(ctx, in.Decision, store.SectorReflective, userID, tagsWithProject(project, "decision"), meta, 0.5)
}

// EmotionInput carries the fields for RecordEmotion.
type EmotionInput struct {
	AgentName     string
	Feeling       string
	Sentiment     string // positive|negative|neutral|frustrated|confident
	Confidence    float64
	RelatedAction string // memory id
}

var validSentiments = map[string]bool{
	"positive": true, "negative": true, "neutral": true, "frustrated": true, "confident": true,
}

// RecordEmotion writes an emotional memory and auto-waypoints it to any
// referenced action.
func (a *API) RecordEmotion(ctx context.Context, project, userID string, in EmotionInput) (*store.Memory, error) {
	if project == "" || in.AgentName == "" || in.Feeling == "" {
		return nil, types.NewError(types.ErrBadRequest, "project_name, agent_name and feeling are required")
	}
	if in.Sentiment != "" && !validSentiments[in.Sentiment] {
		return nil, types.NewError(types.ErrBadRequest, fmt.Sprintf("invalid sentiment %q", in.Sentiment))
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, types.NewError(types.ErrBadRequest, "confidence must be within [0,1]")
	}

	meta := store.Meta{
		"project_name": project,
		"agent_name":   in.AgentName,
		"sentiment":    in.Sentiment,
		"confidence":   in.Confidence,
	}
	m, err := a.engine.Insert(ctx, in.Feeling, store.SectorEmotional, userID, tagsWithProject(project, "emotion"), meta, 0.5)
	if err != nil {
		return nil, err
	}
	if in.RelatedAction != "" {
		if err := a.engine.Link(ctx, m.ID, in.RelatedAction, weightRelatedAction); err != nil {
			a.logger.Warn("failed to link emotion to action", zap.Error(err))
		}
	}
	return m, nil
}

// Link creates or updates a waypoint between two memories. weight defaults
// to 0.8 when zero.
func (a *API) Link(ctx context.Context, source, target string, weight float64, relationship string) error {
	if source == "" || target == "" {
		return types.NewError(types.ErrBadRequest, "source and target are required")
	}
	if weight == 0 {
		weight = defaultLinkWeight
	}
	_ = relationship // carried for audit logging only; the graph has no typed edges
	return a.engine.Link(ctx, source, target, weight)
}

// Reinforce applies a raw salience boost.
func (a *API) Reinforce(ctx context.Context, memoryID string, boost float64) error {
	return a.engine.Reinforce(ctx, memoryID, boost)
}

// SmartReinforce applies the boost associated with a named reason.
func (a *API) SmartReinforce(ctx context.Context, memoryID, reason string) error {
	return a.engine.SmartReinforce(ctx, memoryID, reason)
}

// QueryInput carries the fields for Query.
type QueryInput struct {
	Project    string
	Query      string
	UserID     string
	MemoryType []string // maps to sector set; empty means all sectors
	K          int
}

// Query performs similarity-ranked retrieval scoped to a project.
func (a *API) Query(ctx context.Context, in QueryInput) ([]hsg.Scored, error) {
	if in.Project == "" || in.Query == "" {
		return nil, types.NewError(types.ErrBadRequest, "project_name and query are required")
	}
	return a.engine.Query(ctx, in.Query, hsg.QueryOptions{
		Sectors: in.MemoryType,
		UserID:  in.UserID,
		K:       in.K,
	})
}

// ContextResult is the composed project bootstrap payload.
type ContextResult struct {
	State          *store.Memory   `json:"state"`
	RecentActions  []store.Memory  `json:"recent_actions"`
	Patterns       []store.Memory  `json:"patterns"`
	Decisions      []store.Memory  `json:"decisions"`
	Mode           string          `json:"mode"`
}

// Context derives {state, recent_actions, patterns, decisions, mode} for a
// project. state is the project's most recent state memory; mode is RESUME
// when one exists, INITIALIZE otherwise. recent_actions, patterns and
// decisions are the user's most recent rows across all projects.
func (a *API) Context(ctx context.Context, st *store.Store, project, userID string) (*ContextResult, error) {
	if project == "" {
		return nil, types.NewError(types.ErrBadRequest, "project_name is required")
	}

	states, err := st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorSemantic)}, Tag: "state"})
	if err != nil {
		return nil, err
	}
	actions, err := st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Tag: "action", Limit: 10})
	if err != nil {
		return nil, err
	}
	patterns, err := st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorProcedural)}, Tag: "pattern", Limit: 20})
	if err != nil {
		return nil, err
	}
	decisions, err := st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Tag: "decision", Limit: 20})
	if err != nil {
		return nil, err
	}

	res := &ContextResult{RecentActions: actions, Patterns: patterns, Decisions: decisions, Mode: "INITIALIZE"}
	for i := range states {
		if states[i].Tags.Has("project:" + project) {
			res.State = &states[i]
			res.Mode = "RESUME"
			break
		}
	}
	return res, nil
}

// History, Patterns, Decisions, Emotions are thin listings over the Record
// Store, used by the corresponding HTTP routes. They filter by user, sector
// and role tag only and take no project: rows from every project of the
// user are returned.
func (a *API) History(ctx context.Context, st *store.Store, userID string, limit int) ([]store.Memory, error) {
	return st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Tag: "action", Limit: limit})
}

func (a *API) Patterns(ctx context.Context, st *store.Store, userID string, limit int) ([]store.Memory, error) {
	return st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorProcedural)}, Tag: "pattern", Limit: limit})
}

func (a *API) Decisions(ctx context.Context, st *store.Store, userID string, limit int) ([]store.Memory, error) {
	return st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Tag: "decision", Limit: limit})
}

func (a *API) Emotions(ctx context.Context, st *store.Store, userID string, limit int) ([]store.Memory, error) {
	return st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEmotional)}, Tag: "emotion", Limit: limit})
}

// Important returns the top-N memories in a project's user scope by
// importance score (salience * (1 + log(1 + coactivations))).
func (a *API) Important(ctx context.Context, st *store.Store, userID string, n int) ([]hsg.Scored, error) {
	rows, err := st.List(ctx, store.MemoryFilter{UserID: userID, Limit: 0})
	if err != nil {
		return nil, err
	}
	scored := make([]hsg.Scored, 0, len(rows))
	for i := range rows {
		scored = append(scored, hsg.Scored{Memory: &rows[i], Score: hsg.ImportanceScore(&rows[i])})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
	})
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}

// SentimentTrend is the aggregated emotional-memory summary for a user.
type SentimentTrend struct {
	Counts           map[string]int `json:"counts"`
	AverageConfidence float64        `json:"average_confidence"`
	Trend            string         `json:"trend"` // improving|declining|stable
	Total            int            `json:"total"`
}

// Sentiment aggregates the user's emotional memories, from every project
// (it takes no project), into counts per
// sentiment, an average confidence, and a coarse trend derived by
// comparing the first and second half of the (chronologically sorted)
// window.
func (a *API) Sentiment(ctx context.Context, st *store.Store, userID string, limit int) (*SentimentTrend, error) {
	emotions, err := st.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEmotional)}, Tag: "emotion", Limit: limit})
	if err != nil {
		return nil, err
	}
	sort.Slice(emotions, func(i, j int) bool { return emotions[i].CreatedAt.Before(emotions[j].CreatedAt) })

	trend := &SentimentTrend{Counts: make(map[string]int), Total: len(emotions)}
	if len(emotions) == 0 {
		trend.Trend = "stable"
		return trend, nil
	}

	var confSum float64
	score := func(m store.Memory) float64 {
		sentiment, _ := m.Meta["sentiment"].(string)
		switch sentiment {
		case "positive", "confident":
			return 1
		case "negative", "frustrated":
			return -1
		default:
			return 0
		}
	}
	for _, m := range emotions {
		sentiment, _ := m.Meta["sentiment"].(string)
		if sentiment == "" {
			sentiment = "neutral"
		}
		trend.Counts[sentiment]++
		if conf, ok := m.Meta["confidence"].(float64); ok {
			confSum += conf
		}
	}
	trend.AverageConfidence = confSum / float64(len(emotions))

	mid := len(emotions) / 2
	if mid == 0 {
		trend.Trend = "stable"
		return trend, nil
	}
	var first, second float64
	for _, m := range emotions[:mid] {
		first += score(m)
	}
	for _, m := range emotions[mid:] {
		second += score(m)
	}
	first /= float64(mid)
	second /= float64(len(emotions) - mid)
	switch {
	case second-first > 0.2:
		trend.Trend = "improving"
	case first-second > 0.2:
		trend.Trend = "declining"
	default:
		trend.Trend = "stable"
	}
	return trend, nil
}

