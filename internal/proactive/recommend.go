package proactive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// Recommendation priority bands, ordered CRITICAL > HIGH > MEDIUM > LOW.
const (
	PriorityCritical = "CRITICAL"
	PriorityHigh     = "HIGH"
	PriorityMedium   = "MEDIUM"
	PriorityLow      = "LOW"
)

var priorityRank = map[string]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Recommendation is one entry in the merged, sorted recommendation list.
type Recommendation struct {
	Priority   string  `json:"priority"`
	Confidence float64 `json:"confidence"`
	Kind       string  `json:"kind"`
	Message    string  `json:"message"`
}

const warningRecencyDays = 30

// ContextRecommender merges four recommenders and sorts the result by
// priority, then by confidence descending.
type ContextRecommender struct {
	store  *store.Store
	logger *zap.Logger
}

func NewContextRecommender(st *store.Store, logger *zap.Logger) *ContextRecommender {
	return &ContextRecommender{store: st, logger: logger.With(zap.String("component", "proactive.recommender"))}
}

func (r *ContextRecommender) Name() string { return "context_recommender" }

func (r *ContextRecommender) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	patterns, err := r.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorProcedural)}, Tag: "pattern"})
	if err != nil {
		return report, err
	}
	decisions, err := r.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Tag: "decision"})
	if err != nil {
		return report, err
	}
	states, err := r.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorSemantic)}, Tag: "state", Limit: 1})
	if err != nil {
		return report, err
	}
	warnings, err := r.recentWarnings(ctx, userID)
	if err != nil {
		return report, err
	}

	var recs []Recommendation
	recs = append(recs, r.reuseSuccessfulPatterns(ctx, patterns)...)
	recs = append(recs, r.followEstablishedDecisions(ctx, decisions)...)
	recs = append(recs, r.nextActionSuggestion(states)...)
	recs = append(recs, r.cautions(patterns, warnings)...)

	sort.SliceStable(recs, func(i, j int) bool {
		if priorityRank[recs[i].Priority] != priorityRank[recs[j].Priority] {
			return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
		}
		return recs[i].Confidence > recs[j].Confidence
	})

	report.Extra = map[string]any{"recommendations": recs}
	report.Counts["recommendations"] = len(recs)

	if err := r.store.AppendReport(ctx, "report_context_recommender", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: len(recs),
	}); err != nil {
		r.logger.Warn("failed to persist context recommender report", zap.Error(err))
	}
	return report, nil
}

func (r *ContextRecommender) reuseSuccessfulPatterns(ctx context.Context, patterns []store.Memory) []Recommendation {
	var out []Recommendation
	for _, p := range patterns {
		rate, _ := r.successRateFor(ctx, p.ID)
		if rate >= 0.7 || p.Salience > 0.8 {
			out = append(out, Recommendation{
				Priority:   PriorityHigh,
				Confidence: maxFloat(rate, p.Salience),
				Kind:       "reuse_pattern",
				Message:    fmt.Sprintf("reuse pattern %q (success_rate=%.2f, salience=%.2f)", p.Content, rate, p.Salience),
			})
		}
	}
	return out
}

func (r *ContextRecommender) followEstablishedDecisions(ctx context.Context, decisions []store.Memory) []Recommendation {
	var out []Recommendation
	for _, d := range decisions {
		dependents, err := r.store.WaypointsTo(ctx, d.ID)
		if err != nil || len(dependents) < 3 {
			continue
		}
		out = append(out, Recommendation{
			Priority:   PriorityMedium,
			Confidence: minFloat(0.95, 0.5+float64(len(dependents))*0.1),
			Kind:       "follow_decision",
			Message:    fmt.Sprintf("follow established decision %q (%d dependent actions)", d.Content, len(dependents)),
		})
	}
	return out
}

func (r *ContextRecommender) nextActionSuggestion(states []store.Memory) []Recommendation {
	if len(states) == 0 {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(states[0].Content), &parsed); err != nil {
		return nil
	}
	var out []Recommendation
	if tasks, ok := parsed["next_recommended_tasks"].([]any); ok {
		for _, t := range tasks {
			if s, ok := t.(string); ok {
				out = append(out, Recommendation{
					Priority:   PriorityMedium,
					Confidence: 0.6,
					Kind:       "next_task",
					Message:    s,
				})
			}
		}
	}
	if _, ok := parsed["pending_action"]; ok {
		out = append(out, Recommendation{
			Priority:   PriorityLow,
			Confidence: 0.5,
			Kind:       "pending_action_nudge",
			Message:    "a pending action is recorded in project state",
		})
	}
	return out
}

func (r *ContextRecommender) cautions(patterns []store.Memory, warnings []store.Memory) []Recommendation {
	var out []Recommendation
	for _, p := range patterns {
		if p.Salience < 0.3 {
			out = append(out, Recommendation{
				Priority:   PriorityLow,
				Confidence: 0.5,
				Kind:       "low_salience_pattern_caution",
				Message:    fmt.Sprintf("pattern %q has low salience (%.2f)", p.Content, p.Salience),
			})
		}
	}
	for _, w := range warnings {
		out = append(out, Recommendation{
			Priority:   PriorityHigh,
			Confidence: 0.7,
			Kind:       "recent_warning",
			Message:    w.Content,
		})
	}
	return out
}

func (r *ContextRecommender) recentWarnings(ctx context.Context, userID string) ([]store.Memory, error) {
	since := time.Now().Add(-warningRecencyDays * 24 * time.Hour)
	all, err := r.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Since: &since})
	if err != nil {
		return nil, err
	}
	var warnings []store.Memory
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Content), "warning") || strings.Contains(strings.ToLower(m.Content), "conflict") {
			warnings = append(warnings, m)
		}
	}
	return warnings, nil
}

func (r *ContextRecommender) successRateFor(ctx context.Context, patternID string) (float64, error) {
	incoming, err := r.store.WaypointsTo(ctx, patternID)
	if err != nil {
		return 0, err
	}
	var success, total int
	for _, edge := range incoming {
		action, err := r.store.GetByID(ctx, edge.SrcID)
		if err != nil || action == nil {
			continue
		}
		switch outcomeOf(action) {
		case "success":
			success++
			total++
		case "failure", "error":
			total++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(success) / float64(total), nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
