package proactive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// Blocker types.
const (
	BlockerRepeatedFailure  = "REPEATED_FAILURE"
	BlockerDependencyMissing = "DEPENDENCY_MISSING"
	BlockerVelocityDrop     = "VELOCITY_DROP"
	BlockerComplexitySpike  = "COMPLEXITY_SPIKE"
	BlockerKnowledgeGap     = "KNOWLEDGE_GAP"
)

const defaultBlockerLookbackDays = 14
const warningThreshold = 0.70

var complexityKeywords = []string{"complex", "complicated", "tricky", "convoluted", "edge case"}

// BlockerPrediction is one predicted blocker with its probability.
type BlockerPrediction struct {
	Kind        string  `json:"kind"`
	Probability float64 `json:"probability"`
	Description string  `json:"description"`
}

// BlockerPredictor runs five independent detectors over the lookback
// window and flags predictions at or above the warning threshold.
type BlockerPredictor struct {
	store  *store.Store
	logger *zap.Logger
}

func NewBlockerPredictor(st *store.Store, logger *zap.Logger) *BlockerPredictor {
	return &BlockerPredictor{store: st, logger: logger.With(zap.String("component", "proactive.blocker"))}
}

func (b *BlockerPredictor) Name() string { return "blocker_predictor" }

func (b *BlockerPredictor) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	since := time.Now().Add(-defaultBlockerLookbackDays * 24 * time.Hour)
	actions, err := b.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Since: &since})
	if err != nil {
		return report, err
	}
	decisions, err := b.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Since: &since})
	if err != nil {
		return report, err
	}
	patterns, err := b.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorProcedural)}})
	if err != nil {
		return report, err
	}

	predictions := []BlockerPrediction{}
	predictions = append(predictions, b.repeatedFailure(actions)...)
	predictions = append(predictions, b.dependencyMissing(decisions, patterns)...)
	predictions = append(predictions, b.velocityDrop(ctx, userID)...)
	predictions = append(predictions, b.complexitySpike(actions)...)
	predictions = append(predictions, b.knowledgeGap(decisions)...)

	for _, p := range predictions {
		report.Counts["predictions"]++
		if p.Probability >= warningThreshold {
			report.AddIssue(analysis.Issue{
				Severity:    analysis.SeverityHigh,
				Kind:        "blocker:" + p.Kind,
				Description: p.Description,
				Detail:      map[string]any{"probability": p.Probability},
			})
		}
	}
	report.Extra = map[string]any{"predictions": predictions}

	if err := b.store.AppendReport(ctx, "report_blocker_predictor", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: len(report.Issues),
	}); err != nil {
		b.logger.Warn("failed to persist blocker predictor report", zap.Error(err))
	}
	return report, nil
}

func (b *BlockerPredictor) repeatedFailure(actions []store.Memory) []BlockerPrediction {
	counts := make(map[string]int)
	for _, a := range actions {
		if outcomeOf(&a) != "failure" && outcomeOf(&a) != "error" {
			continue
		}
		counts[failureType(a.Content)]++
	}
	var out []BlockerPrediction
	for kind, n := range counts {
		if n < 3 {
			continue
		}
		out = append(out, BlockerPrediction{
			Kind:        BlockerRepeatedFailure,
			Probability: minFloat(0.95, 0.5+float64(n)*0.1),
			Description: fmt.Sprintf("%d repeated failures of type %q", n, kind),
		})
	}
	return out
}

func (b *BlockerPredictor) dependencyMissing(decisions, patterns []store.Memory) []BlockerPrediction {
	var out []BlockerPrediction
	for _, d := range decisions {
		if !looksLikeTechnologyDecision(d.Content) {
			continue
		}
		matched := false
		for _, p := range patterns {
			if sharesKeyword(d.Content, p.Content) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, BlockerPrediction{
				Kind:        BlockerDependencyMissing,
				Probability: 0.65,
				Description: fmt.Sprintf("decision %q has no matching procedural pattern", d.Content),
			})
		}
	}
	return out
}

func (b *BlockerPredictor) velocityDrop(ctx context.Context, userID string) []BlockerPrediction {
	now := time.Now()
	lastWeekStart := now.Add(-7 * 24 * time.Hour)
	priorWeekStart := now.Add(-14 * 24 * time.Hour)

	lastWeek, err := b.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Since: &lastWeekStart})
	if err != nil {
		return nil
	}
	priorWeek, err := b.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Since: &priorWeekStart, Until: &lastWeekStart})
	if err != nil {
		return nil
	}
	if len(priorWeek) == 0 {
		return nil
	}
	if float64(len(lastWeek)) < 0.5*float64(len(priorWeek)) {
		return []BlockerPrediction{{
			Kind:        BlockerVelocityDrop,
			Probability: 0.80,
			Description: fmt.Sprintf("action rate dropped from %d to %d week-over-week", len(priorWeek), len(lastWeek)),
		}}
	}
	return nil
}

func (b *BlockerPredictor) complexitySpike(actions []store.Memory) []BlockerPrediction {
	mentions := 0
	for _, a := range actions {
		lower := strings.ToLower(a.Content)
		for _, kw := range complexityKeywords {
			if strings.Contains(lower, kw) {
				mentions++
				break
			}
		}
	}
	if mentions >= 5 {
		return []BlockerPrediction{{
			Kind:        BlockerComplexitySpike,
			Probability: 0.70,
			Description: fmt.Sprintf("%d recent actions mention complexity keywords", mentions),
		}}
	}
	return nil
}

func (b *BlockerPredictor) knowledgeGap(decisions []store.Memory) []BlockerPrediction {
	var out []BlockerPrediction
	for _, d := range decisions {
		if !strings.Contains(strings.ToLower(d.Content), "rationale") {
			out = append(out, BlockerPrediction{
				Kind:        BlockerKnowledgeGap,
				Probability: 0.60,
				Description: fmt.Sprintf("decision %q lacks the word rationale", d.Content),
			})
		}
	}
	return out
}

func failureType(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "timeout"):
		return "timeout"
	case strings.Contains(lower, "connection"):
		return "connection"
	case strings.Contains(lower, "validation"):
		return "validation"
	default:
		return "generic"
	}
}

func looksLikeTechnologyDecision(content string) bool {
	lower := strings.ToLower(content)
	keywords := []string{"database", "framework", "library", "service", "queue", "cache"}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sharesKeyword(a, b string) bool {
	setA := tokenSet(a)
	for tok := range tokenSet(b) {
		if setA[tok] {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]{}")
		if len(tok) >= 4 {
			set[tok] = true
		}
	}
	return set
}

func outcomeOf(m *store.Memory) string {
	if v, ok := m.Meta["outcome"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
