package validators

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// Classification bands for pattern effectiveness.
const (
	ClassExcellent = "EXCELLENT"
	ClassGood      = "GOOD"
	ClassMediocre  = "MEDIOCRE"
	ClassFailing   = "FAILING"
)

// PatternEffectiveness scores each procedural memory by the success rate
// of episodic memories that reference it via outgoing waypoints.
type PatternEffectiveness struct {
	store  *store.Store
	logger *zap.Logger
}

func NewPatternEffectiveness(st *store.Store, logger *zap.Logger) *PatternEffectiveness {
	return &PatternEffectiveness{store: st, logger: logger.With(zap.String("component", "validator.pattern_effectiveness"))}
}

func (p *PatternEffectiveness) Name() string { return "pattern_effectiveness" }

func (p *PatternEffectiveness) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	patterns, err := p.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorProcedural)}, Tag: "pattern"})
	if err != nil {
		return report, err
	}

	for _, pattern := range patterns {
		incoming, err := p.store.WaypointsTo(ctx, pattern.ID)
		if err != nil {
			return report, err
		}

		var success, failed int
		for _, edge := range incoming {
			episode, err := p.store.GetByID(ctx, edge.SrcID)
			if err != nil || episode == nil || episode.PrimarySector != string(store.SectorEpisodic) {
				continue
			}
			switch outcomeOf(episode) {
			case "success":
				success++
			case "failure", "error":
				failed++
			}
		}

		total := success + failed
		if total == 0 {
			continue
		}
		successRate := float64(success) / float64(total)
		class := classify(successRate)

		report.Counts["patterns_scored"]++
		report.Extra = mergeExtra(report.Extra, pattern.ID, map[string]any{
			"success_rate":   successRate,
			"classification": class,
		})

		switch {
		case successRate >= 0.8:
			newSalience := store.ClampSalience(pattern.Salience + 0.20)
			if err := p.store.UpdateMemoryFields(ctx, pattern.ID, store.MemoryFields{Salience: &newSalience}); err == nil {
				report.NoteAction(fmt.Sprintf("reinforced pattern %s (success_rate=%.2f)", pattern.ID, successRate))
			}
		case successRate <= 0.4:
			newSalience := store.ClampSalience(pattern.Salience - 0.20)
			if err := p.store.UpdateMemoryFields(ctx, pattern.ID, store.MemoryFields{Salience: &newSalience}); err == nil {
				report.NoteAction(fmt.Sprintf("reduced salience of pattern %s (success_rate=%.2f)", pattern.ID, successRate))
			}
		}

		if class == ClassFailing {
			report.AddIssue(analysis.Issue{
				Severity:    analysis.SeverityMedium,
				Kind:        "failing_pattern",
				MemoryID:    pattern.ID,
				Description: fmt.Sprintf("pattern success rate %.2f classified FAILING", successRate),
			})
		}
	}

	if err := p.store.AppendReport(ctx, "report_pattern_effectiveness", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: report.Counts["patterns_scored"],
	}); err != nil {
		p.logger.Warn("failed to persist pattern effectiveness report", zap.Error(err))
	}
	return report, nil
}

func classify(rate float64) string {
	switch {
	case rate >= 0.8:
		return ClassExcellent
	case rate >= 0.6:
		return ClassGood
	case rate > 0.4:
		return ClassMediocre
	default:
		return ClassFailing
	}
}

func outcomeOf(m *store.Memory) string {
	if v, ok := m.Meta["outcome"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func mergeExtra(extra map[string]any, id string, v map[string]any) map[string]any {
	if extra == nil {
		extra = make(map[string]any)
	}
	extra[id] = v
	return extra
}
