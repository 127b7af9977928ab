// Package selfcorrection implements the Self-Correction battery (C7):
// failure root-cause analysis, confidence adjustment, and consolidation.
package selfcorrection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/store"
)

// Root-cause classifications, in precedence order.
const (
	RootPatternFailure  = "PATTERN_FAILURE"
	RootDecisionFailure = "DECISION_FAILURE"
	RootMissingContext  = "MISSING_CONTEXT"
	RootExternalFactor  = "EXTERNAL_FACTOR"
	RootUnknown         = "UNKNOWN"
)

const minContextLength = 10

var externalFactorKeywords = []string{
	"timeout", "network", "rate limit", "upstream", "outage", "third-party", "unavailable",
}

const defaultLookbackDays = 30

// FailureAnalyzer determines the root cause of failed/errored episodic
// actions and writes a lesson-learned memory for actionable causes.
type FailureAnalyzer struct {
	store  *store.Store
	api    *agentapi.API
	logger *zap.Logger
}

func NewFailureAnalyzer(st *store.Store, api *agentapi.API, logger *zap.Logger) *FailureAnalyzer {
	return &FailureAnalyzer{store: st, api: api, logger: logger.With(zap.String("component", "selfcorrection.failure"))}
}

func (f *FailureAnalyzer) Name() string { return "failure_analyzer" }

func (f *FailureAnalyzer) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	since := time.Now().Add(-defaultLookbackDays * 24 * time.Hour)
	actions, err := f.store.List(ctx, store.MemoryFilter{
		UserID:  userID,
		Sectors: []string{string(store.SectorEpisodic)},
		Since:   &since,
	})
	if err != nil {
		return report, err
	}

	for _, action := range actions {
		outcome := outcomeOf(&action)
		if outcome != "failure" && outcome != "error" {
			continue
		}

		root, err := f.classify(ctx, action)
		if err != nil {
			return report, err
		}

		report.Counts["failures_analyzed"]++
		report.Counts["root:"+root]++
		report.AddIssue(analysis.Issue{
			Severity:    severityForRoot(root),
			Kind:        "failure_root_cause",
			MemoryID:    action.ID,
			Description: fmt.Sprintf("failure classified %s", root),
		})

		if root != RootUnknown && root != RootExternalFactor {
			lesson := fmt.Sprintf("lesson learned from %s: %s", root, action.Content)
			if _, err := f.api.RecordDecision(ctx, project, userID, agentapi.DecisionInput{
				Decision:  lesson,
				Rationale: "auto-generated by the failure analyzer",
			}); err != nil {
				f.logger.Warn("failed to write lesson-learned memory", zap.Error(err))
			} else {
				report.NoteAction("wrote lesson-learned memory for action " + action.ID)
			}
		}
	}

	if err := f.store.AppendReport(ctx, "report_failure_analyzer", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: report.Counts["failures_analyzed"],
	}); err != nil {
		f.logger.Warn("failed to persist failure analyzer report", zap.Error(err))
	}
	return report, nil
}

func (f *FailureAnalyzer) classify(ctx context.Context, action store.Memory) (string, error) {
	outgoing, err := f.store.WaypointsFrom(ctx, action.ID)
	if err != nil {
		return "", err
	}

	for _, edge := range outgoing {
		target, err := f.store.GetByID(ctx, edge.DstID)
		if err != nil {
			return "", err
		}
		if target == nil {
			continue
		}
		if target.PrimarySector == string(store.SectorProcedural) {
			newSalience := store.ClampSalience(maxFloat(target.Salience-0.25, 0.2))
			_ = f.store.UpdateMemoryFields(ctx, target.ID, store.MemoryFields{Salience: &newSalience})
			return RootPatternFailure, nil
		}
	}
	for _, edge := range outgoing {
		target, err := f.store.GetByID(ctx, edge.DstID)
		if err != nil {
			return "", err
		}
		if target == nil {
			continue
		}
		if target.PrimarySector == string(store.SectorReflective) {
			newSalience := store.ClampSalience(maxFloat(target.Salience-0.20, 0.3))
			_ = f.store.UpdateMemoryFields(ctx, target.ID, store.MemoryFields{Salience: &newSalience})
			return RootDecisionFailure, nil
		}
	}

	if len(strings.TrimSpace(action.Content)) < minContextLength {
		return RootMissingContext, nil
	}

	lower := strings.ToLower(action.Content)
	for _, kw := range externalFactorKeywords {
		if strings.Contains(lower, kw) {
			return RootExternalFactor, nil
		}
	}

	return RootUnknown, nil
}

func severityForRoot(root string) analysis.Severity {
	switch root {
	case RootPatternFailure, RootDecisionFailure:
		return analysis.SeverityHigh
	case RootMissingContext:
		return analysis.SeverityMedium
	default:
		return analysis.SeverityLow
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

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
