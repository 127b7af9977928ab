package validators

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// Decision quality status labels.
const (
	StatusValidated   = "VALIDATED"
	StatusSolid       = "SOLID"
	StatusQuestionable = "QUESTIONABLE"
	StatusIgnored     = "IGNORED"
	StatusReversed    = "REVERSED"
)

// DecisionQuality assesses each reflective decision by counting dependent
// episodic outcomes and comparing against newer decisions on the same
// subject.
type DecisionQuality struct {
	store  *store.Store
	logger *zap.Logger
}

func NewDecisionQuality(st *store.Store, logger *zap.Logger) *DecisionQuality {
	return &DecisionQuality{store: st, logger: logger.With(zap.String("component", "validator.decision_quality"))}
}

func (d *DecisionQuality) Name() string { return "decision_quality" }

func (d *DecisionQuality) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	decisions, err := d.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Tag: "decision"})
	if err != nil {
		return report, err
	}

	for _, decision := range decisions {
		dependents, err := d.store.WaypointsTo(ctx, decision.ID)
		if err != nil {
			return report, err
		}

		var success, failure int
		for _, edge := range dependents {
			action, err := d.store.GetByID(ctx, edge.SrcID)
			if err != nil || action == nil || action.PrimarySector != string(store.SectorEpisodic) {
				continue
			}
			switch outcomeOf(action) {
			case "success":
				success++
			case "failure", "error":
				failure++
			}
		}

		reversed := isReversedBy(decision, decisions)
		status := statusFor(success, failure, reversed)

		report.Counts["decisions_assessed"]++
		report.Extra = mergeExtra(report.Extra, decision.ID, map[string]any{
			"status":            status,
			"dependent_success":  success,
			"dependent_failure":  failure,
		})

		switch status {
		case StatusValidated:
			newSalience := store.ClampSalience(decision.Salience + 0.15)
			if err := d.store.UpdateMemoryFields(ctx, decision.ID, store.MemoryFields{Salience: &newSalience}); err == nil {
				report.NoteAction(fmt.Sprintf("increased salience of validated decision %s", decision.ID))
			}
		case StatusIgnored, StatusReversed:
			newSalience := store.ClampSalience(decision.Salience - 0.20)
			if err := d.store.UpdateMemoryFields(ctx, decision.ID, store.MemoryFields{Salience: &newSalience}); err == nil {
				report.NoteAction(fmt.Sprintf("decreased salience of %s decision %s", status, decision.ID))
			}
			report.AddIssue(analysis.Issue{
				Severity:    analysis.SeverityMedium,
				Kind:        "low_quality_decision",
				MemoryID:    decision.ID,
				Description: fmt.Sprintf("decision status %s", status),
			})
		}
	}

	if err := d.store.AppendReport(ctx, "report_decision_quality", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: report.Counts["decisions_assessed"],
	}); err != nil {
		d.logger.Warn("failed to persist decision quality report", zap.Error(err))
	}
	return report, nil
}

func statusFor(success, failure int, reversed bool) string {
	if reversed {
		return StatusReversed
	}
	total := success + failure
	if total == 0 {
		return StatusIgnored
	}
	rate := float64(success) / float64(total)
	switch {
	case rate >= 0.8 && total >= 3:
		return StatusValidated
	case rate >= 0.6:
		return StatusSolid
	case rate >= 0.3:
		return StatusQuestionable
	default:
		return StatusIgnored
	}
}

// isReversedBy reports whether a newer decision names this one in its
// meta's "supersedes" field. Decision contents are not compared.
func isReversedBy(decision store.Memory, all []store.Memory) bool {
	for _, other := range all {
		if other.ID == decision.ID || !other.CreatedAt.After(decision.CreatedAt) {
			continue
		}
		if v, ok := other.Meta["supersedes"]; ok {
			if id, ok := v.(string); ok && id == decision.ID {
				return true
			}
		}
	}
	return false
}
