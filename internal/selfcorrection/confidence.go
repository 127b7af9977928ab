package selfcorrection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

const (
	agePenaltyStartDays      = 30
	agePenaltyCap            = 0.3
	stalenessStartDays       = 14
	stalenessCap             = 0.25
	validationBoostCap       = 0.15
	minAdjustmentToWrite     = 0.05
)

// ConfidenceAdjuster computes five signals per memory and writes the
// resulting salience when the absolute adjustment exceeds 0.05.
type ConfidenceAdjuster struct {
	store  *store.Store
	logger *zap.Logger
}

func NewConfidenceAdjuster(st *store.Store, logger *zap.Logger) *ConfidenceAdjuster {
	return &ConfidenceAdjuster{store: st, logger: logger.With(zap.String("component", "selfcorrection.confidence"))}
}

func (c *ConfidenceAdjuster) Name() string { return "confidence_adjuster" }

func (c *ConfidenceAdjuster) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	memories, err := c.store.List(ctx, store.MemoryFilter{UserID: userID})
	if err != nil {
		return report, err
	}

	now := time.Now()
	for _, m := range memories {
		ageDays := now.Sub(m.CreatedAt).Hours() / 24
		if ageDays <= 0 {
			ageDays = 1
		}
		idleDays := now.Sub(m.LastSeenAt).Hours() / 24

		usageFrequency := float64(m.Coactivations) / ageDays

		agePenalty := 0.0
		if ageDays > agePenaltyStartDays {
			agePenalty = minFloat((ageDays-agePenaltyStartDays)/365, agePenaltyCap)
		}

		stalenessPenalty := 0.0
		if idleDays > stalenessStartDays {
			stalenessPenalty = minFloat((idleDays-stalenessStartDays)/180, stalenessCap)
		}

		successRate := 0.0
		if m.PrimarySector == string(store.SectorProcedural) || m.PrimarySector == string(store.SectorReflective) {
			successRate, err = c.linkedSuccessRate(ctx, m.ID)
			if err != nil {
				return report, err
			}
		}

		validationBoost := 0.0
		if v, ok := m.Meta["validated"]; ok {
			if b, ok := v.(bool); ok && b {
				validationBoost = validationBoostCap
			}
		}

		adjustment := usageFrequency + successRate + validationBoost - agePenalty - stalenessPenalty
		if absFloat(adjustment) <= minAdjustmentToWrite {
			continue
		}

		newSalience := store.ClampSalience(m.Salience + adjustment)
		if err := c.store.UpdateMemoryFields(ctx, m.ID, store.MemoryFields{Salience: &newSalience}); err != nil {
			c.logger.Warn("failed to adjust confidence", zap.String("memory_id", m.ID), zap.Error(err))
			continue
		}

		reason := fmt.Sprintf(
			"usage=%.3f age_penalty=%.3f staleness_penalty=%.3f success_rate=%.3f validation_boost=%.3f",
			usageFrequency, agePenalty, stalenessPenalty, successRate, validationBoost)
		report.NoteAction(fmt.Sprintf("adjusted confidence of %s by %.3f (%s)", m.ID, adjustment, reason))
		report.Counts["adjusted"]++
	}

	if err := c.store.AppendReport(ctx, "report_confidence_adjuster", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: report.Counts["adjusted"],
	}); err != nil {
		c.logger.Warn("failed to persist confidence adjuster report", zap.Error(err))
	}
	return report, nil
}

func (c *ConfidenceAdjuster) linkedSuccessRate(ctx context.Context, id string) (float64, error) {
	incoming, err := c.store.WaypointsTo(ctx, id)
	if err != nil {
		return 0, err
	}
	var success, total int
	for _, edge := range incoming {
		action, err := c.store.GetByID(ctx, edge.SrcID)
		if err != nil {
			return 0, err
		}
		if action == nil || action.PrimarySector != string(store.SectorEpisodic) {
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

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
