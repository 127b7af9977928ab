package learning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// Anomaly kinds compared against a 24h/7d baseline.
const (
	AnomalyActivitySpike    = "ACTIVITY_SPIKE"
	AnomalyActivityDrop     = "ACTIVITY_DROP"
	AnomalyFailureRateSpike = "FAILURE_RATE_SPIKE"
	AnomalyConfidenceDrop   = "CONFIDENCE_DROP"
	AnomalyPatternDeviation = "PATTERN_DEVIATION"
	AnomalyMemoryGrowth     = "MEMORY_GROWTH"
)

const (
	recentWindow  = 24 * time.Hour
	baselineWindow = 7 * 24 * time.Hour

	activitySpikeRatio = 2.0
	activityDropRatio  = 0.5
	minFailuresForSpike = 3
	minEmotionsForConfidence = 5
	lowConfidenceThreshold   = 0.4
	negativeSentimentRateThreshold = 0.6
	patternAbsenceThreshold = 0.9
	memoryGrowthRatio       = 3.0
)

var negativeSentiments = map[string]bool{"negative": true, "frustrated": true}

// Anomaly is one detected deviation from baseline.
type Anomaly struct {
	Kind        string  `json:"kind"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Deviation   float64 `json:"deviation"`
}

// AnomalyDetector compares the last 24 hours against the trailing 7-day
// baseline across five independent signals.
type AnomalyDetector struct {
	store  *store.Store
	api    *agentapi.API
	logger *zap.Logger
}

func NewAnomalyDetector(st *store.Store, api *agentapi.API, logger *zap.Logger) *AnomalyDetector {
	return &AnomalyDetector{store: st, api: api, logger: logger.With(zap.String("component", "learning.anomaly"))}
}

func (d *AnomalyDetector) Name() string { return "anomaly_detector" }

func (d *AnomalyDetector) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	now := time.Now()
	recentSince := now.Add(-recentWindow)
	baselineSince := now.Add(-baselineWindow)

	recentActions, err := d.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Since: &recentSince})
	if err != nil {
		return report, err
	}
	baselineActions, err := d.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Since: &baselineSince, Until: &recentSince})
	if err != nil {
		return report, err
	}
	recentEmotions, err := d.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEmotional)}, Since: &baselineSince})
	if err != nil {
		return report, err
	}
	patterns, err := d.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorProcedural)}, Tag: "pattern"})
	if err != nil {
		return report, err
	}
	recentMemories, err := d.store.List(ctx, store.MemoryFilter{UserID: userID, Since: &recentSince})
	if err != nil {
		return report, err
	}
	baselineMemories, err := d.store.List(ctx, store.MemoryFilter{UserID: userID, Since: &baselineSince, Until: &recentSince})
	if err != nil {
		return report, err
	}

	var anomalies []Anomaly
	anomalies = append(anomalies, d.activityAnomaly(recentActions, baselineActions)...)
	anomalies = append(anomalies, d.failureRateAnomaly(recentActions, baselineActions)...)
	anomalies = append(anomalies, d.confidenceAnomaly(recentEmotions)...)
	anomalies = append(anomalies, d.patternDeviationAnomaly(patterns, recentActions)...)
	anomalies = append(anomalies, d.memoryGrowthAnomaly(recentMemories, baselineMemories)...)

	report.Counts["anomalies"] = len(anomalies)
	for _, a := range anomalies {
		sev := analysis.SeverityMedium
		if a.Severity == "CRITICAL" {
			sev = analysis.SeverityCritical
		} else if a.Severity == "HIGH" {
			sev = analysis.SeverityHigh
		}
		report.AddIssue(analysis.Issue{Severity: sev, Kind: "anomaly:" + a.Kind, Description: a.Description, Detail: map[string]any{"deviation": a.Deviation}})

		if a.Severity == "CRITICAL" || a.Severity == "HIGH" {
			if _, err := d.api.RecordDecision(ctx, project, userID, agentapi.DecisionInput{
				Decision:  fmt.Sprintf("anomaly alert: %s", a.Description),
				Rationale: "auto-generated by the anomaly detector",
			}); err != nil {
				d.logger.Warn("failed to write anomaly alert memory", zap.Error(err))
			} else {
				report.NoteAction(fmt.Sprintf("wrote alert memory for %s anomaly", a.Kind))
			}
		}
	}
	report.Extra = map[string]any{"anomalies": anomalies}

	if err := d.store.AppendReport(ctx, "report_anomaly_detector", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: len(anomalies),
	}); err != nil {
		d.logger.Warn("failed to persist anomaly detector report", zap.Error(err))
	}
	return report, nil
}

func (d *AnomalyDetector) activityAnomaly(recent, baseline []store.Memory) []Anomaly {
	if len(baseline) == 0 {
		return nil
	}
	dailyBaseline := float64(len(baseline)) / 6.0 // 7-day window minus the last 24h already excluded
	if dailyBaseline == 0 {
		return nil
	}
	ratio := float64(len(recent)) / dailyBaseline

	var out []Anomaly
	switch {
	case ratio >= activitySpikeRatio:
		sev := "MEDIUM"
		if ratio >= activitySpikeRatio*1.5 {
			sev = "HIGH"
		}
		out = append(out, Anomaly{Kind: AnomalyActivitySpike, Severity: sev, Deviation: ratio,
			Description: fmt.Sprintf("activity spike: %d actions in 24h vs daily baseline %.1f", len(recent), dailyBaseline)})
	case ratio <= activityDropRatio:
		out = append(out, Anomaly{Kind: AnomalyActivityDrop, Severity: "MEDIUM", Deviation: ratio,
			Description: fmt.Sprintf("activity drop: %d actions in 24h vs daily baseline %.1f", len(recent), dailyBaseline)})
	}
	return out
}

func (d *AnomalyDetector) failureRateAnomaly(recent, baseline []store.Memory) []Anomaly {
	recentFailures := countFailures(recent)
	baselineFailures := countFailures(baseline)
	if recentFailures < minFailuresForSpike {
		return nil
	}
	baselineDaily := float64(baselineFailures) / 6.0
	if baselineDaily == 0 {
		return []Anomaly{{Kind: AnomalyFailureRateSpike, Severity: "HIGH", Deviation: float64(recentFailures),
			Description: fmt.Sprintf("%d failures in 24h with no prior baseline failures", recentFailures)}}
	}
	ratio := float64(recentFailures) / baselineDaily
	if ratio >= activitySpikeRatio {
		return []Anomaly{{Kind: AnomalyFailureRateSpike, Severity: "HIGH", Deviation: ratio,
			Description: fmt.Sprintf("failure rate spike: %d failures in 24h vs daily baseline %.1f", recentFailures, baselineDaily)}}
	}
	return nil
}

func (d *AnomalyDetector) confidenceAnomaly(emotions []store.Memory) []Anomaly {
	if len(emotions) < minEmotionsForConfidence {
		return nil
	}
	var confidenceSum float64
	var negativeCount int
	for _, e := range emotions {
		if v, ok := e.Meta["confidence"]; ok {
			if f, ok := v.(float64); ok {
				confidenceSum += f
			}
		}
		if v, ok := e.Meta["sentiment"]; ok {
			if s, ok := v.(string); ok && negativeSentiments[s] {
				negativeCount++
			}
		}
	}
	avgConfidence := confidenceSum / float64(len(emotions))
	negativeRate := float64(negativeCount) / float64(len(emotions))

	var out []Anomaly
	if avgConfidence < lowConfidenceThreshold {
		out = append(out, Anomaly{Kind: AnomalyConfidenceDrop, Severity: "MEDIUM", Deviation: avgConfidence,
			Description: fmt.Sprintf("average recent confidence %.2f below %.2f", avgConfidence, lowConfidenceThreshold)})
	}
	if negativeRate > negativeSentimentRateThreshold {
		out = append(out, Anomaly{Kind: AnomalyConfidenceDrop, Severity: "HIGH", Deviation: negativeRate,
			Description: fmt.Sprintf("negative sentiment rate %.2f above %.2f over %d emotions", negativeRate, negativeSentimentRateThreshold, len(emotions))})
	}
	return out
}

func (d *AnomalyDetector) patternDeviationAnomaly(patterns, recentActions []store.Memory) []Anomaly {
	if len(recentActions) == 0 {
		return nil
	}
	var out []Anomaly
	for _, p := range patterns {
		if p.Salience <= 0.8 {
			continue
		}
		mentioned := 0
		for _, a := range recentActions {
			if contentMentionsPattern(a.Content, p.Content) {
				mentioned++
			}
		}
		absenceRate := 1 - float64(mentioned)/float64(len(recentActions))
		if absenceRate >= patternAbsenceThreshold {
			out = append(out, Anomaly{Kind: AnomalyPatternDeviation, Severity: "MEDIUM", Deviation: absenceRate,
				Description: fmt.Sprintf("high-salience pattern %q absent from %.0f%% of recent actions", p.Content, absenceRate*100)})
		}
	}
	return out
}

func (d *AnomalyDetector) memoryGrowthAnomaly(recent, baseline []store.Memory) []Anomaly {
	if len(baseline) == 0 {
		return nil
	}
	dailyBaseline := float64(len(baseline)) / 6.0
	if dailyBaseline == 0 {
		return nil
	}
	ratio := float64(len(recent)) / dailyBaseline
	if ratio >= memoryGrowthRatio {
		return []Anomaly{{Kind: AnomalyMemoryGrowth, Severity: "MEDIUM", Deviation: ratio,
			Description: fmt.Sprintf("memory growth: %d new memories in 24h vs daily baseline %.1f", len(recent), dailyBaseline)}}
	}
	return nil
}

func countFailures(ms []store.Memory) int {
	n := 0
	for _, m := range ms {
		if o := outcomeOf(&m); o == "failure" || o == "error" {
			n++
		}
	}
	return n
}

func contentMentionsPattern(action, pattern string) bool {
	return len(tokenSet(action))+len(tokenSet(pattern)) > 0 && jaccardSimilarity(action, pattern) > 0
}
