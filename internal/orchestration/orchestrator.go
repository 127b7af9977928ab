// Package orchestration implements the Orchestration layer (C10): it runs
// the full C6-C9 analyzer battery concurrently against one project/user
// scope and composes the twelve reports into a single response.
package orchestration

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/learning"
	"github.com/openmemory/openmemory/internal/proactive"
	"github.com/openmemory/openmemory/internal/selfcorrection"
	"github.com/openmemory/openmemory/internal/store"
	"github.com/openmemory/openmemory/internal/validators"
)

// Report is the composed output of a full analysis run.
type Report struct {
	Validation     ValidationReport     `json:"validation"`
	SelfCorrection SelfCorrectionReport `json:"self_correction"`
	Proactive      ProactiveReport      `json:"proactive"`
	Quality        QualityReport        `json:"quality"`
	Summary        Summary              `json:"summary"`
}

// ValidationReport groups the C6 validator outputs.
type ValidationReport struct {
	Consistency          *analysis.Report `json:"consistency,omitempty"`
	PatternEffectiveness *analysis.Report `json:"pattern_effectiveness,omitempty"`
	DecisionQuality      *analysis.Report `json:"decision_quality,omitempty"`
}

// SelfCorrectionReport groups the C7 self-correction outputs.
type SelfCorrectionReport struct {
	FailureAnalyzer    *analysis.Report `json:"failure_analyzer,omitempty"`
	ConfidenceAdjuster *analysis.Report `json:"confidence_adjuster,omitempty"`
	Consolidator       *analysis.Report `json:"consolidator,omitempty"`
}

// ProactiveReport groups the C8 proactive-intelligence outputs.
type ProactiveReport struct {
	ConflictDetector    *analysis.Report `json:"conflict_detector,omitempty"`
	BlockerPredictor    *analysis.Report `json:"blocker_predictor,omitempty"`
	ContextRecommender  *analysis.Report `json:"context_recommender,omitempty"`
}

// QualityReport groups the C9 learning & quality outputs.
type QualityReport struct {
	SuccessPatternExtractor *analysis.Report `json:"success_pattern_extractor,omitempty"`
	QualityGate             *analysis.Report `json:"quality_gate,omitempty"`
	AnomalyDetector         *analysis.Report `json:"anomaly_detector,omitempty"`
}

// Summary is a flat roll-up used by dashboards that don't need the full
// per-analyzer breakdown.
type Summary struct {
	AnalyzersRun    int      `json:"analyzers_run"`
	AnalyzersFailed int      `json:"analyzers_failed"`
	TotalIssues     int      `json:"total_issues"`
	CriticalIssues  int      `json:"critical_issues"`
	FailedAnalyzers []string `json:"failed_analyzers,omitempty"`
}

// Orchestrator owns one instance of every C6-C9 analyzer and fans their
// Run calls out concurrently.
type Orchestrator struct {
	consistency          *validators.Consistency
	patternEffectiveness *validators.PatternEffectiveness
	decisionQuality      *validators.DecisionQuality

	failureAnalyzer    *selfcorrection.FailureAnalyzer
	confidenceAdjuster *selfcorrection.ConfidenceAdjuster
	consolidator       *selfcorrection.Consolidator

	conflictDetector   *proactive.ConflictDetector
	blockerPredictor   *proactive.BlockerPredictor
	contextRecommender *proactive.ContextRecommender

	successPatternExtractor *learning.SuccessPatternExtractor
	qualityGate             *learning.QualityGate
	anomalyDetector         *learning.AnomalyDetector

	logger *zap.Logger
}

// New builds an Orchestrator wired to every analyzer the battery needs.
func New(st *store.Store, engine *hsg.Engine, api *agentapi.API, logger *zap.Logger) *Orchestrator {
	logger = logger.With(zap.String("component", "orchestration"))
	return &Orchestrator{
		consistency:          validators.NewConsistency(st, engine, logger),
		patternEffectiveness: validators.NewPatternEffectiveness(st, logger),
		decisionQuality:      validators.NewDecisionQuality(st, logger),

		failureAnalyzer:    selfcorrection.NewFailureAnalyzer(st, api, logger),
		confidenceAdjuster: selfcorrection.NewConfidenceAdjuster(st, logger),
		consolidator:       selfcorrection.NewConsolidator(st, engine, logger),

		conflictDetector:   proactive.NewConflictDetector(st, api, logger),
		blockerPredictor:   proactive.NewBlockerPredictor(st, logger),
		contextRecommender: proactive.NewContextRecommender(st, logger),

		successPatternExtractor: learning.NewSuccessPatternExtractor(st, api, logger),
		qualityGate:             learning.NewQualityGate(st, api, logger),
		anomalyDetector:         learning.NewAnomalyDetector(st, api, logger),

		logger: logger,
	}
}

// Single-analyzer accessors let the HTTP layer invoke one analyzer at a
// time (the individual /validate/*, /analyze/*, /detect/* etc. routes)
// without constructing a second, duplicate set of stateless analyzers.
func (o *Orchestrator) Consistency() *validators.Consistency                       { return o.consistency }
func (o *Orchestrator) PatternEffectiveness() *validators.PatternEffectiveness     { return o.patternEffectiveness }
func (o *Orchestrator) DecisionQuality() *validators.DecisionQuality               { return o.decisionQuality }
func (o *Orchestrator) FailureAnalyzer() *selfcorrection.FailureAnalyzer           { return o.failureAnalyzer }
func (o *Orchestrator) ConfidenceAdjuster() *selfcorrection.ConfidenceAdjuster     { return o.confidenceAdjuster }
func (o *Orchestrator) Consolidator() *selfcorrection.Consolidator                 { return o.consolidator }
func (o *Orchestrator) ConflictDetector() *proactive.ConflictDetector             { return o.conflictDetector }
func (o *Orchestrator) BlockerPredictor() *proactive.BlockerPredictor             { return o.blockerPredictor }
func (o *Orchestrator) ContextRecommender() *proactive.ContextRecommender         { return o.contextRecommender }
func (o *Orchestrator) SuccessPatternExtractor() *learning.SuccessPatternExtractor { return o.successPatternExtractor }
func (o *Orchestrator) QualityGate() *learning.QualityGate                         { return o.qualityGate }
func (o *Orchestrator) AnomalyDetector() *learning.AnomalyDetector                 { return o.anomalyDetector }

// analyzerSlot pairs an analyzer with the report slot it will fill; run
// as a fixed-size, index-addressed slice so each errgroup goroutine
// writes to its own slot without a shared-state data race.
type analyzerSlot struct {
	name     string
	analyzer analysis.Analyzer
	report   *analysis.Report
	err      error
}

// Run executes all twelve analyzers concurrently and composes their
// reports. A single analyzer failing does not abort the others — the
// orchestrator collects every error and reports it in Summary rather
// than returning early, since a partial battery result is still useful.
func (o *Orchestrator) Run(ctx context.Context, project, userID string) (*Report, error) {
	slots := []*analyzerSlot{
		{name: "consistency", analyzer: o.consistency},
		{name: "pattern_effectiveness", analyzer: o.patternEffectiveness},
		{name: "decision_quality", analyzer: o.decisionQuality},
		{name: "failure_analyzer", analyzer: o.failureAnalyzer},
		{name: "confidence_adjuster", analyzer: o.confidenceAdjuster},
		{name: "consolidator", analyzer: o.consolidator},
		{name: "conflict_detector", analyzer: o.conflictDetector},
		{name: "blocker_predictor", analyzer: o.blockerPredictor},
		{name: "context_recommender", analyzer: o.contextRecommender},
		{name: "success_pattern_extractor", analyzer: o.successPatternExtractor},
		{name: "quality_gate", analyzer: o.qualityGate},
		{name: "anomaly_detector", analyzer: o.anomalyDetector},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, slot := range slots {
		slot := slot
		g.Go(func() error {
			report, err := slot.analyzer.Run(gctx, project, userID)
			slot.report = report
			slot.err = err
			if err != nil {
				o.logger.Warn("analyzer run failed", zap.String("analyzer", slot.name), zap.Error(err))
			}
			return nil // collect-all: a failing analyzer doesn't cancel its siblings
		})
	}
	_ = g.Wait()

	byName := make(map[string]*analyzerSlot, len(slots))
	for _, slot := range slots {
		byName[slot.name] = slot
	}

	report := &Report{
		Validation: ValidationReport{
			Consistency:          byName["consistency"].report,
			PatternEffectiveness: byName["pattern_effectiveness"].report,
			DecisionQuality:      byName["decision_quality"].report,
		},
		SelfCorrection: SelfCorrectionReport{
			FailureAnalyzer:    byName["failure_analyzer"].report,
			ConfidenceAdjuster: byName["confidence_adjuster"].report,
			Consolidator:       byName["consolidator"].report,
		},
		Proactive: ProactiveReport{
			ConflictDetector:   byName["conflict_detector"].report,
			BlockerPredictor:   byName["blocker_predictor"].report,
			ContextRecommender: byName["context_recommender"].report,
		},
		Quality: QualityReport{
			SuccessPatternExtractor: byName["success_pattern_extractor"].report,
			QualityGate:             byName["quality_gate"].report,
			AnomalyDetector:         byName["anomaly_detector"].report,
		},
	}

	summary := Summary{AnalyzersRun: len(slots)}
	for _, slot := range slots {
		if slot.err != nil {
			summary.AnalyzersFailed++
			summary.FailedAnalyzers = append(summary.FailedAnalyzers, slot.name)
			continue
		}
		if slot.report == nil {
			continue
		}
		summary.TotalIssues += len(slot.report.Issues)
		for _, issue := range slot.report.Issues {
			if issue.Severity == analysis.SeverityCritical {
				summary.CriticalIssues++
			}
		}
	}
	report.Summary = summary

	return report, nil
}
