package httpapi

import (
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// runAnalyzer invokes a.Run and writes its report, regardless of method —
// every route in this file is "Mixed" per §6, since the analyzers
// themselves may perform auto-repairs as a side effect of being run.
func (h *Handlers) runAnalyzer(w http.ResponseWriter, r *http.Request, project string, a analysis.Analyzer) {
	userID := h.userIDOrDefault(r)
	report, err := a.Run(r.Context(), project, userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, report)
}

// --- §6 validators -----------------------------------------------------------

func (h *Handlers) HandleValidateConsistency(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.Consistency())
}

func (h *Handlers) HandleValidateEffectiveness(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.PatternEffectiveness())
}

func (h *Handlers) HandleValidateDecisions(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.DecisionQuality())
}

// HandleValidateAll runs the three C6 validators in parallel and composes
// their reports, per §6's `/validate/:project`.
func (h *Handlers) HandleValidateAll(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	userID := h.userIDOrDefault(r)

	var consistency, effectiveness, decisions *analysis.Report
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		rep, err := h.orchestrator.Consistency().Run(gctx, project, userID)
		consistency = rep
		return err
	})
	g.Go(func() error {
		rep, err := h.orchestrator.PatternEffectiveness().Run(gctx, project, userID)
		effectiveness = rep
		return err
	})
	g.Go(func() error {
		rep, err := h.orchestrator.DecisionQuality().Run(gctx, project, userID)
		decisions = rep
		return err
	})
	if err := g.Wait(); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, map[string]any{
		"consistency":           consistency,
		"pattern_effectiveness": effectiveness,
		"decision_quality":      decisions,
	})
}

// --- §6 self-correction --------------------------------------------------------

func (h *Handlers) HandleAnalyzeFailures(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.FailureAnalyzer())
}

// HandleLessons re-runs the failure analyzer and returns its action notes
// for this pass, for `/lessons/:project`: one line per lesson-learned
// memory it wrote, naming the failed action.
func (h *Handlers) HandleLessons(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	userID := h.userIDOrDefault(r)
	report, err := h.orchestrator.FailureAnalyzer().Run(r.Context(), project, userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"lessons": report.AutoActionsTaken, "failures_analyzed": report.Counts["failures_analyzed"]})
}

func (h *Handlers) HandleAdjustConfidence(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.ConfidenceAdjuster())
}

// HandleConfidenceDistribution is a pure read: a salience histogram over
// the project's memories, for `/confidence/distribution/:project`.
func (h *Handlers) HandleConfidenceDistribution(w http.ResponseWriter, r *http.Request) {
	userID := h.userIDOrDefault(r)
	rows, err := h.store.List(r.Context(), store.MemoryFilter{UserID: userID, Tag: "project:" + r.PathValue("project")})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	buckets := map[string]int{"0.0-0.2": 0, "0.2-0.4": 0, "0.4-0.6": 0, "0.6-0.8": 0, "0.8-1.0": 0}
	for _, m := range rows {
		switch {
		case m.Salience < 0.2:
			buckets["0.0-0.2"]++
		case m.Salience < 0.4:
			buckets["0.2-0.4"]++
		case m.Salience < 0.6:
			buckets["0.4-0.6"]++
		case m.Salience < 0.8:
			buckets["0.6-0.8"]++
		default:
			buckets["0.8-1.0"]++
		}
	}
	WriteSuccess(w, r, map[string]any{"buckets": buckets, "total": len(rows)})
}

func (h *Handlers) HandleConsolidate(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.Consolidator())
}

// HandleConsolidationStats reads the consolidator's report history
// without re-running it, for `/consolidation/stats/:project`.
func (h *Handlers) HandleConsolidationStats(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	rows, err := h.store.RecentReports(r.Context(), "report_consolidator", project, queryInt(r, "limit", 20))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"runs": rows})
}

// --- §6 proactive intelligence ---------------------------------------------------

func (h *Handlers) HandleDetectConflicts(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.ConflictDetector())
}

func (h *Handlers) HandleDetectAnomalies(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.AnomalyDetector())
}

func (h *Handlers) HandlePredictBlockers(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.BlockerPredictor())
}

func (h *Handlers) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.ContextRecommender())
}

// --- §6 learning & quality ---------------------------------------------------

func (h *Handlers) HandleLearnPatterns(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.SuccessPatternExtractor())
}

// HandleLearnStats reads the success-pattern extractor's report history,
// for `/learn/stats/:project`.
func (h *Handlers) HandleLearnStats(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	rows, err := h.store.RecentReports(r.Context(), "report_success_pattern_extractor", project, queryInt(r, "limit", 20))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"runs": rows})
}

func (h *Handlers) HandleQualityGate(w http.ResponseWriter, r *http.Request) {
	h.runAnalyzer(w, r, r.PathValue("project"), h.orchestrator.QualityGate())
}

// HandleQualityTrends reads the quality gate's score history in
// chronological order, for `/quality/trends/:project`.
func (h *Handlers) HandleQualityTrends(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	rows, err := h.store.RecentReports(r.Context(), "report_quality_gate", project, queryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	WriteSuccess(w, r, map[string]any{"trend": rows})
}

// --- §6 orchestration / enforcement introspection -----------------------------

// HandleAutonomous runs the full twelve-analyzer battery, for
// `/autonomous/:project`.
func (h *Handlers) HandleAutonomous(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	userID := h.userIDOrDefault(r)
	report, err := h.orchestrator.Run(r.Context(), project, userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.Publish(StreamEvent{Type: "autonomous_complete", Project: project, Timestamp: time.Now(), Summary: report.Summary})
	}
	WriteSuccess(w, r, report)
}
