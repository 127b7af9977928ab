package learning

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/pool"
	"github.com/openmemory/openmemory/internal/store"
)

// Violation severities for the quality gate.
const (
	ViolationBlocking = "BLOCKING"
	ViolationWarning  = "WARNING"
)

const (
	blockingPenalty = 20
	warningPenalty  = 5
	minImplCountForRatio = 5
	minTestRatio    = 0.3
	duplicateTokenSimilarity = 0.8
)

var antiPatternRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btodo\b.*\bfixme\b`),
	regexp.MustCompile(`(?i)\bhack\b`),
	regexp.MustCompile(`(?i)\bcopy[- ]paste\b`),
}

// GateViolation is one quality gate finding.
type GateViolation struct {
	Severity    string `json:"severity"`
	Rule        string `json:"rule"`
	Description string `json:"description"`
	MemoryID    string `json:"memory_id,omitempty"`
}

// QualityGate scores a project 0-100 across five rule families.
type QualityGate struct {
	store  *store.Store
	api    *agentapi.API
	logger *zap.Logger
}

func NewQualityGate(st *store.Store, api *agentapi.API, logger *zap.Logger) *QualityGate {
	return &QualityGate{store: st, api: api, logger: logger.With(zap.String("component", "learning.quality_gate"))}
}

func (q *QualityGate) Name() string { return "quality_gate" }

func (q *QualityGate) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	actions, err := q.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Tag: "action"})
	if err != nil {
		return report, err
	}
	decisions, err := q.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Tag: "decision"})
	if err != nil {
		return report, err
	}

	var violations []GateViolation
	violations = append(violations, q.antiPatternHits(actions)...)
	violations = append(violations, q.testImplementationRatio(actions)...)
	violations = append(violations, q.decisionsWithoutRationale(decisions)...)
	violations = append(violations, q.staleDecisions(decisions, actions)...)
	violations = append(violations, q.duplicateWork(actions)...)

	score := 100
	blocking := 0
	for _, v := range violations {
		switch v.Severity {
		case ViolationBlocking:
			score -= blockingPenalty
			blocking++
		case ViolationWarning:
			score -= warningPenalty
		}
	}
	score = clampInt(score, 0, 100)
	passed := blocking == 0

	report.Counts["violations"] = len(violations)
	report.Counts["blocking"] = blocking
	report.Extra = map[string]any{"violations": violations, "score": score, "passed": passed}

	for _, v := range violations {
		sev := analysis.SeverityMedium
		if v.Severity == ViolationBlocking {
			sev = analysis.SeverityHigh
		}
		report.AddIssue(analysis.Issue{Severity: sev, Kind: "quality:" + v.Rule, MemoryID: v.MemoryID, Description: v.Description})
	}

	if !passed {
		if _, err := q.api.RecordDecision(ctx, project, userID, agentapi.DecisionInput{
			Decision:  fmt.Sprintf("quality gate failed with score %d", score),
			Rationale: "auto-generated by the quality gate",
		}); err != nil {
			q.logger.Warn("failed to write quality gate warning memory", zap.Error(err))
		} else {
			report.NoteAction("wrote quality gate failure warning memory")
		}
	}

	if err := q.store.AppendReport(ctx, "report_quality_gate", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: len(violations),
	}); err != nil {
		q.logger.Warn("failed to persist quality gate report", zap.Error(err))
	}
	return report, nil
}

func (q *QualityGate) antiPatternHits(actions []store.Memory) []GateViolation {
	var out []GateViolation
	for _, a := range actions {
		for _, re := range antiPatternRegexes {
			if re.MatchString(a.Content) {
				out = append(out, GateViolation{
					Severity:    ViolationWarning,
					Rule:        "anti_pattern",
					Description: fmt.Sprintf("action matches anti-pattern regex %q", re.String()),
					MemoryID:    a.ID,
				})
			}
		}
	}
	return out
}

func (q *QualityGate) testImplementationRatio(actions []store.Memory) []GateViolation {
	var testCount, implCount int
	for _, a := range actions {
		lower := strings.ToLower(a.Content)
		switch {
		case strings.Contains(lower, "test"):
			testCount++
		case strings.Contains(lower, "implement"):
			implCount++
		}
	}
	if implCount > minImplCountForRatio {
		ratio := float64(testCount) / float64(implCount)
		if ratio < minTestRatio {
			return []GateViolation{{
				Severity:    ViolationBlocking,
				Rule:        "test_implementation_ratio",
				Description: fmt.Sprintf("test/implementation ratio %.2f below %.2f", ratio, minTestRatio),
			}}
		}
	}
	return nil
}

func (q *QualityGate) decisionsWithoutRationale(decisions []store.Memory) []GateViolation {
	var out []GateViolation
	for _, d := range decisions {
		if raw, ok := d.Meta["rationale"]; !ok || raw == "" {
			out = append(out, GateViolation{
				Severity:    ViolationBlocking,
				Rule:        "missing_rationale",
				Description: fmt.Sprintf("decision %q lacks a rationale", d.Content),
				MemoryID:    d.ID,
			})
		}
	}
	return out
}

func (q *QualityGate) staleDecisions(decisions, actions []store.Memory) []GateViolation {
	var out []GateViolation
	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	for _, d := range decisions {
		if d.CreatedAt.After(cutoff) {
			continue
		}
		followed := false
		for _, a := range actions {
			if a.CreatedAt.After(d.CreatedAt) {
				followed = true
				break
			}
		}
		if !followed {
			out = append(out, GateViolation{
				Severity:    ViolationWarning,
				Rule:        "decision_not_followed",
				Description: fmt.Sprintf("decision %q has no subsequent actions", d.Content),
				MemoryID:    d.ID,
			})
		}
	}
	return out
}

func (q *QualityGate) duplicateWork(actions []store.Memory) []GateViolation {
	var out []GateViolation
	for i := 0; i < len(actions); i++ {
		for j := i + 1; j < len(actions); j++ {
			if jaccardSimilarity(actions[i].Content, actions[j].Content) >= duplicateTokenSimilarity {
				out = append(out, GateViolation{
					Severity:    ViolationWarning,
					Rule:        "duplicate_work",
					Description: fmt.Sprintf("actions %s and %s look duplicated", actions[i].ID, actions[j].ID),
				})
			}
		}
	}
	return out
}

func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	scratch := pool.GlobalStringSlice.Get()
	scratch = append(scratch, strings.Fields(strings.ToLower(s))...)
	for _, tok := range scratch {
		tok = strings.Trim(tok, ".,!?;:\"'()[]{}")
		if len(tok) >= 4 {
			set[tok] = true
		}
	}
	pool.GlobalStringSlice.Put(scratch)
	return set
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
