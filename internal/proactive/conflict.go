// Package proactive implements the Proactive Intelligence battery (C8):
// conflict detection, blocker prediction, and context recommendation.
package proactive

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// patternIncompatibilityRules holds the first two pairs of the consistency
// contradiction table, applied to procedural pattern pairs and, in
// checkArchitecturalMismatch, to decision/pattern pairs.
var patternIncompatibilityRules = [][2]string{
	{"synchronous api", "event driven"},
	{"monolith", "microservices"},
}

// ConflictDetector replays the consistency contradiction rules over
// current decisions, adds pattern-incompatibility and architectural-
// mismatch checks, and flags resource (port) collisions across recent
// actions.
type ConflictDetector struct {
	store  *store.Store
	api    *agentapi.API
	logger *zap.Logger
}

func NewConflictDetector(st *store.Store, api *agentapi.API, logger *zap.Logger) *ConflictDetector {
	return &ConflictDetector{store: st, api: api, logger: logger.With(zap.String("component", "proactive.conflict"))}
}

func (c *ConflictDetector) Name() string { return "conflict_detector" }

func (c *ConflictDetector) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	decisions, err := c.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Tag: "decision"})
	if err != nil {
		return report, err
	}
	patterns, err := c.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorProcedural)}, Tag: "pattern"})
	if err != nil {
		return report, err
	}
	actions, err := c.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Tag: "action"})
	if err != nil {
		return report, err
	}

	c.checkDecisionContradictions(report, decisions)
	c.checkPatternIncompatibility(report, patterns)
	c.checkArchitecturalMismatch(report, decisions, patterns)
	c.checkResourceConflicts(report, actions)

	for _, issue := range report.Issues {
		if issue.Severity != analysis.SeverityCritical {
			continue
		}
		if _, err := c.api.RecordDecision(ctx, project, userID, agentapi.DecisionInput{
			Decision:  "conflict warning: " + issue.Description,
			Rationale: "auto-generated by the conflict detector",
		}); err != nil {
			c.logger.Warn("failed to write conflict warning memory", zap.Error(err))
		} else {
			report.NoteAction("wrote conflict warning memory for " + issue.Kind)
		}
	}

	if err := c.store.AppendReport(ctx, "report_conflict_detector", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: len(report.Issues),
	}); err != nil {
		c.logger.Warn("failed to persist conflict detector report", zap.Error(err))
	}
	return report, nil
}

func (c *ConflictDetector) checkDecisionContradictions(report *analysis.Report, decisions []store.Memory) {
	// Same pairs as the consistency validator's contradiction table.
	contradictionRules := [][2]string{
		{"synchronous api", "event driven"},
		{"monolith", "microservices"},
		{"sql database", "nosql database"},
		{"rest api", "graphql api"},
		{"server-side rendering", "client-side rendering"},
	}
	for _, rule := range contradictionRules {
		if hasBoth(decisionContents(decisions), rule) {
			report.AddIssue(analysis.Issue{
				Severity:    analysis.SeverityHigh,
				Kind:        "decision_contradiction",
				Description: fmt.Sprintf("decisions conflict on %q vs %q", rule[0], rule[1]),
			})
			report.Counts["decision_contradictions"]++
		}
	}
}

func (c *ConflictDetector) checkPatternIncompatibility(report *analysis.Report, patterns []store.Memory) {
	for _, rule := range patternIncompatibilityRules {
		if hasBoth(patternContents(patterns), rule) {
			report.AddIssue(analysis.Issue{
				Severity:    analysis.SeverityMedium,
				Kind:        "pattern_incompatibility",
				Description: fmt.Sprintf("patterns conflict on %q vs %q", rule[0], rule[1]),
			})
			report.Counts["pattern_incompatibilities"]++
		}
	}
}

// checkArchitecturalMismatch flags a decision that mentions the first phrase
// of an incompatibility rule when a recorded pattern mentions the second.
// A decision that mentions only the second phrase is never flagged.
func (c *ConflictDetector) checkArchitecturalMismatch(report *analysis.Report, decisions, patterns []store.Memory) {
	for _, d := range decisions {
		lower := strings.ToLower(d.Content)
		for _, rule := range patternIncompatibilityRules {
			mentionsA := strings.Contains(lower, rule[0])
			mentionsB := strings.Contains(lower, rule[1])
			if !mentionsA && !mentionsB {
				continue
			}
			for _, p := range patterns {
				pLower := strings.ToLower(p.Content)
				if mentionsA && strings.Contains(pLower, rule[1]) {
					report.AddIssue(analysis.Issue{
						Severity:    analysis.SeverityCritical,
						Kind:        "architectural_mismatch",
						MemoryID:    d.ID,
						Description: fmt.Sprintf("decision %q conflicts with established pattern %q", d.Content, p.Content),
					})
					report.Counts["architectural_mismatches"]++
				}
			}
		}
	}
}

func (c *ConflictDetector) checkResourceConflicts(report *analysis.Report, actions []store.Memory) {
	ports := make(map[string][]string)
	for _, a := range actions {
		for _, port := range extractPorts(a.Content) {
			ports[port] = append(ports[port], a.ID)
		}
	}
	for port, ids := range ports {
		if len(ids) < 2 {
			continue
		}
		report.AddIssue(analysis.Issue{
			Severity:    analysis.SeverityHigh,
			Kind:        "resource_conflict",
			Description: fmt.Sprintf("port %s referenced by %d recent actions", port, len(ids)),
		})
		report.Counts["resource_conflicts"]++
	}
}

func decisionContents(ms []store.Memory) string {
	var sb strings.Builder
	for _, m := range ms {
		sb.WriteString(strings.ToLower(m.Content))
		sb.WriteString(" ")
	}
	return sb.String()
}

func patternContents(ms []store.Memory) string {
	return decisionContents(ms)
}

func hasBoth(haystack string, rule [2]string) bool {
	return strings.Contains(haystack, rule[0]) && strings.Contains(haystack, rule[1])
}

func extractPorts(content string) []string {
	var ports []string
	fields := strings.Fields(content)
	for _, f := range fields {
		f = strings.TrimPrefix(f, ":")
		if len(f) == 4 && f[0] >= '1' && f[0] <= '9' {
			allDigits := true
			for _, r := range f {
				if r < '0' || r > '9' {
					allDigits = false
					break
				}
			}
			if allDigits {
				ports = append(ports, f)
			}
		}
	}
	return ports
}
