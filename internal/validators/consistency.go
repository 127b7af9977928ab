// Package validators implements the Validators battery (C6): consistency
// checking, pattern-effectiveness scoring, and decision-quality
// assessment. All three emit an analysis.Report and, as side effects,
// write reflective audit memories and/or adjust salience.
package validators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/store"
)

// contradictionRules is a curated table of opposing technology/directive
// phrase pairs. A decision mentioning one side and another of the user's
// decisions mentioning the other, in either order, is a contradiction;
// decisions are not filtered by project.
var contradictionRules = [][2]string{
	{"synchronous api", "event driven"},
	{"monolith", "microservices"},
	{"sql database", "nosql database"},
	{"rest api", "graphql api"},
	{"server-side rendering", "client-side rendering"},
}

const orphanAge = 7 * 24 * time.Hour

// Consistency is the Consistency validator.
type Consistency struct {
	store  *store.Store
	engine *hsg.Engine
	logger *zap.Logger
}

// NewConsistency builds the Consistency validator.
func NewConsistency(st *store.Store, engine *hsg.Engine, logger *zap.Logger) *Consistency {
	return &Consistency{store: st, engine: engine, logger: logger.With(zap.String("component", "validator.consistency"))}
}

func (c *Consistency) Name() string { return "consistency" }

// Run executes the four passes described in §4.6(a)-(d).
func (c *Consistency) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	if err := c.checkContradictions(ctx, report, userID); err != nil {
		return report, err
	}
	if err := c.checkCycles(ctx, report); err != nil {
		return report, err
	}
	if err := c.sweepBrokenWaypoints(ctx, report); err != nil {
		return report, err
	}
	if err := c.identifyOrphans(ctx, report, userID); err != nil {
		return report, err
	}

	if err := c.store.AppendReport(ctx, "report_consistency", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: len(report.Issues),
	}); err != nil {
		c.logger.Warn("failed to persist consistency report", zap.Error(err))
	}
	return report, nil
}

func (c *Consistency) checkContradictions(ctx context.Context, report *analysis.Report, userID string) error {
	decisions, err := c.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorReflective)}, Tag: "decision"})
	if err != nil {
		return err
	}

	for _, rule := range contradictionRules {
		var sideA, sideB []store.Memory
		for _, d := range decisions {
			lower := strings.ToLower(d.Content)
			if strings.Contains(lower, rule[0]) {
				sideA = append(sideA, d)
			}
			if strings.Contains(lower, rule[1]) {
				sideB = append(sideB, d)
			}
		}
		if len(sideA) == 0 || len(sideB) == 0 {
			continue
		}
		oldest := oldestDecision(append(append([]store.Memory{}, sideA...), sideB...))
		newSalience := store.ClampSalience(oldest.Salience - 0.3)
		if err := c.store.UpdateMemoryFields(ctx, oldest.ID, store.MemoryFields{Salience: &newSalience}); err != nil {
			c.logger.Warn("failed to reduce salience of contradicting decision", zap.Error(err))
		} else {
			report.NoteAction(fmt.Sprintf("reduced salience of decision %s (contradiction: %s vs %s)", oldest.ID, rule[0], rule[1]))
		}
		report.AddIssue(analysis.Issue{
			Severity:    analysis.SeverityHigh,
			Kind:        "contradiction",
			MemoryID:    oldest.ID,
			Description: fmt.Sprintf("decisions conflict on %q vs %q", rule[0], rule[1]),
		})
		report.Counts["contradictions"]++
	}
	return nil
}

func oldestDecision(ds []store.Memory) store.Memory {
	oldest := ds[0]
	for _, d := range ds[1:] {
		if d.CreatedAt.Before(oldest.CreatedAt) {
			oldest = d
		}
	}
	return oldest
}

// checkCycles runs a DFS with an explicit recursion stack over the full
// waypoint graph, emitting each cycle once.
func (c *Consistency) checkCycles(ctx context.Context, report *analysis.Report) error {
	waypoints, err := c.store.AllWaypoints(ctx)
	if err != nil {
		return err
	}
	adjacency := make(map[string][]string)
	for _, wp := range waypoints {
		adjacency[wp.SrcID] = append(adjacency[wp.SrcID], wp.DstID)
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	seenCycles := make(map[string]bool)
	var path []string

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range adjacency[id] {
			if onStack[next] {
				cycle := cycleFrom(path, next)
				key := strings.Join(cycle, ">")
				if !seenCycles[key] {
					seenCycles[key] = true
					report.AddIssue(analysis.Issue{
						Severity:    analysis.SeverityMedium,
						Kind:        "cycle",
						Description: "waypoint cycle: " + key,
					})
					report.Counts["cycles"]++
				}
				continue
			}
			if !visited[next] {
				dfs(next)
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
	}

	for id := range adjacency {
		if !visited[id] {
			dfs(id)
		}
	}
	return nil
}

func cycleFrom(path []string, repeat string) []string {
	for i, id := range path {
		if id == repeat {
			return append(append([]string{}, path[i:]...), repeat)
		}
	}
	return append(append([]string{}, path...), repeat)
}

func (c *Consistency) sweepBrokenWaypoints(ctx context.Context, report *analysis.Report) error {
	removed, err := c.engine.PruneBrokenWaypoints(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		report.NoteAction(fmt.Sprintf("deleted %d broken waypoints", removed))
		report.Counts["broken_waypoints_removed"] = removed
	}
	return nil
}

// identifyOrphans reports, without modifying, procedural/reflective
// memories older than 7 days with no incident edges.
func (c *Consistency) identifyOrphans(ctx context.Context, report *analysis.Report, userID string) error {
	candidates, err := c.store.List(ctx, store.MemoryFilter{
		UserID:  userID,
		Sectors: []string{string(store.SectorProcedural), string(store.SectorReflective)},
	})
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-orphanAge)
	for _, m := range candidates {
		if m.CreatedAt.After(cutoff) {
			continue
		}
		incoming, err := c.store.WaypointsTo(ctx, m.ID)
		if err != nil {
			return err
		}
		outgoing, err := c.store.WaypointsFrom(ctx, m.ID)
		if err != nil {
			return err
		}
		if len(incoming) == 0 && len(outgoing) == 0 {
			report.AddIssue(analysis.Issue{
				Severity:    analysis.SeverityLow,
				Kind:        "orphan",
				MemoryID:    m.ID,
				Description: "memory has no waypoint edges and is older than 7 days",
			})
			report.Counts["orphans"]++
		}
	}
	return nil
}
