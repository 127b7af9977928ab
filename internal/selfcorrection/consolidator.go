package selfcorrection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/pool"
	"github.com/openmemory/openmemory/internal/store"
)

const (
	defaultMinAgeDays        = 7
	defaultMergeThreshold    = 0.85
	defaultArchiveThreshold  = 0.15
	defaultArchiveAgeDays    = 90
	mergeBoostScale          = 0.3
	archiveSalience          = 0.05
	mergeSinkSalience        = 0.01
	minTokenLength           = 4
)

// Consolidator merges near-duplicate memories within a sector, archives
// stale low-value ones, and sweeps orphaned waypoints left behind by
// both.
type Consolidator struct {
	store  *store.Store
	engine *hsg.Engine
	logger *zap.Logger

	minAgeDays       int
	mergeThreshold   float64
	archiveThreshold float64
	archiveAgeDays   int
}

func NewConsolidator(st *store.Store, engine *hsg.Engine, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		store:            st,
		engine:           engine,
		logger:           logger.With(zap.String("component", "selfcorrection.consolidator")),
		minAgeDays:       defaultMinAgeDays,
		mergeThreshold:   defaultMergeThreshold,
		archiveThreshold: defaultArchiveThreshold,
		archiveAgeDays:   defaultArchiveAgeDays,
	}
}

func (c *Consolidator) Name() string { return "consolidator" }

func (c *Consolidator) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	cutoff := time.Now().Add(-time.Duration(c.minAgeDays) * 24 * time.Hour)
	for _, sector := range store.AllSectors() {
		candidates, err := c.store.List(ctx, store.MemoryFilter{
			UserID:  userID,
			Sectors: []string{string(sector)},
			Until:   &cutoff,
		})
		if err != nil {
			return report, err
		}
		if err := c.mergeSector(ctx, report, candidates); err != nil {
			return report, err
		}
	}

	if err := c.archiveStale(ctx, report, userID); err != nil {
		return report, err
	}

	removed, err := c.engine.PruneBrokenWaypoints(ctx)
	if err != nil {
		return report, err
	}
	if removed > 0 {
		report.NoteAction(fmt.Sprintf("deleted %d orphan waypoints", removed))
	}

	if err := c.store.AppendReport(ctx, "report_consolidator", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: report.Counts["merged"] + report.Counts["archived"],
	}); err != nil {
		c.logger.Warn("failed to persist consolidator report", zap.Error(err))
	}
	return report, nil
}

func (c *Consolidator) mergeSector(ctx context.Context, report *analysis.Report, candidates []store.Memory) error {
	merged := make(map[string]bool)

	for i := 0; i < len(candidates); i++ {
		if merged[candidates[i].ID] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if merged[candidates[j].ID] {
				continue
			}
			sim := jaccardSimilarity(candidates[i].Content, candidates[j].Content)
			if sim < c.mergeThreshold {
				continue
			}

			survivor, duplicate := candidates[i], candidates[j]
			if duplicate.ID < survivor.ID {
				survivor, duplicate = duplicate, survivor
			}

			if err := c.mergeInto(ctx, &survivor, &duplicate); err != nil {
				return err
			}
			merged[duplicate.ID] = true
			report.Counts["merged"]++
			report.NoteAction(fmt.Sprintf("merged %s into %s (jaccard=%.2f)", duplicate.ID, survivor.ID, sim))
		}
	}
	return nil
}

func (c *Consolidator) mergeInto(ctx context.Context, survivor, duplicate *store.Memory) error {
	newSalience := store.ClampSalience(survivor.Salience + duplicate.Salience*mergeBoostScale)
	newCoact := survivor.Coactivations + duplicate.Coactivations
	if err := c.store.UpdateMemoryFields(ctx, survivor.ID, store.MemoryFields{
		Salience:      &newSalience,
		Coactivations: &newCoact,
	}); err != nil {
		return err
	}

	if err := c.moveWaypoints(ctx, duplicate.ID, survivor.ID); err != nil {
		return err
	}

	sunkSalience := mergeSinkSalience
	if err := c.store.UpdateMemoryFields(ctx, duplicate.ID, store.MemoryFields{Salience: &sunkSalience}); err != nil {
		return err
	}
	return nil
}

// moveWaypoints retargets every edge touching old onto survivor, skipping
// edges that would duplicate one survivor already has.
func (c *Consolidator) moveWaypoints(ctx context.Context, old, survivor string) error {
	outgoing, err := c.store.WaypointsFrom(ctx, old)
	if err != nil {
		return err
	}
	for _, edge := range outgoing {
		if edge.DstID == survivor {
			continue
		}
		if err := c.engine.Link(ctx, survivor, edge.DstID, edge.Weight); err != nil {
			return err
		}
		if err := c.store.DeleteWaypoint(ctx, old, edge.DstID); err != nil {
			return err
		}
	}

	incoming, err := c.store.WaypointsTo(ctx, old)
	if err != nil {
		return err
	}
	for _, edge := range incoming {
		if edge.SrcID == survivor {
			continue
		}
		if err := c.engine.Link(ctx, edge.SrcID, survivor, edge.Weight); err != nil {
			return err
		}
		if err := c.store.DeleteWaypoint(ctx, edge.SrcID, old); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consolidator) archiveStale(ctx context.Context, report *analysis.Report, userID string) error {
	cutoff := time.Now().Add(-time.Duration(c.archiveAgeDays) * 24 * time.Hour)
	candidates, err := c.store.List(ctx, store.MemoryFilter{UserID: userID, Until: &cutoff})
	if err != nil {
		return err
	}

	for _, m := range candidates {
		if m.Salience >= c.archiveThreshold || m.Coactivations >= 2 {
			continue
		}
		archived := archiveSalience
		if err := c.store.UpdateMemoryFields(ctx, m.ID, store.MemoryFields{Salience: &archived}); err != nil {
			return err
		}
		report.Counts["archived"]++
		report.NoteAction("archived memory " + m.ID)
	}
	return nil
}

// jaccardSimilarity compares the sets of distinct lowercase tokens of
// length >= 4 in each string.
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
		if len(tok) >= minTokenLength {
			set[tok] = true
		}
	}
	pool.GlobalStringSlice.Put(scratch)
	return set
}

