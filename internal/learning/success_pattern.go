// Package learning implements the Learning & Quality battery (C9):
// success-pattern extraction, the quality gate, and anomaly detection.
package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/analysis"
	"github.com/openmemory/openmemory/internal/store"
)

// Extracted pattern kinds.
const (
	PatternSequence = "SEQUENCE"
	PatternApproach = "APPROACH"
	PatternTechnique = "TECHNIQUE"
)

const defaultExtractLookbackDays = 30
const minPatternConfidence = 0.6
const minPatternFrequency = 2
const extractedWaypointWeight = 0.75

var approachKeywordBundles = map[string][]string{
	"test-driven":  {"test first", "write test", "tdd"},
	"incremental":  {"incremental", "step by step", "small change"},
	"refactor-first": {"refactor", "clean up", "simplify"},
}

var techniqueKeywordBundles = map[string][]string{
	"error-handling": {"error handling", "catch", "recover"},
	"validation":     {"validate", "validation", "sanitize"},
	"logging":        {"log", "logging", "trace"},
	"documentation":  {"document", "comment", "readme"},
}

// ExtractedPattern is one mined pattern candidate.
type ExtractedPattern struct {
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Frequency  int      `json:"frequency"`
	SourceIDs  []string `json:"source_ids"`
}

// SuccessPatternExtractor mines SEQUENCE/APPROACH/TECHNIQUE patterns from
// successful episodic actions.
type SuccessPatternExtractor struct {
	store  *store.Store
	api    *agentapi.API
	logger *zap.Logger
}

func NewSuccessPatternExtractor(st *store.Store, api *agentapi.API, logger *zap.Logger) *SuccessPatternExtractor {
	return &SuccessPatternExtractor{store: st, api: api, logger: logger.With(zap.String("component", "learning.success_pattern"))}
}

func (s *SuccessPatternExtractor) Name() string { return "success_pattern_extractor" }

func (s *SuccessPatternExtractor) Run(ctx context.Context, project, userID string) (*analysis.Report, error) {
	report := analysis.NewReport(project, userID)

	since := time.Now().Add(-defaultExtractLookbackDays * 24 * time.Hour)
	actions, err := s.store.List(ctx, store.MemoryFilter{UserID: userID, Sectors: []string{string(store.SectorEpisodic)}, Since: &since})
	if err != nil {
		return report, err
	}

	var successful []store.Memory
	for _, a := range actions {
		if outcomeOf(&a) == "success" {
			successful = append(successful, a)
		}
	}

	candidates := s.extractSequences(successful)
	candidates = append(candidates, s.extractApproaches(successful)...)
	candidates = append(candidates, s.extractTechniques(successful)...)

	for _, c := range candidates {
		report.Counts["candidates"]++
		if c.Confidence < minPatternConfidence || c.Frequency < minPatternFrequency {
			continue
		}
		m, err := s.api.RecordPattern(ctx, project, userID, agentapi.PatternInput{
			PatternName: c.Name,
			Description: fmt.Sprintf("extracted %s pattern: %s (confidence=%.2f, frequency=%d)", c.Kind, c.Name, c.Confidence, c.Frequency),
			Tags:        []string{"extracted-pattern"},
		})
		if err != nil {
			s.logger.Warn("failed to persist extracted pattern", zap.Error(err))
			continue
		}
		for _, srcID := range c.SourceIDs {
			if err := s.api.Link(ctx, srcID, m.ID, extractedWaypointWeight, "used_pattern"); err != nil {
				s.logger.Warn("failed to link source action to extracted pattern", zap.Error(err))
			}
		}
		report.Counts["extracted"]++
		report.NoteAction(fmt.Sprintf("extracted %s pattern %q", c.Kind, c.Name))
	}

	if err := s.store.AppendReport(ctx, "report_success_pattern_extractor", store.AnalyzerReportRow{
		ProjectName:   project,
		UserID:        userID,
		HeadlineCount: report.Counts["extracted"],
	}); err != nil {
		s.logger.Warn("failed to persist success pattern extractor report", zap.Error(err))
	}
	return report, nil
}

// extractSequences counts 3-step normalized-action sequences.
func (s *SuccessPatternExtractor) extractSequences(actions []store.Memory) []ExtractedPattern {
	if len(actions) < 3 {
		return nil
	}
	sortByCreatedAt(actions)

	type seqCount struct {
		count int
		ids   []string
	}
	seqs := make(map[string]*seqCount)

	for i := 0; i+2 < len(actions); i++ {
		key := strings.Join([]string{
			normalizeAction(actions[i].Content),
			normalizeAction(actions[i+1].Content),
			normalizeAction(actions[i+2].Content),
		}, " -> ")
		if seqs[key] == nil {
			seqs[key] = &seqCount{}
		}
		seqs[key].count++
		seqs[key].ids = append(seqs[key].ids, actions[i].ID, actions[i+1].ID, actions[i+2].ID)
	}

	var out []ExtractedPattern
	for key, sc := range seqs {
		if sc.count < 2 {
			continue
		}
		out = append(out, ExtractedPattern{
			Kind:       PatternSequence,
			Name:       key,
			Confidence: minFloat(0.95, 0.5+float64(sc.count)*0.1),
			Frequency:  sc.count,
			SourceIDs:  dedupeStrings(sc.ids),
		})
	}
	return out
}

func (s *SuccessPatternExtractor) extractApproaches(actions []store.Memory) []ExtractedPattern {
	return extractByBundles(actions, approachKeywordBundles, PatternApproach, 3)
}

func (s *SuccessPatternExtractor) extractTechniques(actions []store.Memory) []ExtractedPattern {
	return extractByBundles(actions, techniqueKeywordBundles, PatternTechnique, 2)
}

func extractByBundles(actions []store.Memory, bundles map[string][]string, kind string, minCount int) []ExtractedPattern {
	var out []ExtractedPattern
	for name, keywords := range bundles {
		var ids []string
		for _, a := range actions {
			lower := strings.ToLower(a.Content)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					ids = append(ids, a.ID)
					break
				}
			}
		}
		if len(ids) < minCount {
			continue
		}
		out = append(out, ExtractedPattern{
			Kind:       kind,
			Name:       name,
			Confidence: minFloat(0.9, 0.5+float64(len(ids))*0.08),
			Frequency:  len(ids),
			SourceIDs:  ids,
		})
	}
	return out
}

// normalizeAction collapses quoted substrings to a placeholder and
// lowercases the rest, so near-identical actions with different literal
// values collapse to the same sequence key. An unterminated quote simply
// fails to match and the rest of the string is left untouched.
func normalizeAction(action string) string {
	var sb strings.Builder
	inQuote := false
	for _, r := range action {
		switch {
		case r == '"':
			inQuote = !inQuote
			if !inQuote {
				sb.WriteString("<value>")
			}
		case inQuote:
			// swallow quoted content
		default:
			sb.WriteRune(r)
		}
	}
	result := sb.String()
	if inQuote {
		// unterminated quote: nothing was swallowed past the opening mark
		return strings.ToLower(action)
	}
	return strings.ToLower(strings.TrimSpace(result))
}

func sortByCreatedAt(ms []store.Memory) {
	for i := 1; i < len(ms); i++ {
		for j := i; j > 0 && ms[j].CreatedAt.Before(ms[j-1].CreatedAt); j-- {
			ms[j], ms[j-1] = ms[j-1], ms[j]
		}
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func outcomeOf(m *store.Memory) string {
	if v, ok := m.Meta["outcome"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
