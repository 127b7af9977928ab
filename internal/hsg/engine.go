// Package hsg implements the Hierarchical Semantic Graph Engine (C3):
// sector-assigned memory nodes, salience/decay/reinforcement, coactivation
// counters, tier classification, the waypoint graph, and similarity-ranked
// retrieval.
package hsg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/embedding"
	"github.com/openmemory/openmemory/internal/store"
	"github.com/openmemory/openmemory/types"
)

// Reinforcement boosts by reason, per the "smart" reinforcement table.
const (
	BoostSuccess         = 0.20
	BoostFrequentUse     = 0.15
	BoostCriticalDecision = 0.25
	BoostReference       = 0.10
)

// boostForReason maps a reinforcement reason to its salience boost.
func boostForReason(reason string) (float64, bool) {
	switch reason {
	case "success":
		return BoostSuccess, true
	case "frequent_use":
		return BoostFrequentUse, true
	case "critical_decision":
		return BoostCriticalDecision, true
	case "reference":
		return BoostReference, true
	default:
		return 0, false
	}
}

// Tier is the derived freshness/importance band, never stored.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Config parameterizes the engine; mirrors config.HSGConfig but decoupled
// from the config package so hsg has no import-time dependency on it.
type Config struct {
	SectorLambda map[string]float64 // memories/day, per sector
}

// QueryCache is the hot-tier read-through cache Engine.Query consults for
// the candidate set a retrieval scores over. Implemented by
// internal/cache.Manager (Redis-backed); left nil the engine always reads
// the candidate set straight from the store.
type QueryCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// cacheMetrics is the narrow slice of metrics.Collector Query needs to
// record cache hits/misses, kept as an interface so hsg never imports the
// metrics package directly.
type cacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// candidateInvalidator is implemented by a QueryCache that can evict a
// user's cached candidate sets directly (internal/cache.Manager). Checked
// with a type assertion rather than added to QueryCache itself so test
// doubles that only implement Get/SetJSON still satisfy the engine's cache
// dependency.
type candidateInvalidator interface {
	InvalidateCandidates(ctx context.Context, userID string) error
}

// Engine is the HSG Engine.
type Engine struct {
	store    *store.Store
	embedder embedding.Embedder
	cfg      Config
	logger   *zap.Logger

	cache    QueryCache
	cacheTTL time.Duration
	metrics  cacheMetrics
}

// New builds an Engine over a Record Store and Embedding Port.
func New(st *store.Store, emb embedding.Embedder, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:    st,
		embedder: emb,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "hsg")),
		cacheTTL: 30 * time.Second,
	}
}

// SetCache attaches the hot-tier read-through cache and the metrics
// collector that records its hit/miss rate. Optional: an engine with no
// cache attached just reads the candidate set from the store every query.
func (e *Engine) SetCache(cache QueryCache, m cacheMetrics) {
	e.cache = cache
	e.metrics = m
}

// Insert writes a new memory with an embedding obtained from the
// Embedding Port. Salience is clamped on write.
func (e *Engine) Insert(ctx context.Context, content string, sector store.Sector, userID string, tags store.Tags, meta store.Meta, salience float64) (*store.Memory, error) {
	if !sector.Valid() {
		return nil, types.NewError(types.ErrBadRequest, fmt.Sprintf("invalid sector %q", sector))
	}

	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, types.NewError(types.ErrEmbedderUnavailable, "embedding failed").WithCause(err)
	}

	now := time.Now()
	m := &store.Memory{
		ID:            uuid.NewString(),
		Content:       content,
		Embedding:     vec,
		Tags:          tags,
		Meta:          meta,
		UserID:        userID,
		PrimarySector: string(sector),
		Salience:      salience,
		Coactivations: 0,
		CreatedAt:     now,
		LastSeenAt:    now,
	}

	if err := e.store.Insert(ctx, m); err != nil {
		return nil, err
	}

	if inv, ok := e.cache.(candidateInvalidator); ok {
		if err := inv.InvalidateCandidates(ctx, userID); err != nil {
			e.logger.Warn("candidate cache invalidation failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	return m, nil
}

// Reinforce bumps salience by a raw boost and increments coactivations.
func (e *Engine) Reinforce(ctx context.Context, id string, boost float64) error {
	m, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return types.NewError(types.ErrNotFound, "memory not found")
	}

	newSalience := store.ClampSalience(min1(m.Salience + boost))
	coact := m.Coactivations + 1
	return e.store.UpdateMemoryFields(ctx, id, store.MemoryFields{
		Salience:      &newSalience,
		Coactivations: &coact,
	})
}

// SmartReinforce picks the boost from a named reason.
func (e *Engine) SmartReinforce(ctx context.Context, id, reason string) error {
	boost, ok := boostForReason(reason)
	if !ok {
		return types.NewError(types.ErrBadRequest, fmt.Sprintf("unknown reinforcement reason %q", reason))
	}
	return e.Reinforce(ctx, id, boost)
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// TierOf classifies a memory's freshness/importance band.
func TierOf(m *store.Memory, now time.Time) Tier {
	dt := now.Sub(maxTime(m.LastSeenAt, m.UpdatedAt))
	recent := dt < 6*24*time.Hour
	if recent && (m.Coactivations > 5 || m.Salience > 0.7) {
		return TierHot
	}
	if recent || m.Salience > 0.4 {
		return TierWarm
	}
	return TierCold
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// ImportanceScore is the metrics-surfaced composite score.
func ImportanceScore(m *store.Memory) float64 {
	return m.Salience * (1 + logOnePlus(float64(m.Coactivations)))
}
