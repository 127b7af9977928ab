package hsg

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/embedding"
	"github.com/openmemory/openmemory/internal/store"
)

func logOnePlus(x float64) float64 {
	return math.Log(1 + x)
}

// Score computes cos(query, embedding) * salience * (1 + log(1 + coactivations)).
// Cosine similarity is the primary signal; salience and usage are
// multiplicative amplifiers.
func Score(queryVec []float64, m *store.Memory) float64 {
	cos := embedding.CosineSimilarity(queryVec, m.Embedding)
	return cos * m.Salience * (1 + logOnePlus(float64(m.Coactivations)))
}

// Scored pairs a memory with its retrieval score.
type Scored struct {
	Memory *store.Memory
	Score  float64
}

// QueryOptions scopes a retrieval call.
type QueryOptions struct {
	Sectors []string
	UserID  string
	K       int
}

// candidateKey identifies a (user, sector-set) candidate scan for the hot-tier
// cache; query text and k are excluded since every query over the same scope
// rescans the same rows regardless of what it's looking for.
func candidateKey(opts QueryOptions) string {
	sectors := append([]string(nil), opts.Sectors...)
	sort.Strings(sectors)
	return fmt.Sprintf("hsg:candidates:%s:%s", opts.UserID, strings.Join(sectors, ","))
}

// candidateSet returns every memory in scope for opts, consulting the
// hot-tier cache first when one is attached. A cache miss (including "no
// cache attached") always falls back to the store and, on a hit miss,
// repopulates the cache for the next call.
func (e *Engine) candidateSet(ctx context.Context, opts QueryOptions) ([]store.Memory, error) {
	if e.cache == nil {
		return e.store.List(ctx, store.MemoryFilter{UserID: opts.UserID, Sectors: opts.Sectors})
	}

	key := candidateKey(opts)
	var cached []store.Memory
	if err := e.cache.GetJSON(ctx, key, &cached); err == nil {
		if e.metrics != nil {
			e.metrics.RecordCacheHit("hsg_candidates")
		}
		return cached, nil
	}
	if e.metrics != nil {
		e.metrics.RecordCacheMiss("hsg_candidates")
	}

	candidates, err := e.store.List(ctx, store.MemoryFilter{UserID: opts.UserID, Sectors: opts.Sectors})
	if err != nil {
		return nil, err
	}
	if err := e.cache.SetJSON(ctx, key, candidates, e.cacheTTL); err != nil {
		e.logger.Warn("query cache populate failed", zap.Error(err))
	}
	return candidates, nil
}

// Query embeds text, scores every candidate in the scoped sector/user set,
// returns the top K by score (ties broken by most-recent created_at), and
// touches the returned memories (coactivations++, last_seen_at=now).
func (e *Engine) Query(ctx context.Context, text string, opts QueryOptions) ([]Scored, error) {
	if opts.K <= 0 {
		opts.K = 10
	}

	queryVec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		// Reads are best-effort: a retrieval failure returns an empty
		// result rather than propagating an error to the caller.
		e.logger.Warn("embedder unavailable during query, returning empty result", zap.Error(err))
		return nil, nil
	}

	candidates, err := e.candidateSet(ctx, opts)
	if err != nil {
		e.logger.Warn("store list failed during query, returning empty result")
		return nil, nil
	}

	scored := make([]Scored, 0, len(candidates))
	for i := range candidates {
		m := &candidates[i]
		scored = append(scored, Scored{Memory: m, Score: Score(queryVec, m)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
	})

	if len(scored) > opts.K {
		scored = scored[:opts.K]
	}

	now := time.Now()
	for _, s := range scored {
		coact := s.Memory.Coactivations + 1
		_ = e.store.UpdateMemoryFields(ctx, s.Memory.ID, store.MemoryFields{
			Coactivations: &coact,
			LastSeenAt:    &now,
		})
		s.Memory.Coactivations = coact
		s.Memory.LastSeenAt = now
	}

	return scored, nil
}
