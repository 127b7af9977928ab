package hsg

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/pool"
	"github.com/openmemory/openmemory/internal/store"
)

// decayWorkers bounds how many memory updates within one batch run
// concurrently. Updates are independent rows, so bounding by a worker pool
// rather than one goroutine per row keeps the store's connection pool from
// being overrun on a large batch.
const decayWorkers = 8

// defaultLambda is used for a memory whose sector has no configured decay
// rate, which should not happen in a valid config but keeps DecayTick total.
const defaultLambda = 0.005

// lambdaFor returns the per-day decay rate for a memory's sector.
func (e *Engine) lambdaFor(sector string) float64 {
	if l, ok := e.cfg.SectorLambda[sector]; ok {
		return l
	}
	return defaultLambda
}

// DecayResult summarizes one decay sweep for logging.
type DecayResult struct {
	Scanned int
	Decayed int
	Floored int
}

// DecayTick applies exponential half-life decay to every memory's salience,
// scaled by its sector's lambda and the elapsed days since last_seen_at.
// Decay runs every tick regardless of whether last_seen_at has moved since
// the previous tick — a memory untouched across two ticks decays twice, by
// design (see the Open Question decision in DESIGN.md).
func (e *Engine) DecayTick(ctx context.Context, batchSize int) (DecayResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := time.Now()
	var result DecayResult
	var mu sync.Mutex

	workers := pool.NewGoroutinePool(pool.DecaySweepPoolConfig(batchSize, decayWorkers))
	defer workers.Close()

	offset := 0
	for {
		var batch []store.Memory
		if err := e.store.DB().WithContext(ctx).
			Order("id").
			Offset(offset).
			Limit(batchSize).
			Find(&batch).Error; err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}
		offset += len(batch)

		var wg sync.WaitGroup
		for _, m := range batch {
			m := m
			wg.Add(1)
			task := func(taskCtx context.Context) error {
				defer wg.Done()
				e.decayOne(taskCtx, m, now, &result, &mu)
				return nil
			}
			if err := workers.Submit(ctx, task); err != nil {
				// Pool exhausted or closed: fall back to running inline so a
				// decay tick never drops rows silently.
				wg.Done()
				e.decayOne(ctx, m, now, &result, &mu)
			}
		}
		wg.Wait()
	}

	e.logger.Info("decay tick complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("decayed", result.Decayed),
		zap.Int("floored", result.Floored))
	return result, nil
}

// decayOne applies decay to a single memory and folds the outcome into the
// shared DecayResult, guarded by mu since it may run on a pool worker
// goroutine concurrently with siblings from the same batch.
func (e *Engine) decayOne(ctx context.Context, m store.Memory, now time.Time, result *DecayResult, mu *sync.Mutex) {
	mu.Lock()
	result.Scanned++
	mu.Unlock()

	days := now.Sub(m.LastSeenAt).Hours() / 24
	if days <= 0 {
		return
	}
	lambda := e.lambdaFor(m.PrimarySector)
	decayed := m.Salience * math.Exp(-lambda*days)
	clamped := store.ClampSalience(decayed)
	if clamped == m.Salience {
		return
	}

	mu.Lock()
	result.Decayed++
	if clamped == 0.1 {
		result.Floored++
	}
	mu.Unlock()

	if err := e.store.UpdateMemoryFields(ctx, m.ID, store.MemoryFields{Salience: &clamped}); err != nil {
		e.logger.Warn("decay write failed", zap.String("memory_id", m.ID), zap.Error(err))
	}
}
