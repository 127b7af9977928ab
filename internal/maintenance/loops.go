// Package maintenance runs the HSG engine's background sweeps: a decay
// tick on a configurable interval (firing once on boot and then on
// schedule) and a weekly weak-waypoint pruner.
package maintenance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/metrics"
)

const weakWaypointPruneInterval = 7 * 24 * time.Hour

// Loops owns the two background sweeps.
type Loops struct {
	engine         *hsg.Engine
	decayInterval  time.Duration
	pruneThreshold float64
	metrics        *metrics.Collector
	logger         *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds the maintenance loops. decayInterval and pruneThreshold come
// from HSGConfig.DecayIntervalMins and HSGConfig.WaypointPruneWeak.
func New(engine *hsg.Engine, decayInterval time.Duration, pruneThreshold float64, m *metrics.Collector, logger *zap.Logger) *Loops {
	return &Loops{
		engine:         engine,
		decayInterval:  decayInterval,
		pruneThreshold: pruneThreshold,
		metrics:        m,
		logger:         logger.With(zap.String("component", "maintenance")),
		stopCh:         make(chan struct{}),
	}
}

// Start launches both sweeps as background goroutines. The decay sweep
// fires once immediately, then on its ticker; the prune sweep first fires
// one full interval after Start.
func (l *Loops) Start() {
	l.wg.Add(2)
	go l.runDecayLoop()
	go l.runPruneLoop()
}

// Stop signals both loops and waits for them to exit.
func (l *Loops) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *Loops) runDecayLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.decayInterval)
	defer ticker.Stop()

	l.runDecayTick()
	for {
		select {
		case <-ticker.C:
			l.runDecayTick()
		case <-l.stopCh:
			l.logger.Info("decay loop stopped")
			return
		}
	}
}

func (l *Loops) runDecayTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := l.engine.DecayTick(ctx, 500)
	if err != nil {
		l.logger.Error("decay tick failed", zap.Error(err))
		return
	}
	if l.metrics != nil {
		l.metrics.RecordDecayTick(result.Scanned, result.Floored)
	}
	l.logger.Info("decay tick summary",
		zap.Int("scanned", result.Scanned),
		zap.Int("decayed", result.Decayed),
		zap.Int("floored", result.Floored))
}

func (l *Loops) runPruneLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(weakWaypointPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runPruneTick()
		case <-l.stopCh:
			l.logger.Info("waypoint prune loop stopped")
			return
		}
	}
}

func (l *Loops) runPruneTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	removed, err := l.engine.PruneWeakWaypoints(ctx, l.pruneThreshold)
	if err != nil {
		l.logger.Error("waypoint prune failed", zap.Error(err))
		return
	}
	l.logger.Info("waypoint prune summary", zap.Int("removed", removed))
}
