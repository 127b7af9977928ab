package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmemory/openmemory/types"
)

// Store owns the durability contract for memories, waypoints, and
// per-analyzer report tables. All writes are single-statement atomic; no
// explicit transactions are promised to callers.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	// reportTables is the "report-table existence cache" named in the
	// design notes — the second piece of global mutable state besides the
	// enforcement lock table. Guarded by reportTablesMu rather than left
	// to sync.Map's own semantics, since presence checks and creation must
	// be atomic together.
	reportTablesMu sync.Mutex
	reportTables   map[string]bool
}

// New wraps an already-open *gorm.DB and lazily creates the core tables.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Memory{}, &Waypoint{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate core tables: %w", err)
	}

	return &Store{
		db:           db,
		logger:       logger.With(zap.String("component", "store")),
		reportTables: make(map[string]bool),
	}, nil
}

// DB exposes the underlying *gorm.DB for callers (analyzers) that need
// read-only scoped queries the five primitives don't cover.
func (s *Store) DB() *gorm.DB { return s.db }

// Insert writes a new memory. Salience is clamped to [0.1, 1.0] and
// coactivations defaulted to 0 before the write.
func (s *Store) Insert(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		return types.NewError(types.ErrValidationError, "memory id is required")
	}
	m.Salience = ClampSalience(m.Salience)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.UpdatedAt = m.CreatedAt
	if m.LastSeenAt.IsZero() {
		m.LastSeenAt = m.CreatedAt
	}

	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return types.NewError(types.ErrStoreWriteFailed, "failed to insert memory").WithCause(err)
	}
	return nil
}

// ClampSalience enforces the [0.1, 1.0] invariant.
func ClampSalience(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// GetByID fetches a single memory, or nil if it does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Memory, error) {
	var m Memory
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, types.NewError(types.ErrStoreWriteFailed, "failed to load memory").WithCause(err)
	}
	return &m, nil
}

// MemoryFilter scopes a memory listing query.
type MemoryFilter struct {
	UserID  string
	Sectors []string
	Tag     string
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// List returns memories matching the filter, most-recent first.
func (s *Store) List(ctx context.Context, f MemoryFilter) ([]Memory, error) {
	q := s.db.WithContext(ctx).Model(&Memory{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if len(f.Sectors) > 0 {
		q = q.Where("primary_sector IN ?", f.Sectors)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("created_at <= ?", *f.Until)
	}
	q = q.Order("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []Memory
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrStoreWriteFailed, "failed to list memories").WithCause(err)
	}
	if f.Tag == "" {
		return rows, nil
	}

	filtered := rows[:0]
	for _, m := range rows {
		if Tags(m.Tags).Has(f.Tag) {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// MemoryFields is the set of columns UpdateMemoryFields is permitted to
// touch, per the Record Store contract.
type MemoryFields struct {
	Salience      *float64
	Coactivations *int64
	LastSeenAt    *time.Time
}

// UpdateMemoryFields applies a partial update to one memory. Last-commit-
// wins under concurrent handlers touching the same memory, which is
// acceptable per the concurrency model — salience/coactivations are
// monotone under reinforcement and idempotent under decay at the floor.
func (s *Store) UpdateMemoryFields(ctx context.Context, id string, f MemoryFields) error {
	updates := map[string]any{"updated_at": time.Now()}
	if f.Salience != nil {
		updates["salience"] = ClampSalience(*f.Salience)
	}
	if f.Coactivations != nil {
		updates["coactivations"] = *f.Coactivations
	}
	if f.LastSeenAt != nil {
		updates["last_seen_at"] = *f.LastSeenAt
	}

	res := s.db.WithContext(ctx).Model(&Memory{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return types.NewError(types.ErrStoreWriteFailed, "failed to update memory fields").WithCause(res.Error)
	}
	return nil
}

// UpsertWaypoint creates or updates the single edge for (src,dst).
func (s *Store) UpsertWaypoint(ctx context.Context, src, dst string, weight float64) error {
	now := time.Now()
	wp := Waypoint{SrcID: src, DstID: dst, Weight: weight, CreatedAt: now, UpdatedAt: now}

	var existing Waypoint
	err := s.db.WithContext(ctx).Where("src_id = ? AND dst_id = ?", src, dst).First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		if err := s.db.WithContext(ctx).Create(&wp).Error; err != nil {
			return types.NewError(types.ErrStoreWriteFailed, "failed to create waypoint").WithCause(err)
		}
	case err != nil:
		return types.NewError(types.ErrStoreWriteFailed, "failed to look up waypoint").WithCause(err)
	default:
		if err := s.db.WithContext(ctx).Model(&Waypoint{}).
			Where("src_id = ? AND dst_id = ?", src, dst).
			Updates(map[string]any{"weight": weight, "updated_at": now}).Error; err != nil {
			return types.NewError(types.ErrStoreWriteFailed, "failed to update waypoint").WithCause(err)
		}
	}
	return nil
}

// WaypointsFrom returns every outgoing edge from id.
func (s *Store) WaypointsFrom(ctx context.Context, id string) ([]Waypoint, error) {
	var rows []Waypoint
	if err := s.db.WithContext(ctx).Where("src_id = ?", id).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrStoreWriteFailed, "failed to list outgoing waypoints").WithCause(err)
	}
	return rows, nil
}

// WaypointsTo returns every incoming edge to id.
func (s *Store) WaypointsTo(ctx context.Context, id string) ([]Waypoint, error) {
	var rows []Waypoint
	if err := s.db.WithContext(ctx).Where("dst_id = ?", id).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrStoreWriteFailed, "failed to list incoming waypoints").WithCause(err)
	}
	return rows, nil
}

// AllWaypoints returns every waypoint, for sweeps that must scan the graph.
func (s *Store) AllWaypoints(ctx context.Context) ([]Waypoint, error) {
	var rows []Waypoint
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrStoreWriteFailed, "failed to list waypoints").WithCause(err)
	}
	return rows, nil
}

// DeleteWaypointsWhere deletes edges matching a caller-built predicate
// applied to each in-memory row — used by the broken-waypoint sweep and
// the weak-waypoint pruner, both of which need expressive conditions that
// don't map cleanly onto a SQL WHERE clause (missing-endpoint checks).
func (s *Store) DeleteWaypointsWhere(ctx context.Context, predicate func(Waypoint) bool) (int, error) {
	all, err := s.AllWaypoints(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, wp := range all {
		if !predicate(wp) {
			continue
		}
		if err := s.db.WithContext(ctx).
			Where("src_id = ? AND dst_id = ?", wp.SrcID, wp.DstID).
			Delete(&Waypoint{}).Error; err != nil {
			return removed, types.NewError(types.ErrStoreWriteFailed, "failed to delete waypoint").WithCause(err)
		}
		removed++
	}
	return removed, nil
}

// DeleteWaypoint removes a single edge, used when consolidation moves
// edges onto a survivor and the duplicate edge must go.
func (s *Store) DeleteWaypoint(ctx context.Context, src, dst string) error {
	if err := s.db.WithContext(ctx).Where("src_id = ? AND dst_id = ?", src, dst).Delete(&Waypoint{}).Error; err != nil {
		return types.NewError(types.ErrStoreWriteFailed, "failed to delete waypoint").WithCause(err)
	}
	return nil
}

// ensureReportTable lazily creates table for an analyzer's report rows,
// caching the existence check so repeated appends skip AutoMigrate.
func (s *Store) ensureReportTable(table string) error {
	s.reportTablesMu.Lock()
	defer s.reportTablesMu.Unlock()

	if s.reportTables[table] {
		return nil
	}
	if err := s.db.Table(table).AutoMigrate(&AnalyzerReportRow{}); err != nil {
		return err
	}
	s.reportTables[table] = true
	return nil
}

// AppendReport writes one append-only audit row to an analyzer's report
// table, creating the table on first write. Report tables are never
// mutated after insert. On failure, the store retries once after
// (re-)creating the table; if the retry still fails, the caller must
// treat the report as computed-but-not-persisted per the StoreWriteFailed
// contract rather than aborting the analyzer run.
func (s *Store) AppendReport(ctx context.Context, table string, row AnalyzerReportRow) error {
	if err := s.ensureReportTable(table); err != nil {
		return types.NewError(types.ErrStoreWriteFailed, "failed to prepare report table").WithCause(err)
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}

	err := s.db.WithContext(ctx).Table(table).Create(&row).Error
	if err == nil {
		return nil
	}

	s.logger.Warn("report append failed, retrying once after table check",
		zap.String("table", table), zap.Error(err))

	s.reportTablesMu.Lock()
	delete(s.reportTables, table)
	s.reportTablesMu.Unlock()

	if err := s.ensureReportTable(table); err != nil {
		return types.NewError(types.ErrStoreWriteFailed, "report retry failed").WithCause(err)
	}
	if err := s.db.WithContext(ctx).Table(table).Create(&row).Error; err != nil {
		return types.NewError(types.ErrStoreWriteFailed, "report retry failed").WithCause(err).WithRetryable(false)
	}
	return nil
}

// RecentReports reads the most recent rows from an analyzer's report
// table, newest first, for the "stats"/"trends" HTTP endpoints that
// surface history without re-running the analyzer. An analyzer that has
// never run yet has no table, which is reported as an empty slice rather
// than an error.
func (s *Store) RecentReports(ctx context.Context, table, project string, limit int) ([]AnalyzerReportRow, error) {
	s.reportTablesMu.Lock()
	exists := s.reportTables[table]
	s.reportTablesMu.Unlock()
	if !exists {
		return nil, nil
	}

	if limit <= 0 {
		limit = 20
	}
	var rows []AnalyzerReportRow
	q := s.db.WithContext(ctx).Table(table).Order("id DESC").Limit(limit)
	if project != "" {
		q = q.Where("project_name = ?", project)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrStoreWriteFailed, "failed to read report history").WithCause(err)
	}
	return rows, nil
}
