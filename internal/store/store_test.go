package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	st, err := New(db, zap.NewNop())
	require.NoError(t, err)
	return st
}

func TestClampSalience(t *testing.T) {
	assert.Equal(t, 0.1, ClampSalience(-1))
	assert.Equal(t, 0.1, ClampSalience(0.05))
	assert.Equal(t, 1.0, ClampSalience(5))
	assert.Equal(t, 0.5, ClampSalience(0.5))
}

func TestSectorValid(t *testing.T) {
	assert.True(t, SectorSemantic.Valid())
	assert.False(t, Sector("bogus").Valid())
	assert.Len(t, AllSectors(), 5)
}

func TestTagsHasAndAdd(t *testing.T) {
	tags := Tags{"a", "b"}
	assert.True(t, tags.Has("a"))
	assert.False(t, tags.Has("c"))

	added := tags.Add("a")
	assert.Len(t, added, 2) // no duplicate

	added = tags.Add("c")
	assert.Len(t, added, 3)
}

func TestInsertRequiresID(t *testing.T) {
	st := newTestStore(t)
	err := st.Insert(context.Background(), &Memory{Content: "no id"})
	require.Error(t, err)
}

func TestInsertClampsSalienceAndDefaultsTimestamps(t *testing.T) {
	st := newTestStore(t)
	m := &Memory{ID: "m1", Content: "hello", PrimarySector: string(SectorSemantic), Salience: 5}
	require.NoError(t, st.Insert(context.Background(), m))
	assert.Equal(t, 1.0, m.Salience)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Equal(t, m.CreatedAt, m.LastSeenAt)
}

func TestGetByIDMissingReturnsNilNotError(t *testing.T) {
	st := newTestStore(t)
	m, err := st.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestListFiltersByUserSectorAndTag(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, &Memory{ID: "1", UserID: "u1", PrimarySector: string(SectorSemantic), Tags: Tags{"x"}, Salience: 0.5}))
	require.NoError(t, st.Insert(ctx, &Memory{ID: "2", UserID: "u1", PrimarySector: string(SectorEpisodic), Tags: Tags{"y"}, Salience: 0.5}))
	require.NoError(t, st.Insert(ctx, &Memory{ID: "3", UserID: "u2", PrimarySector: string(SectorSemantic), Tags: Tags{"x"}, Salience: 0.5}))

	rows, err := st.List(ctx, MemoryFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = st.List(ctx, MemoryFilter{UserID: "u1", Sectors: []string{"episodic"}})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)

	rows, err = st.List(ctx, MemoryFilter{Tag: "x"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUpdateMemoryFieldsPartialUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, &Memory{ID: "1", PrimarySector: string(SectorSemantic), Salience: 0.5}))

	newSalience := 0.9
	require.NoError(t, st.UpdateMemoryFields(ctx, "1", MemoryFields{Salience: &newSalience}))

	got, err := st.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Salience)
	assert.Equal(t, int64(0), got.Coactivations)
}

func TestUpsertWaypointCreatesThenUpdates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertWaypoint(ctx, "a", "b", 0.5))
	out, err := st.WaypointsFrom(ctx, "a")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0.5, out[0].Weight)

	require.NoError(t, st.UpsertWaypoint(ctx, "a", "b", 0.9))
	out, err = st.WaypointsFrom(ctx, "a")
	require.NoError(t, err)
	require.Len(t, out, 1) // upsert, not a second row
	assert.Equal(t, 0.9, out[0].Weight)

	in, err := st.WaypointsTo(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, in, 1)
}

func TestDeleteWaypointsWherePredicate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertWaypoint(ctx, "a", "b", 0.5))
	require.NoError(t, st.UpsertWaypoint(ctx, "a", "c", 0.2))

	removed, err := st.DeleteWaypointsWhere(ctx, func(w Waypoint) bool { return w.DstID == "c" })
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	all, err := st.AllWaypoints(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "b", all[0].DstID)
}

func TestDeleteWaypointSingleEdge(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertWaypoint(ctx, "a", "b", 0.5))
	require.NoError(t, st.DeleteWaypoint(ctx, "a", "b"))

	all, err := st.AllWaypoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppendReportCreatesTableLazilyAndRecentReportsReadsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Before any append, the table doesn't exist yet: reported as empty.
	rows, err := st.RecentReports(ctx, "analyzer_gap_detector", "proj", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, st.AppendReport(ctx, "analyzer_gap_detector", AnalyzerReportRow{
		ProjectName: "proj", UserID: "u1", HeadlineCount: 3, JSONBlob: "{}",
	}))
	require.NoError(t, st.AppendReport(ctx, "analyzer_gap_detector", AnalyzerReportRow{
		ProjectName: "proj", UserID: "u1", HeadlineCount: 5, JSONBlob: "{}", Timestamp: time.Now(),
	}))

	rows, err = st.RecentReports(ctx, "analyzer_gap_detector", "proj", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 5, rows[0].HeadlineCount) // newest (highest id) first
}
