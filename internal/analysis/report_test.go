package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReportInitializesCounts(t *testing.T) {
	r := NewReport("proj", "user1")
	assert.Equal(t, "proj", r.Project)
	assert.Equal(t, "user1", r.User)
	assert.NotNil(t, r.Counts)
	assert.False(t, r.Timestamp.IsZero())
}

func TestAddIssueAppends(t *testing.T) {
	r := NewReport("proj", "user1")
	r.AddIssue(Issue{Severity: SeverityHigh, Kind: "gap", Description: "missing decision"})
	require := assert.New(t)
	require.Len(r.Issues, 1)
	require.Equal(SeverityHigh, r.Issues[0].Severity)
}

func TestNoteActionAppends(t *testing.T) {
	r := NewReport("proj", "user1")
	r.NoteAction("archived memory m1")
	r.NoteAction("merged memory m2 into m3")
	assert.Equal(t, []string{"archived memory m1", "merged memory m2 into m3"}, r.AutoActionsTaken)
}
