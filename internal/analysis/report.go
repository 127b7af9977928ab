// Package analysis holds the shared report/severity vocabulary the
// analyzer battery (C6-C9) and the orchestrator (C10) report through,
// plus the uniform analyzer contract each of them implements.
package analysis

import (
	"context"
	"time"
)

// Severity grades a single issue or assessment.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Issue is one finding surfaced by an analyzer.
type Issue struct {
	Severity    Severity       `json:"severity"`
	Kind        string         `json:"kind"`
	MemoryID    string         `json:"memory_id,omitempty"`
	Description string         `json:"description"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// Report is the uniform shape every analyzer in C6-C9 returns, matching
// §4.6's "{timestamp, project, user, counts, issues/assessments,
// auto_actions_taken}".
type Report struct {
	Timestamp        time.Time      `json:"timestamp"`
	Project          string         `json:"project"`
	User             string         `json:"user"`
	Counts           map[string]int `json:"counts"`
	Issues           []Issue        `json:"issues,omitempty"`
	AutoActionsTaken []string       `json:"auto_actions_taken,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// NewReport starts an empty report stamped with now.
func NewReport(project, user string) *Report {
	return &Report{
		Timestamp: time.Now(),
		Project:   project,
		User:      user,
		Counts:    make(map[string]int),
	}
}

// AddIssue appends one finding.
func (r *Report) AddIssue(i Issue) { r.Issues = append(r.Issues, i) }

// NoteAction records a mutation the analyzer performed as a side effect.
func (r *Report) NoteAction(action string) {
	r.AutoActionsTaken = append(r.AutoActionsTaken, action)
}

// Analyzer is the uniform contract every C6-C9 component implements,
// letting C10 fan them out identically regardless of what each one does
// internally.
type Analyzer interface {
	Name() string
	Run(ctx context.Context, project, userID string) (*Report, error)
}
