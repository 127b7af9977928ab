// Package enforcement implements the Enforcement Gate (C11): mandatory-
// usage checks that run in front of every write-style Agent API call,
// plus the task-scoped in-process lock table.
package enforcement

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/store"
	"github.com/openmemory/openmemory/types"
)

// staleLockAge is how long a lock can be held before another agent may
// reclaim it, per the (project_name:task_id) contract.
const staleLockAge = 5 * time.Minute

// confirmationHints are substrings that mark a payload as likely to need
// a human confirmation step. Matching one is a warning, never a block.
var confirmationHints = []string{"confirm", "are you sure", "approve before", "needs approval"}

// requiredPayloadFields lists the keys every PayloadKind must carry,
// mirroring the Agent API's own per-endpoint required-field checks.
var requiredPayloadFields = map[string][]string{
	"state":    {"state"},
	"action":   {"action"},
	"pattern":  {"pattern_name", "description"},
	"decision": {"decision", "rationale"},
	"emotion":  {"feeling"},
}

// Request describes one incoming write-style Agent API call.
type Request struct {
	ProjectName string
	AgentName   string
	UserID      string
	PayloadKind string // state|action|pattern|decision|emotion
	Payload     map[string]any
	TaskID      string
	Dependencies []string
	Initial     bool // true only for the very first state write of a project
}

// CheckResult carries the gate's verdict: Violations block the call,
// Warnings are surfaced but never block.
type CheckResult struct {
	Passed     bool
	Violations []string
	Warnings   []string
}

type lockEntry struct {
	agentName  string
	actionType string
	acquiredAt time.Time
}

// Gate owns the lock table and runs the five enforcement checks.
type Gate struct {
	store *store.Store

	mu    sync.Mutex
	locks map[string]*lockEntry

	logger *zap.Logger
	now    func() time.Time
}

// New builds a Gate backed by st for the dependency/state existence checks.
func New(st *store.Store, logger *zap.Logger) *Gate {
	return &Gate{
		store:  st,
		locks:  make(map[string]*lockEntry),
		logger: logger.With(zap.String("component", "enforcement")),
		now:    time.Now,
	}
}

// Check runs checks (a)-(e) in order and, if the lock step (e) succeeds,
// returns a release func the caller must invoke once the handler's
// response pipeline completes (success or failure, always released).
func (g *Gate) Check(ctx context.Context, req Request) (*CheckResult, func(), error) {
	result := &CheckResult{Passed: true}
	noop := func() {}

	// (a) project_name / agent_name required
	if req.ProjectName == "" || req.AgentName == "" {
		return nil, noop, types.NewError(types.ErrEnforcementViolation, "project_name and agent_name are required").
			WithViolations("missing project_name or agent_name").WithHTTPStatus(400)
	}

	// (b) a project-scoped semantic state memory must already exist for
	// any call other than the initial state write.
	if req.PayloadKind != "state" || !req.Initial {
		exists, err := g.projectStateExists(ctx, req.ProjectName, req.UserID)
		if err != nil {
			return nil, noop, err
		}
		if !exists {
			return nil, noop, types.NewError(types.ErrEnforcementViolation, "no project state found; initialize the project first").
				WithViolations("missing project state").WithHTTPStatus(409)
		}
	}

	// (c) task dependencies must be completed
	if req.TaskID != "" && len(req.Dependencies) > 0 {
		incomplete, err := g.incompleteDependencies(ctx, req.Dependencies)
		if err != nil {
			return nil, noop, err
		}
		if len(incomplete) > 0 {
			return nil, noop, types.NewError(types.ErrEnforcementViolation, "dependencies are not complete").
				WithViolations(fmt.Sprintf("incomplete dependencies: %s", strings.Join(incomplete, ", "))).
				WithHTTPStatus(409)
		}
	}

	// (d) payload schema presence
	if violations := missingPayloadFields(req.PayloadKind, req.Payload); len(violations) > 0 {
		return nil, noop, types.NewError(types.ErrValidationError, "payload is missing required fields").
			WithViolations(violations...).WithHTTPStatus(400)
	}

	// warnings never block
	result.Warnings = append(result.Warnings, warningsForPayload(req.Payload)...)

	// (e) task lock
	release := noop
	if req.TaskID != "" {
		r, err := g.acquireLock(req.ProjectName, req.TaskID, req.AgentName, req.PayloadKind)
		if err != nil {
			return nil, noop, err
		}
		release = r
	}

	return result, release, nil
}

func (g *Gate) projectStateExists(ctx context.Context, project, userID string) (bool, error) {
	rows, err := g.store.List(ctx, store.MemoryFilter{
		UserID:  userID,
		Sectors: []string{string(store.SectorSemantic)},
		Tag:     "state",
		Limit:   50,
	})
	if err != nil {
		return false, err
	}
	for _, m := range rows {
		if store.Tags(m.Tags).Has("project:" + project) {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gate) incompleteDependencies(ctx context.Context, deps []string) ([]string, error) {
	var incomplete []string
	for _, id := range deps {
		m, err := g.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if m == nil || !store.Tags(m.Tags).Has("completed") {
			incomplete = append(incomplete, id)
		}
	}
	return incomplete, nil
}

func missingPayloadFields(kind string, payload map[string]any) []string {
	var missing []string
	for _, field := range requiredPayloadFields[kind] {
		v, ok := payload[field]
		if !ok {
			missing = append(missing, field+" is required")
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			missing = append(missing, field+" must not be blank")
		}
	}
	return missing
}

func warningsForPayload(payload map[string]any) []string {
	var warnings []string
	for field, v := range payload {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		for _, hint := range confirmationHints {
			if strings.Contains(lower, hint) {
				warnings = append(warnings, fmt.Sprintf("%s hints at a user-confirmation prompt", field))
				break
			}
		}
	}
	return warnings
}

// acquireLock takes the (project:task_id) lock, reclaiming it if stale
// or owned by the same agent, and returns a release func.
func (g *Gate) acquireLock(project, taskID, agentName, actionType string) (func(), error) {
	key := project + ":" + taskID

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if existing, ok := g.locks[key]; ok {
		if existing.agentName != agentName && now.Sub(existing.acquiredAt) < staleLockAge {
			return nil, types.NewError(types.ErrResourceLocked, fmt.Sprintf("task %q is locked by %s", taskID, existing.agentName)).
				WithHTTPStatus(423).WithRetryable(true)
		}
		if existing.agentName != agentName {
			g.logger.Warn("reclaiming stale task lock",
				zap.String("key", key), zap.String("previous_agent", existing.agentName), zap.String("new_agent", agentName))
		}
	}

	g.locks[key] = &lockEntry{agentName: agentName, actionType: actionType, acquiredAt: now}

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if cur, ok := g.locks[key]; ok && cur.agentName == agentName {
			delete(g.locks, key)
		}
	}, nil
}

// LockStats summarizes the current lock table for the C11 introspection
// endpoints.
type LockStats struct {
	HeldLocks int      `json:"held_locks"`
	Keys      []string `json:"keys"`
}

// Stats returns a snapshot of the lock table, pruning stale entries first.
func (g *Gate) Stats() LockStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, entry := range g.locks {
		if now.Sub(entry.acquiredAt) >= staleLockAge {
			delete(g.locks, key)
		}
	}

	keys := make([]string, 0, len(g.locks))
	for key := range g.locks {
		keys = append(keys, key)
	}
	return LockStats{HeldLocks: len(g.locks), Keys: keys}
}
