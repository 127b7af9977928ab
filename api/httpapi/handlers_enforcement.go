package httpapi

import "net/http"

// HandleEnforcementStats surfaces the lock table scoped loosely to a
// project (the lock table itself is keyed on project:task_id, so this
// filters client-side), for `/enforcement/stats/:project`.
func (h *Handlers) HandleEnforcementStats(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	stats := h.gate.Stats()
	var mine []string
	for _, k := range stats.Keys {
		if len(k) > len(project) && k[:len(project)+1] == project+":" {
			mine = append(mine, k)
		}
	}
	WriteSuccess(w, r, map[string]any{"project": project, "held_locks": len(mine), "keys": mine})
}

// HandleEnforcementLocks surfaces the full lock table, for
// `/enforcement/locks`.
func (h *Handlers) HandleEnforcementLocks(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.gate.Stats())
}

// HandleEnforcementHealth is a trivial liveness signal for the gate
// itself, for `/enforcement/health`.
func (h *Handlers) HandleEnforcementHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]any{"status": "healthy"})
}
