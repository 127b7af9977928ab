package httpapi

import (
	"net/http"

	"github.com/openmemory/openmemory/internal/enforcement"
)

// checkGate runs the C11 enforcement gate in front of a write-style call.
// On success it returns a release func the caller must defer; on failure
// it has already written the error response and returns ok=false.
func (h *Handlers) checkGate(w http.ResponseWriter, r *http.Request, req enforcement.Request) (release func(), ok bool) {
	result, release, err := h.gate.Check(r.Context(), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return nil, false
	}
	_ = result // warnings are informational only; not surfaced on the happy path response today
	return release, true
}
