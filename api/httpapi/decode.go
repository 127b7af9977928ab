package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openmemory/openmemory/types"
)

const maxBodyBytes = 1 << 20 // 1 MB, fixed; ServerConfig.MaxPayloadBytes is not read

// DecodeJSONBody strictly decodes r.Body into dst: body size capped at
// maxBodyBytes and unknown fields rejected, mirroring the Agent API's
// payload-schema checks one layer up the stack.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return types.NewError(types.ErrBadRequest, fmt.Sprintf("invalid request body: %v", err)).WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

// ResponseWriter wraps http.ResponseWriter to capture the status code
// exactly once, for logging and metrics middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter wraps w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader records status on first call only.
func (rw *ResponseWriter) WriteHeader(status int) {
	if rw.Written {
		return
	}
	rw.StatusCode = status
	rw.Written = true
	rw.ResponseWriter.WriteHeader(status)
}

// Write ensures WriteHeader(200) has been recorded before any body bytes.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher so streaming handlers keep working
// through the wrapper.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
