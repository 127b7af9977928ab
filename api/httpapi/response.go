// Package httpapi implements the HTTP surface (§6): request decoding,
// canonical response envelopes, and the full `/ai-agents/` route table
// wired over the Agent API, the analyzer battery, and the enforcement
// gate.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/types"
)

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// Response is the canonical envelope every endpoint returns.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the failure half of Response, matching §6's
// `{err, message, violations?, warnings?}` shape.
type ErrorInfo struct {
	Err        string   `json:"err"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
}

// WriteJSON writes v as a JSON body with status, setting the headers the
// teacher's handlers always set.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in a success Response and writes it with 200.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: nowRFC3339(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteCreated is WriteSuccess at 201, used by the write-style endpoints.
func WriteCreated(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      data,
		Timestamp: nowRFC3339(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteError maps err onto an HTTP status and writes a failure Response.
// Non-*types.Error values are treated as internal errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	te, ok := err.(*types.Error)
	if !ok {
		te = types.NewError(types.ErrInternal, err.Error())
	}

	status := te.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(te.Code)
	}

	logger.Warn("request failed",
		zap.String("code", string(te.Code)),
		zap.Int("status", status),
		zap.Error(te),
	)

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Err:        string(te.Code),
			Message:    te.Message,
			Violations: te.Violations,
			Warnings:   te.Warnings,
			Retryable:  te.Retryable,
		},
		Timestamp: nowRFC3339(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteErrorMessage is a convenience wrapper for handler-local validation
// failures that never reach the Agent API.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, code types.ErrorCode, status int, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// mapErrorCodeToHTTPStatus maps OpenMemory's stable error taxonomy (§7)
// onto HTTP status codes for errors that didn't set HTTPStatus explicitly.
func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrBadRequest, types.ErrValidationError:
		return http.StatusBadRequest
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrEmbedderUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrStoreWriteFailed:
		return http.StatusInternalServerError
	case types.ErrResourceLocked:
		return http.StatusLocked
	case types.ErrEnforcementViolation:
		return http.StatusConflict
	case types.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
