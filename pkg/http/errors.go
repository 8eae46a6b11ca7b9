package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`            // Machine-readable error code
	Message string `json:"message"`          // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// RateLimitResponse is returned with 429 when the login governor refuses an attempt
type RateLimitResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Reason    string    `json:"reason"`
	ResetTime time.Time `json:"resetTime"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteRateLimited writes a 429 carrying the governor's reason and reset time
func WriteRateLimited(w http.ResponseWriter, message, reason string, resetTime time.Time) {
	WriteJSON(w, http.StatusTooManyRequests, RateLimitResponse{
		Error:     "rate_limit_exceeded",
		Message:   message,
		Reason:    reason,
		ResetTime: resetTime.UTC(),
	})
}
