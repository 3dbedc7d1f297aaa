package http

import (
	"encoding/json"
	"net/http"
)

// SuccessEnvelope is the uniform body for successful responses. Data keys use
// camelCase so the wire format stays decoupled from storage column names.
type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorEnvelope is the uniform body for failed responses. Error carries the
// HTTP status so clients get a machine-readable code inside the body too.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   int    `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteSuccess writes the success envelope with the given status code.
func WriteSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := SuccessEnvelope{
		Success: true,
		Message: message,
		Data:    data,
	}

	// Encoding errors are logged upstream, never exposed to the client
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteOK writes a 200 success envelope.
func WriteOK(w http.ResponseWriter, message string, data any) {
	WriteSuccess(w, http.StatusOK, message, data)
}

// WriteError writes the error envelope with the given status code.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteErrorWithDetails(w, statusCode, message, nil)
}

// WriteErrorWithDetails writes the error envelope with additional context.
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorEnvelope{
		Success: false,
		Error:   statusCode,
		Message: message,
		Details: details,
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message)
}

// WriteTooManyRequestsWithData includes machine-readable retry timing in the
// details field, the only error class that carries it.
func WriteTooManyRequestsWithData(w http.ResponseWriter, message string, details any) {
	WriteErrorWithDetails(w, http.StatusTooManyRequests, message, details)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
