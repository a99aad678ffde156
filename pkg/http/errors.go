package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body every authority endpoint returns.
// Clients show Detail to the user as-is.
type ErrorResponse struct {
	Error  string `json:"error"`  // Machine-readable error code
	Detail string `json:"detail"` // Human-readable message
}

// MessageResponse is the body of a successful call that returns no data
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Headers are already sent, an encoding error cannot be reported
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes a 200 {"message": ...} body
func WriteMessage(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, detail string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:  errorCode,
		Detail: detail,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "bad_request", detail)
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", detail)
}

func WriteForbidden(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusForbidden, "forbidden", detail)
}

func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "not_found", detail)
}

func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, "conflict", detail)
}

func WriteTooManyRequests(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", detail)
}

func WriteInternalError(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", detail)
}
