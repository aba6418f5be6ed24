// Package api is the public HTTP surface of the gateway: the error
// envelope, the middleware chain and the prediction endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the envelope every error response uses: a machine code, a
// human message, and optional structured details.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message})
}

// WriteErrorDetails writes an error envelope with a details section.
func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message, Details: details})
}

// WriteUnauthorized writes a 401 envelope.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteTooManyRequests writes a 429 envelope with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSeconds int, message string, details any) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteErrorDetails(w, http.StatusTooManyRequests, "rate_limit_exceeded", message, details)
}
