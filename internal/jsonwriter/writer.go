package jsonwriter

import (
	"encoding/json"
	"net/http"

	"github.com/ledgerlink/oauth-broker/internal/log"
)

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
}

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteErrorKind writes the broker's error contract: a generic status plus a
// machine-readable kind. No upstream bodies or internal detail ever ride along.
func WriteErrorKind(w http.ResponseWriter, statusCode int, kind string) {
	response := ErrorResponse{
		Status: "error",
		Kind:   kind,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		// Fallback to plain text error if JSON encoding fails
		http.Error(w, kind, statusCode)
	}
}
