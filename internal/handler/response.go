// Package handler provides the HTTP handlers and route table of the Vehix API.
package handler

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
)

// ErrorResponse is the body of every non-auth error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges a state change.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

var errEmptyBody = errors.New("request body is empty")

// readJSON decodes the request body into v. Unknown fields are rejected.
func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
