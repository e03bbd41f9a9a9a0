package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aecoa/aecoa/errors"
)

// maxBodyBytes bounds request bodies; inputs carry whole measurement indexes
const maxBodyBytes = 8 << 20

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, ErrorResponse{Error: message})
}

// readJSON decodes a JSON request body. An empty body leaves v untouched.
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.WrapInvalidRequest(err, "request body")
	}
	return nil
}
