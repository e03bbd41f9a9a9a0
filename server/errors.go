package server

import (
	"net/http"

	"github.com/aecoa/aecoa/db"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/logger"
)

// ErrRateLimited is returned when a mutation exceeds server.mutations_per_second
var ErrRateLimited = errors.New("rate limited")

// statusFor maps the error taxonomy onto HTTP status codes. A closed database
// means the server is shutting down.
func statusFor(err error) int {
	switch {
	case db.IsDatabaseClosed(err):
		return http.StatusServiceUnavailable
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidTransition(err), errors.IsConflictError(err):
		return http.StatusConflict
	case errors.IsInvalidRequestError(err), errors.Is(err, errors.ErrInvalidRequirement):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// writeServiceError writes err with its mapped status; internal errors are logged
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.With(logger.FieldsFromContext(r.Context())...).Errorw("Request failed",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldError, err,
		)
	}

	resp := ErrorResponse{Error: err.Error()}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		resp.Hint = hints[0]
	}
	_ = writeJSON(w, status, resp)
}
