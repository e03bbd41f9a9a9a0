package server

import (
	"net/http"
	"strings"
)

// checkOrigin validates a websocket or CORS origin against server.allowed_origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Direct clients (CLI, tests) send no origin
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost")
	}

	// Prefix match so any port is accepted
	for _, allowed := range s.allowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// actorFrom returns the acting user from the body or the X-Actor header
func actorFrom(r *http.Request, bodyActor string) string {
	if bodyActor != "" {
		return bodyActor
	}
	return strings.TrimSpace(r.Header.Get("X-Actor"))
}

// shortID truncates an ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
