package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/logger"
)

func (s *Server) setupHTTPRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.corsMiddleware(s.HandleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.HandleWebSocket)

	mux.HandleFunc("GET /api/runs", s.corsMiddleware(s.HandleListRuns))
	mux.HandleFunc("POST /api/runs", s.corsMiddleware(s.limitMutations(s.HandleStartRun)))
	mux.HandleFunc("GET /api/runs/{id}", s.corsMiddleware(s.HandleGetRun))
	mux.HandleFunc("GET /api/runs/{id}/results", s.corsMiddleware(s.HandleResults))
	mux.HandleFunc("GET /api/runs/{id}/report", s.corsMiddleware(s.HandleReport))
	mux.HandleFunc("GET /api/runs/{id}/events", s.corsMiddleware(s.HandleEvents))
	mux.HandleFunc("POST /api/runs/{id}/approve", s.corsMiddleware(s.limitMutations(s.HandleApprove)))
	mux.HandleFunc("POST /api/runs/{id}/reject", s.corsMiddleware(s.limitMutations(s.HandleReject)))
	mux.HandleFunc("POST /api/runs/{id}/regenerate", s.corsMiddleware(s.limitMutations(s.HandleRegenerate)))
	mux.HandleFunc("POST /api/runs/{id}/advance", s.corsMiddleware(s.limitMutations(s.HandleAdvance)))
	mux.HandleFunc("POST /api/runs/{id}/supersede", s.corsMiddleware(s.limitMutations(s.HandleSupersede)))
	mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))
	mux.HandleFunc("/api/", s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such endpoint: "+r.Method+" "+r.URL.Path)
	}))

	s.mux = mux
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Actor")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		requestID := uuid.NewString()
		start := time.Now()
		ctx := logger.WithComponent(logger.WithRequestID(r.Context(), requestID), "http")
		next(w, r.WithContext(ctx))
		s.logger.Debugw("Request served",
			logger.FieldRequestID, shortID(requestID),
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}
}

// limitMutations rejects state-changing requests beyond the configured rate
func (s *Server) limitMutations(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeServiceError(w, r, errors.WithHint(ErrRateLimited, "slow down approvals or raise server.mutations_per_second"))
			return
		}
		next(w, r)
	}
}
