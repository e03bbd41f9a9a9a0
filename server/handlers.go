package server

import (
	"net/http"
	"strconv"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/gate"
	"github.com/aecoa/aecoa/logger"
	"github.com/aecoa/aecoa/pipeline"
	"github.com/aecoa/aecoa/report"
	"github.com/aecoa/aecoa/version"
)

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := stateString(s.getState())
	code := http.StatusOK
	if s.getState() != ServerStateRunning {
		code = http.StatusServiceUnavailable
	}
	_ = writeJSON(w, code, HealthResponse{
		Status:  status,
		Version: version.Get().Short(),
		Clients: s.clientCount(),
	})
}

// HandleListRuns lists recent runs. ?limit bounds the result.
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeServiceError(w, r, errors.NewInvalidRequestError("invalid limit %q", raw))
			return
		}
		limit = n
	}

	states, err := s.pipeline.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	runs := make([]RunResponse, 0, len(states))
	for _, st := range states {
		runs = append(runs, newRunResponse(st))
	}
	_ = writeJSON(w, http.StatusOK, runs)
}

// HandleStartRun creates a run from a requirement table and measurements
func (s *Server) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := readJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	actor := actorFrom(r, req.Actor)
	if actor == "" {
		s.writeServiceError(w, r, errors.NewInvalidRequestError("actor is required"))
		return
	}

	st, err := s.pipeline.Start(r.Context(), req.toInput(), actor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, newRunResponse(st))
}

// HandleGetRun returns a run's current state
func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipeline.State(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, newRunResponse(st))
}

// HandleApprove approves a stage
func (s *Server) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	stage, actor, ok := s.decodeGateRequest(w, r, &req, func() (gate.Stage, string) { return req.Stage, req.Actor })
	if !ok {
		return
	}
	st, err := s.pipeline.Approve(r.Context(), r.PathValue("id"), stage, actor, req.Version)
	s.writeRun(w, r, st, err)
}

// HandleReject rejects a stage
func (s *Server) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	stage, actor, ok := s.decodeGateRequest(w, r, &req, func() (gate.Stage, string) { return req.Stage, req.Actor })
	if !ok {
		return
	}
	st, err := s.pipeline.Reject(r.Context(), r.PathValue("id"), stage, actor, req.Reason)
	s.writeRun(w, r, st, err)
}

// HandleRegenerate produces a new artifact for the current stage
func (s *Server) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	stage, actor, ok := s.decodeGateRequest(w, r, &req, func() (gate.Stage, string) { return req.Stage, req.Actor })
	if !ok {
		return
	}
	var in *pipeline.Input
	if req.Input != nil {
		converted := req.Input.toInput()
		in = &converted
	}
	st, err := s.pipeline.Regenerate(r.Context(), r.PathValue("id"), stage, actor, in)
	s.writeRun(w, r, st, err)
}

// HandleAdvance produces the next stage's artifact after an approval
func (s *Server) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipeline.Advance(r.Context(), r.PathValue("id"))
	s.writeRun(w, r, st, err)
}

// HandleSupersede starts a new run from a frozen run's input
func (s *Server) HandleSupersede(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := readJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	actor := actorFrom(r, req.Actor)
	if actor == "" {
		s.writeServiceError(w, r, errors.NewInvalidRequestError("actor is required"))
		return
	}
	st, err := s.pipeline.Supersede(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, newRunResponse(st))
}

// HandleResults returns the run's latest evaluation
func (s *Server) HandleResults(w http.ResponseWriter, r *http.Request) {
	eval, err := s.pipeline.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, eval)
}

// HandleReport returns the run's comparisons report; ?format=csv for CSV
func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.pipeline.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="comparisons.csv"`)
		if err := report.WriteCSV(w, *rep); err != nil {
			s.logger.Warnw("Failed to write report CSV", logger.FieldError, err)
		}
		return
	}
	_ = writeJSON(w, http.StatusOK, rep)
}

// HandleEvents returns the run's execution log
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.pipeline.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []gate.Event{}
	}
	_ = writeJSON(w, http.StatusOK, events)
}

// decodeGateRequest decodes body into req and validates its stage and actor
func (s *Server) decodeGateRequest(w http.ResponseWriter, r *http.Request, req interface{}, fields func() (gate.Stage, string)) (gate.Stage, string, bool) {
	if err := readJSON(r, req); err != nil {
		s.writeServiceError(w, r, err)
		return "", "", false
	}
	rawStage, bodyActor := fields()
	stage, err := gate.ParseStage(string(rawStage))
	if err != nil {
		s.writeServiceError(w, r, err)
		return "", "", false
	}
	actor := actorFrom(r, bodyActor)
	if actor == "" {
		s.writeServiceError(w, r, errors.NewInvalidRequestError("actor is required"))
		return "", "", false
	}
	return stage, actor, true
}

func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, st gate.State, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, newRunResponse(st))
}
