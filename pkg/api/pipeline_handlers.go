package api

import (
	"net/http"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/pipeline"
)

// movePersonToStage handles POST /people/{id}/stage
func (s *Server) movePersonToStage(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req MoveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	transition, err := s.svc.Pipeline.MovePersonToStage(r.Context(), id, req.ToStage, req.Reason)
	httputil.WriteResult(w, r, http.StatusOK, transition, err)
}

// getPersonHistory handles GET /people/{id}/history?limit=
func (s *Server) getPersonHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}

	history, err := s.svc.Pipeline.GetPersonPipelineHistory(r.Context(), id, limit)
	httputil.WriteResult(w, r, http.StatusOK, list(history), err)
}

// getStageOrder handles GET /pipeline/stages?include_inactive=
func (s *Server) getStageOrder(w http.ResponseWriter, r *http.Request) {
	includeInactive, ok := httputil.ParseQueryBoolOrError(w, r, "include_inactive", false)
	if !ok {
		return
	}

	stages, err := s.svc.Pipeline.GetPipelineStageOrder(r.Context(), includeInactive)
	httputil.WriteResult(w, r, http.StatusOK, list(stages), err)
}

// getStageByName handles GET /pipeline/stages/by-name/{name}
func (s *Server) getStageByName(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	stage, err := s.svc.Pipeline.GetPipelineStageByName(r.Context(), name)
	httputil.WriteResult(w, r, http.StatusOK, stage, err)
}

// addStage handles POST /pipeline/stages
func (s *Server) addStage(w http.ResponseWriter, r *http.Request) {
	var req pipeline.NewStage
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	stage, err := s.svc.Pipeline.AddPipelineStage(r.Context(), req)
	httputil.WriteResult(w, r, http.StatusCreated, stage, err)
}

// reorderStages handles PUT /pipeline/stages/order
func (s *Server) reorderStages(w http.ResponseWriter, r *http.Request) {
	var req []pipeline.StageOrder
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	stages, err := s.svc.Pipeline.ReorderPipelineStages(r.Context(), req)
	httputil.WriteResult(w, r, http.StatusOK, list(stages), err)
}

// deactivateStage handles POST /pipeline/stages/{id}/deactivate
func (s *Server) deactivateStage(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	stage, err := s.svc.Pipeline.DeactivatePipelineStage(r.Context(), id)
	httputil.WriteResult(w, r, http.StatusOK, stage, err)
}

// initializeStages handles POST /pipeline/stages/initialize
func (s *Server) initializeStages(w http.ResponseWriter, r *http.Request) {
	stages, err := s.svc.Pipeline.InitializeDefaultStages(r.Context())
	httputil.WriteResult(w, r, http.StatusCreated, list(stages), err)
}

// getStatistics handles GET /pipeline/statistics
func (s *Server) getStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Pipeline.GetPipelineStatistics(r.Context())
	httputil.WriteResult(w, r, http.StatusOK, stats, err)
}

// requireField rejects an empty required body field
func requireField(w http.ResponseWriter, r *http.Request, name, value string) bool {
	if value == "" {
		httputil.WriteAppError(w, r, apperr.Validation("%s is required", name))
		return false
	}
	return true
}
