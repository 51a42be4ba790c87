package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/store"
)

// storeFilter parses list query parameters. Limit defaults to 20 and is
// capped at 100.
func storeFilter(userID, topic, limitStr, offsetStr string) store.BriefFilter {
	filter := store.BriefFilter{UserID: userID, Topic: topic, Limit: 20}
	if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 100 {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(offsetStr); err == nil && n > 0 {
		filter.Offset = n
	}
	return filter
}

// errorEnvelope is the uniform error body for every non-2xx response.
type errorEnvelope struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg, requestID string, details map[string]any) {
	writeJSON(w, status, errorEnvelope{
		Error:     msg,
		Code:      code,
		RequestID: requestID,
		Details:   details,
	})
}

// briefRequest is the POST /brief payload. RequestID is optional; the server
// generates one when absent.
type briefRequest struct {
	model.ResearchRequest
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleCreateBrief(w http.ResponseWriter, r *http.Request) {
	var req briefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON", "", nil)
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		var ve *model.ValidationError
		details := map[string]any{}
		if errors.As(err, &ve) {
			details["field"] = ve.Field
			details["message"] = ve.Message
		}
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "", details)
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	brief, err := s.runner.Run(r.Context(), requestID, req.ResearchRequest)
	if err != nil {
		s.writeRunError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, brief)
}

// writeRunError maps pipeline failures onto response codes: duplicate ids
// conflict, quality failures are unprocessable, everything else is a bad
// gateway since the pipeline failed against an upstream provider.
func (s *Server) writeRunError(w http.ResponseWriter, requestID string, err error) {
	if errors.Is(err, model.ErrDuplicateRequest) {
		writeError(w, http.StatusConflict, "duplicate_request", "request_id is already in use", requestID, nil)
		return
	}

	if model.IsQuality(err) {
		var qe *model.QualityError
		details := map[string]any{}
		if errors.As(err, &qe) {
			details["confidence"] = qe.Confidence
			details["threshold"] = qe.Threshold
		}
		writeError(w, http.StatusUnprocessableEntity, "quality_below_threshold", err.Error(), requestID, details)
		return
	}

	var pe *model.PipelineError
	if errors.As(err, &pe) {
		writeError(w, http.StatusBadGateway, "pipeline_failure", err.Error(), requestID, map[string]any{
			"stage":    pe.Stage,
			"attempts": pe.Attempts,
		})
		return
	}

	writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), requestID, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	summary := s.monitor.Snapshot()

	resp := map[string]any{
		"status": "operational",
		"features": map[string]bool{
			"langsmith_tracing":  s.tracer.Enabled(),
			"token_tracking":     true,
			"latency_monitoring": true,
			"node_level_metrics": true,
		},
		"monitoring": map[string]any{
			"active_executions":   summary.ActiveExecutions,
			"retained_executions": summary.RetainedExecutions,
			"langsmith_project":   s.cfg.Tracing.Project,
			"trace_endpoint":      s.cfg.Tracing.Endpoint,
		},
	}
	if s.runner != nil {
		resp["providers"] = s.runner.BreakerStates()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	metrics, err := s.monitor.GetMetrics(requestID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no execution for request_id", requestID, nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), requestID, nil)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleListBriefs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "no store configured", "", nil)
		return
	}

	q := r.URL.Query()
	filter := storeFilter(q.Get("user_id"), q.Get("topic"), q.Get("limit"), q.Get("offset"))

	briefs, err := s.store.ListBriefs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), "", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"briefs": briefs,
		"count":  len(briefs),
	})
}

func (s *Server) handleGetBrief(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "no store configured", requestID, nil)
		return
	}

	stored, err := s.store.GetBrief(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no brief for request_id", requestID, nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), requestID, nil)
		return
	}

	writeJSON(w, http.StatusOK, stored)
}
