package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/viz"
)

// CreateVisualizationRequest is the intake payload. Options fields that are
// omitted pick up the service defaults.
type CreateVisualizationRequest struct {
	Question          string      `json:"question"`
	VisualizationType string      `json:"visualization_type"`
	Options           viz.Options `json:"options"`
}

type createVisualizationResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

type jobStatusResponse struct {
	JobID             string           `json:"job_id"`
	Status            domain.JobStatus `json:"status"`
	VisualizationType string           `json:"visualization_type"`
	Content           string           `json:"content,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// CreateVisualization accepts a generation request, validates it against
// the supported strategy set, and enqueues an asynchronous job. The caller
// polls GetVisualization for the outcome.
func (a *App) CreateVisualization(w http.ResponseWriter, r *http.Request) {
	var req CreateVisualizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		a.jsonError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.VisualizationType == "" {
		req.VisualizationType = viz.TypeFlowchart
	}

	job, err := a.Manager.Create(req.VisualizationType, req.Question, req.Options)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedType) {
			a.jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("create visualization job failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	a.json(w, http.StatusAccepted, createVisualizationResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// GetVisualization returns the current job snapshot, or 404 for ids that
// are unknown or whose record has expired.
func (a *App) GetVisualization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Manager.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			a.jsonError(w, http.StatusNotFound, "visualization job not found or expired")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("get visualization job failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to read job")
		return
	}

	a.json(w, http.StatusOK, jobStatusResponse{
		JobID:             job.ID,
		Status:            job.Status,
		VisualizationType: job.Type,
		Content:           job.Content,
		Metadata:          job.Metadata,
		Error:             job.Error,
	})
}

// SupportedTypes lists the registered visualization type names.
func (a *App) SupportedTypes(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"supported_types": a.Manager.SupportedTypes(),
	})
}
