package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/docsched/pkg/model"
)

// handleCreateJob persists a new job in PENDING state. The scheduler's next
// database sync pulls it into the in-memory queue; the handler itself never
// touches scheduler state.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	if req.Type == "" {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "type is required",
		})
		return
	}

	now := time.Now().UTC()
	j := &model.Job{
		ID:        "job_" + uuid.New().String(),
		Type:      req.Type,
		State:     model.JobStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(r.Context(), j); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	s.logger.Info("job submitted", "id", j.ID, "type", j.Type)
	respondCreated(w, reqID, j)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	j, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if j == nil {
		respondError(w, reqID, http.StatusNotFound, &model.APIError{
			Code:    model.ErrNotFound,
			Message: "job " + id + " not found",
		})
		return
	}
	respondOK(w, reqID, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var (
		jobs []*model.Job
		err  error
	)
	if state := r.URL.Query().Get("state"); state != "" {
		jobs, err = s.store.ListJobsByState(r.Context(), model.JobState(state))
	} else {
		jobs, err = s.store.ListJobs(r.Context())
	}
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	respondOK(w, reqID, jobs)
}
