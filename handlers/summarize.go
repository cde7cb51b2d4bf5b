package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/middleware"
	"github.com/nijaru/yt-tldr/models"
)

const (
	maxRequestBody  = 10 * 1024 * 1024
	defaultRunLimit = 20
	maxRunLimit     = 500
)

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req models.SummarizationRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondError(w, r, errors.InvalidInput("handleSummarize", nil, "URL is required"))
		return
	}

	result, err := s.dispatcher.Submit(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	middleware.GetLogger(r.Context()).WithField("video_name", result.VideoName).Info("Summarization succeeded")
	respondJSON(w, r, http.StatusOK, result)
}

// handleModels degrades to an empty list when the backend cannot be reached.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.models != nil {
		listed, err := s.models.ListModels(r.Context())
		if err != nil {
			middleware.GetLogger(r.Context()).WithError(err).Warn("Failed to list models")
		} else if listed != nil {
			names = listed
		}
	}
	respondJSON(w, r, http.StatusOK, models.ModelsResponse{Models: names})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, r, errors.InvalidInput("handleRuns", err, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs := []models.Run{}
	if s.runs != nil {
		listed, err := s.runs.RecentRuns(r.Context(), limit)
		if err != nil {
			respondError(w, r, errors.Internal("handleRuns", err, "Failed to load run history"))
			return
		}
		runs = listed
	}
	respondJSON(w, r, http.StatusOK, runs)
}
