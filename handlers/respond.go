package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/middleware"
	"github.com/sirupsen/logrus"
)

// Seconds a client is asked to wait before retrying after an overload rejection.
const retryAfterSeconds = 5

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		middleware.GetLogger(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

// respondError writes the error message as plain text so the UI can show it verbatim.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal("handlers", err, "Internal server error")
	}

	entry := middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"kind":   appErr.Kind,
		"status": appErr.Code,
		"op":     appErr.Op,
	}).WithError(err)

	switch {
	case errors.Is(err, errors.KindCanceled):
		entry.Info("Client went away before completion")
	case appErr.Code >= 500:
		entry.Error("Request error")
	default:
		entry.Warn("Request error")
	}

	if errors.Is(err, errors.KindQueueFull) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	http.Error(w, appErr.Message, appErr.Code)
}

func readJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.InvalidInput("readJSON", err, "Request body too large")
		}
		return errors.InvalidInput("readJSON", err, "Invalid JSON format")
	}
	return nil
}
