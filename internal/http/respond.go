package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"voice-survey-service/internal/schema"
	"voice-survey-service/internal/service/flow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes. Client mistakes get a
// 4xx; everything else is a 5xx so the platform retries the callback.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	var verr *schema.ValidationError
	if errors.Is(err, flow.ErrMalformedPayload) || errors.As(err, &verr) {
		status = http.StatusBadRequest
	}

	if status >= 500 {
		logger.Error().Err(err).Msg("Callback failed")
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	logger.Warn().Err(err).Msg("Callback rejected")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
