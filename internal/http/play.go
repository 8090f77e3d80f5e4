package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"voice-survey-service/internal/observability/logging"
	"voice-survey-service/internal/service/recording"
)

// play streams a recorded answer from the platform to the browser. Bytes
// are copied as they arrive; nothing is buffered in memory.
func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	legID := chi.URLParam(r, "legId")
	recordingID := chi.URLParam(r, "recordingId")
	logger := logging.WithRecording(callID, legID, recordingID)

	h.app.Metrics.RecordRecordingStart()

	rec, err := h.app.Recordings.Open(r.Context(), callID, legID, recordingID)
	if err != nil {
		h.app.Metrics.RecordRecordingEnd(0, "upstream")
		var upErr *recording.UpstreamError
		if errors.As(err, &upErr) && upErr.StatusCode != 0 {
			logger.Warn().Int("upstreamStatus", upErr.StatusCode).Msg("Recording fetch rejected")
		} else {
			logger.Error().Err(err).Msg("Recording fetch failed")
		}
		http.Error(w, "recording unavailable", http.StatusBadGateway)
		return
	}
	defer rec.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	if rec.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(rec.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rec.Body)
	if err != nil {
		h.app.Metrics.RecordRecordingEnd(n, "stream")
		logger.Error().Err(err).Int64("bytes", n).Msg("Recording stream interrupted")
		// Headers are gone; aborting is the only way to tell the client
		// the body is incomplete.
		panic(http.ErrAbortHandler)
	}

	h.app.Metrics.RecordRecordingEnd(n, "")
	logger.Debug().Int64("bytes", n).Msg("Recording streamed")
}
