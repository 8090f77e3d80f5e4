package http

import (
	"io"
	"mime"
	"net/http"
	"net/url"

	"voice-survey-service/internal/observability/logging"
	"voice-survey-service/internal/schema"
	"voice-survey-service/internal/service/flow"
	"voice-survey-service/internal/service/instructions"
)

const maxCallbackBody = 64 << 10

// callStep advances the caller's survey and replies with the next call
// flow. Parameters come from the query string, or from a form-encoded body.
// A JSON body carries the recording made for the previous question.
func (h *handlers) callStep(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	logger := logging.WithCall(params.Get("callID"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, logger, &schema.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	var payload *schema.RecordingPayload
	if isForm(r) {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			writeError(w, logger, &schema.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		for k, vs := range form {
			if params.Get(k) == "" {
				params[k] = vs
			}
		}
		if params.Has("legId") || params.Has("id") {
			payload = &schema.RecordingPayload{LegID: params.Get("legId"), ID: params.Get("id")}
		}
	} else {
		payload, err = h.app.Validator.DecodeRecording(body)
		if err != nil {
			writeError(w, logger, err)
			return
		}
	}

	cb := flow.Callback{
		CallID:      params.Get("callID"),
		Destination: params.Get("destination"),
	}
	if payload != nil {
		cb.Recording = &flow.RecordingRef{LegID: payload.LegID, RecordingID: payload.ID}
	}
	logger = logging.WithCall(cb.CallID)

	decision, err := h.app.Engine.Advance(r.Context(), cb)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	doc := instructions.Render(decision.Prompt(), h.onFinishURL(r))
	if err := h.app.Validator.ValidateFlow(doc); err != nil {
		// The state change is already persisted; a bad document means
		// misconfiguration (e.g. a relative PUBLIC_BASE_URL).
		logger.Error().Err(err).Msg("Rendered flow failed validation")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	logger.Debug().
		Int("index", decision.Index).
		Str("state", decision.State.String()).
		Bool("appended", decision.Appended).
		Msg("Call flow step rendered")

	writeJSON(w, http.StatusOK, doc)
}

// onFinishURL is where the platform posts the recording it makes next.
func (h *handlers) onFinishURL(r *http.Request) string {
	if base := h.app.Cfg.Service.PublicBaseURL; base != "" {
		return base + "/callStep"
	}
	return "http://" + r.Host + "/callStep"
}

func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded"
}
