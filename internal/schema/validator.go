// Package schema validates callback payloads received from the telephony
// platform and the flow documents sent back to it.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"voice-survey-service/internal/service/instructions"
)

// ValidationError describes a payload or flow that does not match the
// expected schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RecordingPayload is the JSON body the platform posts after a record step.
type RecordingPayload struct {
	LegID string `json:"legId"`
	ID    string `json:"id"`
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// DecodeRecording parses a callback body. An empty body yields nil.
// Unknown fields are ignored; the platform sends more than we use.
func (v *Validator) DecodeRecording(body []byte) (*RecordingPayload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var p RecordingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}
	return &p, nil
}

// ValidateFlow checks a flow has at most two say steps followed by at most
// one record step whose callback is an absolute URL.
func (v *Validator) ValidateFlow(f instructions.Flow) error {
	if f.Title != instructions.FlowTitle {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("unexpected title %q", f.Title)}
	}

	says, records := 0, 0
	for i, step := range f.Steps {
		switch step.Action {
		case instructions.ActionSay:
			if records > 0 {
				return &ValidationError{Field: fmt.Sprintf("steps[%d]", i), Reason: "say after record"}
			}
			says++
		case instructions.ActionRecord:
			records++
			opts, ok := step.Options.(instructions.RecordOptions)
			if !ok {
				return &ValidationError{Field: fmt.Sprintf("steps[%d].options", i), Reason: "not record options"}
			}
			u, err := url.Parse(opts.OnFinish)
			if err != nil || !u.IsAbs() || u.Host == "" {
				return &ValidationError{Field: fmt.Sprintf("steps[%d].options.onFinish", i), Reason: "must be an absolute URL"}
			}
		default:
			return &ValidationError{Field: fmt.Sprintf("steps[%d].action", i), Reason: fmt.Sprintf("unknown action %q", step.Action)}
		}
	}

	if says > 2 || records > 1 || says == 0 {
		return &ValidationError{Field: "steps", Reason: fmt.Sprintf("%d say and %d record steps", says, records)}
	}

	log.Debug().Int("say", says).Int("record", records).Msg("flow validated")
	return nil
}
