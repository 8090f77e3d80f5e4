package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type recordingPayload struct {
	LegID string `json:"legId"`
	ID    string `json:"id"`
}

type flow struct {
	Title string `json:"title"`
	Steps []struct {
		Action  string `json:"action"`
		Options struct {
			Payload  string `json:"payload"`
			OnFinish string `json:"onFinish"`
		} `json:"options"`
	} `json:"steps"`
}

func (f *flow) records() bool {
	for _, s := range f.Steps {
		if s.Action == "record" {
			return true
		}
	}
	return false
}

type runResult struct {
	CallID    string
	LegID     string
	Callbacks int
	Answers   int
}

// maxCallbacks guards against a server that never finishes the survey.
const maxCallbacks = 100

type simulator struct {
	base   string
	client *http.Client
}

func newSimulator(base string, timeout time.Duration) *simulator {
	return &simulator{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Run places a call and answers every question until the service replies
// without a record step. Like a real call, every recording is made on the
// same leg.
func (s *simulator) Run(ctx context.Context, callID, destination string, replay bool) (*runResult, error) {
	if callID == "" {
		callID = uuid.NewString()
	}
	res := &runResult{CallID: callID, LegID: uuid.NewString()}

	f, err := s.Step(ctx, callID, destination, nil)
	if err != nil {
		return nil, err
	}
	res.Callbacks++

	for f.records() {
		if res.Callbacks >= maxCallbacks {
			return nil, fmt.Errorf("call %s: survey did not finish after %d callbacks", callID, res.Callbacks)
		}
		rec := &recordingPayload{LegID: res.LegID, ID: uuid.NewString()}

		if replay {
			if _, err := s.Step(ctx, callID, "", rec); err != nil {
				return nil, err
			}
			res.Callbacks++
		}

		f, err = s.Step(ctx, callID, "", rec)
		if err != nil {
			return nil, err
		}
		res.Callbacks++
		res.Answers++
	}
	return res, nil
}

// Step sends one callback the way the platform does: POST with the
// recording as a JSON body, or GET on first contact.
func (s *simulator) Step(ctx context.Context, callID, destination string, rec *recordingPayload) (*flow, error) {
	q := url.Values{"callID": {callID}}
	if destination != "" {
		q.Set("destination", destination)
	}
	endpoint := s.base + "/callStep?" + q.Encode()

	method := http.MethodGet
	var body io.Reader
	if rec != nil {
		method = http.MethodPost
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("callback %s: %w", callID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("callback %s: status %d: %s", callID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var f flow
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("callback %s: decode flow: %w", callID, err)
	}
	return &f, nil
}
