package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voice-survey-service/internal/app"
	"voice-survey-service/internal/config"
	"voice-survey-service/internal/service/instructions"
)

func newTestApp(t *testing.T, recordingBase string, strict bool) *app.Application {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, []byte(`["Q0","Q1","Q2"]`), 0o600); err != nil {
		t.Fatalf("write questions: %v", err)
	}
	if recordingBase == "" {
		recordingBase = "http://127.0.0.1:1"
	}
	a := app.New(&config.Config{
		Service:       config.ServiceConfig{Env: "test"},
		Survey:        config.SurveyConfig{QuestionsFile: path, StrictPayload: strict},
		Store:         config.StoreConfig{Driver: "memory"},
		Recording:     config.RecordingConfig{APIBase: recordingBase, APIKey: "test-key"},
		Observability: config.ObservabilityConfig{LogLevel: "error"},
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

type flowDoc struct {
	Title string `json:"title"`
	Steps []struct {
		Action  string         `json:"action"`
		Options map[string]any `json:"options"`
	} `json:"steps"`
}

func (f flowDoc) count(action string) int {
	n := 0
	for _, s := range f.Steps {
		if s.Action == action {
			n++
		}
	}
	return n
}

func callStep(t *testing.T, h http.Handler, method, query, body string) (*httptest.ResponseRecorder, flowDoc) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/callStep?"+query, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var doc flowDoc
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
			t.Fatalf("decode flow: %v (body %s)", err, rec.Body.String())
		}
	}
	return rec, doc
}

func TestCallStep_ConcreteScenario(t *testing.T) {
	a := newTestApp(t, "", true)
	h := NewRouter(a)

	steps := []struct {
		method     string
		body       string
		wantSay    int
		wantRecord int
		wantStored int
	}{
		{http.MethodGet, "", 2, 1, 0},
		{http.MethodPost, `{"legId":"L1","id":"R1"}`, 1, 1, 1},
		{http.MethodPost, `{"legId":"L2","id":"R2"}`, 1, 1, 2},
		{http.MethodPost, `{"legId":"L3","id":"R3"}`, 1, 0, 3},
	}

	for i, step := range steps {
		rec, doc := callStep(t, h, step.method, "callID=abc&destination=%2B1555", step.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("callback %d: expected 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("callback %d: expected application/json, got %s", i+1, ct)
		}
		if doc.Title != instructions.FlowTitle {
			t.Errorf("callback %d: expected title %q, got %q", i+1, instructions.FlowTitle, doc.Title)
		}
		if got := doc.count(instructions.ActionSay); got != step.wantSay {
			t.Errorf("callback %d: expected %d say steps, got %d", i+1, step.wantSay, got)
		}
		if got := doc.count(instructions.ActionRecord); got != step.wantRecord {
			t.Errorf("callback %d: expected %d record steps, got %d", i+1, step.wantRecord, got)
		}

		p, err := a.Store.FindByCallID(context.Background(), "abc")
		if err != nil {
			t.Fatalf("callback %d: find: %v", i+1, err)
		}
		if got := p.Answered(); got != step.wantStored {
			t.Errorf("callback %d: expected %d stored answers, got %d", i+1, step.wantStored, got)
		}
	}

	p, _ := a.Store.FindByCallID(context.Background(), "abc")
	if p.Number != "+1555" {
		t.Errorf("expected number +1555, got %s", p.Number)
	}
	if p.Responses[2].LegID != "L3" || p.Responses[2].RecordingID != "R3" {
		t.Errorf("unexpected last answer: %+v", p.Responses[2])
	}
}

func TestCallStep_OnFinishURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"derived from host", "", "http://survey.local/callStep"},
		{"public base url", "https://survey.example.com", "https://survey.example.com/callStep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, "", true)
			a.Cfg.Service.PublicBaseURL = tt.base
			h := NewRouter(a)

			req := httptest.NewRequest(http.MethodGet, "/callStep?callID=c1&destination=1", nil)
			req.Host = "survey.local"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			var doc flowDoc
			if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			last := doc.Steps[len(doc.Steps)-1]
			if last.Action != instructions.ActionRecord {
				t.Fatalf("expected record as last step, got %s", last.Action)
			}
			if got := last.Options["onFinish"]; got != tt.want {
				t.Errorf("expected onFinish %s, got %v", tt.want, got)
			}
		})
	}
}

func TestCallStep_ReplayedPayloadIsNotDuplicated(t *testing.T) {
	a := newTestApp(t, "", true)
	h := NewRouter(a)

	callStep(t, h, http.MethodGet, "callID=abc&destination=1", "")
	callStep(t, h, http.MethodPost, "callID=abc", `{"legId":"L1","id":"R1"}`)
	rec, doc := callStep(t, h, http.MethodPost, "callID=abc", `{"legId":"L1","id":"R1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	p, _ := a.Store.FindByCallID(context.Background(), "abc")
	if p.Answered() != 1 {
		t.Errorf("expected 1 stored answer after replay, got %d", p.Answered())
	}
	if doc.count(instructions.ActionRecord) != 1 {
		t.Error("expected replay to repeat the next question")
	}
}

func TestCallStep_FormEncodedBody(t *testing.T) {
	a := newTestApp(t, "", true)
	h := NewRouter(a)

	callStep(t, h, http.MethodGet, "callID=abc&destination=1", "")

	req := httptest.NewRequest(http.MethodPost, "/callStep", strings.NewReader("callID=abc&legId=L1&id=R1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	p, _ := a.Store.FindByCallID(context.Background(), "abc")
	if p.Answered() != 1 || p.Responses[0].RecordingID != "R1" {
		t.Errorf("expected form answer to be stored, got %+v", p.Responses)
	}
}

func TestCallStep_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		query string
		body  string
	}{
		{"missing callID", "destination=1", ""},
		{"invalid json", "callID=abc", `{"legId":`},
		{"missing recording", "callID=abc", ""},
		{"blank leg", "callID=abc", `{"legId":"","id":"R1"}`},
		{"blank recording id", "callID=abc", `{"legId":"L1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, "", true)
			h := NewRouter(a)
			// Put the participant past its first answer so a missing body is
			// no longer a replayed first contact.
			callStep(t, h, http.MethodGet, "callID=abc&destination=1", "")
			callStep(t, h, http.MethodPost, "callID=abc", `{"legId":"L0","id":"R0"}`)

			rec, _ := callStep(t, h, http.MethodPost, tt.query, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("expected JSON error body, got %s", rec.Body.String())
			}

			p, _ := a.Store.FindByCallID(context.Background(), "abc")
			if p.Answered() != 1 {
				t.Errorf("expected rejected callback to leave 1 answer, got %d", p.Answered())
			}
		})
	}
}

func TestCallStep_PermissiveRecordsBlankReference(t *testing.T) {
	a := newTestApp(t, "", false)
	h := NewRouter(a)

	callStep(t, h, http.MethodGet, "callID=abc&destination=1", "")
	callStep(t, h, http.MethodPost, "callID=abc", `{"legId":"L1","id":"R1"}`)
	rec, _ := callStep(t, h, http.MethodPost, "callID=abc", `{}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 in permissive mode, got %d", rec.Code)
	}
	p, _ := a.Store.FindByCallID(context.Background(), "abc")
	if p.Answered() != 2 {
		t.Errorf("expected blank reference to be stored, got %d answers", p.Answered())
	}
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t, "", true)
	h := NewRouter(a)

	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	a.Shutdown(context.Background())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/readiness", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after shutdown, got %d", rec.Code)
	}
}

func TestAdmin_ListsParticipantsWithPlayLinks(t *testing.T) {
	a := newTestApp(t, "", true)
	h := NewRouter(a)

	callStep(t, h, http.MethodGet, "callID=abc&destination=%2B1555", "")
	callStep(t, h, http.MethodPost, "callID=abc", `{"legId":"L1","id":"R1"}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html, got %s", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"Q0", "Q2", "1555", "/play/abc/L1/R1"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected admin page to contain %q", want)
		}
	}
}

func TestAdmin_Empty(t *testing.T) {
	a := newTestApp(t, "", true)
	rec := httptest.NewRecorder()
	NewRouter(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if !bytes.Contains(rec.Body.Bytes(), []byte("No participants yet.")) {
		t.Errorf("expected empty-state message, got %s", rec.Body.String())
	}
}

func TestCallStep_WholeSurveyOnOneLeg(t *testing.T) {
	a := newTestApp(t, "", true)
	h := NewRouter(a)

	callStep(t, h, http.MethodGet, "callID=abc&destination=1", "")
	var doc flowDoc
	for _, rec := range []string{"R1", "R2", "R3"} {
		var resp *httptest.ResponseRecorder
		resp, doc = callStep(t, h, http.MethodPost, "callID=abc", `{"legId":"LEG","id":"`+rec+`"}`)
		if resp.Code != http.StatusOK {
			t.Fatalf("recording %s: expected 200, got %d", rec, resp.Code)
		}
	}

	if doc.count(instructions.ActionRecord) != 0 || doc.count(instructions.ActionSay) != 1 {
		t.Errorf("expected closing message after the last answer, got %+v", doc)
	}
	p, _ := a.Store.FindByCallID(context.Background(), "abc")
	if p.Answered() != 3 {
		t.Errorf("expected 3 answers on one leg, got %d", p.Answered())
	}
}

func TestCallStep_FirstContactWithoutDestination(t *testing.T) {
	a := newTestApp(t, "", true)
	h := NewRouter(a)

	rec, _ := callStep(t, h, http.MethodGet, "callID=nodest", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := a.Store.FindByCallID(context.Background(), "nodest"); err == nil {
		t.Error("expected no participant to be created")
	}
}
