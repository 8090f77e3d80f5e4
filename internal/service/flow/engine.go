package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-survey-service/internal/models"
	"voice-survey-service/internal/observability/logging"
	"voice-survey-service/internal/observability/metrics"
	"voice-survey-service/internal/service/instructions"
	"voice-survey-service/internal/service/questions"
	"voice-survey-service/internal/store"
)

// ErrMalformedPayload is returned when a callback lacks fields the current
// state requires.
var ErrMalformedPayload = errors.New("malformed callback payload")

// RecordingRef identifies the recording the platform made for the previous
// question.
type RecordingRef struct {
	LegID       string
	RecordingID string
}

// Callback is one inbound request from the telephony platform.
type Callback struct {
	CallID      string
	Destination string
	Recording   *RecordingRef // nil when the request carried no body
}

// Decision is the outcome of advancing the flow for one callback.
type Decision struct {
	CallID      string
	Index       int // question to ask next; equals Total once complete
	Total       int
	Question    string
	Previous    State
	State       State
	Created     bool
	Appended    bool
	Participant *models.Participant
}

// Prompt converts the decision into what the caller hears next.
func (d Decision) Prompt() instructions.Prompt {
	return instructions.Prompt{
		Complete: d.State == StateComplete,
		Welcome:  d.State != StateComplete && d.Index == 0,
		Total:    d.Total,
		Question: d.Question,
	}
}

// Publisher receives survey progress events.
type Publisher interface {
	PublishAnswer(ctx context.Context, ev models.AnswerRecorded) error
	PublishCompletion(ctx context.Context, ev models.SurveyCompleted) error
}

// Options configures an Engine.
type Options struct {
	// StrictPayload rejects callbacks whose recording reference is missing
	// or blank. When false, blank references are recorded as-is.
	StrictPayload bool
	Metrics       *metrics.Metrics
}

// Engine advances callers through the question bank. It holds no per-call
// state; all progress lives in the store.
type Engine struct {
	store     store.Store
	bank      *questions.Bank
	publisher Publisher
	metrics   *metrics.Metrics
	strict    bool
	now       func() time.Time
	newID     func() string
}

// NewEngine creates an engine. publisher may be nil.
func NewEngine(st store.Store, bank *questions.Bank, publisher Publisher, opts Options) *Engine {
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Engine{
		store:     st,
		bank:      bank,
		publisher: publisher,
		metrics:   m,
		strict:    opts.StrictPayload,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Advance applies one callback: it creates the participant on first
// contact, records the previous answer otherwise, and decides what to ask
// next. All state changes are persisted before it returns.
func (e *Engine) Advance(ctx context.Context, cb Callback) (Decision, error) {
	start := time.Now()
	d, err := e.advance(ctx, cb)
	e.metrics.RecordCallback(outcome(d, err), time.Since(start).Seconds())
	return d, err
}

func (e *Engine) advance(ctx context.Context, cb Callback) (Decision, error) {
	if strings.TrimSpace(cb.CallID) == "" {
		return Decision{}, fmt.Errorf("%w: missing callID", ErrMalformedPayload)
	}
	logger := logging.WithCall(cb.CallID)

	p, err := e.find(ctx, cb.CallID)
	if errors.Is(err, store.ErrNotFound) {
		return e.firstContact(ctx, cb, logger)
	}
	if err != nil {
		return Decision{}, err
	}

	prev := StateOf(p, e.bank.Count())
	if prev.IsTerminal() {
		logger.Debug().Msg("Callback for completed survey, nothing recorded")
		return e.decide(p, prev, false, false)
	}

	ref, err := e.recordingRef(cb, p)
	if err != nil {
		return Decision{}, err
	}
	if ref == nil {
		// First contact delivered again before any answer was recorded.
		logger.Debug().Msg("Replayed first contact, repeating welcome")
		return e.decide(p, prev, false, false)
	}

	answer := models.Answer{LegID: ref.LegID, RecordingID: ref.RecordingID, RecordedAt: e.now().UTC()}
	updated, err := e.append(ctx, cb.CallID, answer)
	if errors.Is(err, store.ErrNotFound) {
		logger.Error().Err(err).Msg("Participant disappeared before answer could be recorded")
		return Decision{}, err
	}
	if err != nil {
		return Decision{}, err
	}

	appended := wasAppended(p, updated, answer)
	e.metrics.RecordAnswer(appended)

	d, err := e.decide(updated, prev, false, appended)
	if err != nil {
		return Decision{}, err
	}

	if appended {
		logger.Info().
			Str("legId", answer.LegID).
			Str("recordingId", answer.RecordingID).
			Int("answered", updated.Answered()).
			Int("total", d.Total).
			Msg("Answer recorded")
		e.publishAnswer(ctx, updated, answer, logger)
		if d.State.IsTerminal() {
			e.metrics.RecordSurveyCompleted()
			logger.Info().Msg("Survey completed")
			e.publishCompletion(ctx, updated, logger)
		}
	} else {
		logger.Info().Str("legId", answer.LegID).Msg("Replayed answer ignored")
	}
	return d, nil
}

// firstContact creates the participant. A create that loses a race proceeds
// with the record the winner stored. Nothing is ever recorded here since no
// question has been asked yet. The number is immutable once stored, so a
// strict engine refuses to create a participant without one.
func (e *Engine) firstContact(ctx context.Context, cb Callback, logger zerolog.Logger) (Decision, error) {
	if e.strict && strings.TrimSpace(cb.Destination) == "" {
		return Decision{}, fmt.Errorf("%w: missing destination for new call %s", ErrMalformedPayload, cb.CallID)
	}

	p, err := e.create(ctx, cb.CallID, cb.Destination)
	if errors.Is(err, store.ErrDuplicateKey) {
		e.metrics.RecordDuplicateCreate()
		logger.Info().Msg("Participant created concurrently, continuing with stored record")
		p, err = e.find(ctx, cb.CallID)
		if err != nil {
			return Decision{}, err
		}
		return e.decide(p, StateNew, false, false)
	}
	if err != nil {
		return Decision{}, err
	}

	e.metrics.RecordParticipantCreated()
	logger.Info().Str("number", cb.Destination).Msg("Participant created")
	return e.decide(p, StateNew, true, false)
}

// recordingRef validates the callback's recording reference for a
// participant that is mid-survey. A nil result with no error means the
// callback is a replayed first contact.
func (e *Engine) recordingRef(cb Callback, p *models.Participant) (*RecordingRef, error) {
	ref := cb.Recording
	if ref == nil {
		if p.Answered() == 0 {
			return nil, nil
		}
		if e.strict {
			return nil, fmt.Errorf("%w: callback for %s carries no recording reference", ErrMalformedPayload, cb.CallID)
		}
		return &RecordingRef{}, nil
	}

	if e.strict && (strings.TrimSpace(ref.LegID) == "" || strings.TrimSpace(ref.RecordingID) == "") {
		return nil, fmt.Errorf("%w: callback for %s needs legId and id", ErrMalformedPayload, cb.CallID)
	}
	return ref, nil
}

func (e *Engine) decide(p *models.Participant, prev State, created, appended bool) (Decision, error) {
	total := e.bank.Count()
	d := Decision{
		CallID:      p.CallID,
		Index:       p.Answered(),
		Total:       total,
		Previous:    prev,
		State:       StateOf(p, total),
		Created:     created,
		Appended:    appended,
		Participant: p,
	}
	if d.Index > total {
		d.Index = total
	}
	if !d.State.IsTerminal() {
		q, err := e.bank.At(d.Index)
		if err != nil {
			return Decision{}, err
		}
		d.Question = q
	}
	return d, nil
}

func (e *Engine) find(ctx context.Context, callID string) (*models.Participant, error) {
	start := time.Now()
	p, err := e.store.FindByCallID(ctx, callID)
	e.metrics.RecordStoreOp("find", storeErr(err), time.Since(start).Seconds())
	return p, err
}

func (e *Engine) create(ctx context.Context, callID, number string) (*models.Participant, error) {
	start := time.Now()
	p, err := e.store.Create(ctx, callID, number)
	e.metrics.RecordStoreOp("create", storeErr(err), time.Since(start).Seconds())
	return p, err
}

func (e *Engine) append(ctx context.Context, callID string, answer models.Answer) (*models.Participant, error) {
	start := time.Now()
	p, err := e.store.AppendAnswer(ctx, callID, answer, e.bank.Count())
	e.metrics.RecordStoreOp("append", storeErr(err), time.Since(start).Seconds())
	return p, err
}

func (e *Engine) publishAnswer(ctx context.Context, p *models.Participant, a models.Answer, logger zerolog.Logger) {
	if e.publisher == nil {
		return
	}
	ev := models.AnswerRecorded{
		EventID:       e.newID(),
		EventType:     models.EventAnswerRecorded,
		CallID:        p.CallID,
		QuestionIndex: p.Answered() - 1,
		LegID:         a.LegID,
		RecordingID:   a.RecordingID,
		Timestamp:     e.now().UnixMilli(),
	}
	if err := e.publisher.PublishAnswer(ctx, ev); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish answer event")
	}
}

func (e *Engine) publishCompletion(ctx context.Context, p *models.Participant, logger zerolog.Logger) {
	if e.publisher == nil {
		return
	}
	ev := models.SurveyCompleted{
		EventID:   e.newID(),
		EventType: models.EventSurveyCompleted,
		CallID:    p.CallID,
		Number:    p.Number,
		Answers:   p.Responses,
		Timestamp: e.now().UnixMilli(),
	}
	if err := e.publisher.PublishCompletion(ctx, ev); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish completion event")
	}
}

func wasAppended(before, after *models.Participant, a models.Answer) bool {
	if !a.Keyed() {
		return after.Answered() > before.Answered()
	}
	return !before.HasAnswer(a.LegID, a.RecordingID) && after.HasAnswer(a.LegID, a.RecordingID)
}

// storeErr hides the expected sentinel errors from the error metric.
func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrDuplicateKey) {
		return nil
	}
	return err
}

func outcome(d Decision, err error) string {
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return metrics.OutcomeMalformed
	case err != nil:
		return metrics.OutcomeError
	case d.State.IsTerminal():
		return metrics.OutcomeComplete
	case d.Index == 0:
		return metrics.OutcomeWelcome
	default:
		return metrics.OutcomeQuestion
	}
}
