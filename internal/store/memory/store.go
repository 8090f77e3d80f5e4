// Package memory provides an in-process participant store for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"voice-survey-service/internal/models"
	"voice-survey-service/internal/store"
)

// Store implements store.Store with a mutex-guarded map.
type Store struct {
	mu           sync.RWMutex
	participants map[string]*models.Participant
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty memory store.
func New() *Store {
	return &Store{
		participants: make(map[string]*models.Participant),
		now:          time.Now,
	}
}

func (s *Store) FindByCallID(_ context.Context, callID string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[callID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) Create(_ context.Context, callID, number string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[callID]; ok {
		return nil, store.ErrDuplicateKey
	}

	now := s.now().UTC()
	p := &models.Participant{
		CallID:    callID,
		Number:    number,
		Responses: []models.Answer{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.participants[callID] = p
	return p.Clone(), nil
}

func (s *Store) AppendAnswer(_ context.Context, callID string, answer models.Answer, limit int) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[callID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if p.Answered() < limit && (!answer.Keyed() || !p.HasAnswer(answer.LegID, answer.RecordingID)) {
		if answer.RecordedAt.IsZero() {
			answer.RecordedAt = s.now().UTC()
		}
		p.Responses = append(p.Responses, answer)
		p.UpdatedAt = answer.RecordedAt
	}
	return p.Clone(), nil
}

// List returns participants ordered by creation time.
func (s *Store) List(_ context.Context) ([]*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Close(context.Context) error { return nil }
