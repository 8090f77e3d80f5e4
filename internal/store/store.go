// Package store defines the participant persistence contract.
package store

import (
	"context"
	"errors"

	"voice-survey-service/internal/models"
)

var (
	// ErrNotFound is returned when no participant exists for a call ID.
	ErrNotFound = errors.New("participant not found")
	// ErrDuplicateKey is returned by Create when another request already
	// inserted a participant with the same call ID.
	ErrDuplicateKey = errors.New("participant already exists")
)

// Store persists one participant record per call.
//
// Implementations must be safe for concurrent use. AppendAnswer is atomic
// per call ID: the answer is stored only if no answer with the same leg ID
// and recording ID exists and fewer than limit answers are stored. One leg
// carries a recording per question, so the leg alone is not a key. Answers
// with a blank reference are not deduplicated. It returns the record as
// stored after the operation, whether or not the answer was added.
type Store interface {
	FindByCallID(ctx context.Context, callID string) (*models.Participant, error)
	Create(ctx context.Context, callID, number string) (*models.Participant, error)
	AppendAnswer(ctx context.Context, callID string, answer models.Answer, limit int) (*models.Participant, error)
	List(ctx context.Context) ([]*models.Participant, error)
	Close(ctx context.Context) error
}
