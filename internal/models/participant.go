// Package models defines the survey participant records and survey events.
package models

import "time"

// Answer references the recording a caller left for one question.
type Answer struct {
	LegID       string    `bson:"legId" json:"legId"`
	RecordingID string    `bson:"recordingId" json:"recordingId"`
	RecordedAt  time.Time `bson:"recordedAt,omitempty" json:"recordedAt,omitempty"`
}

// Participant is the survey progress of a single caller.
type Participant struct {
	CallID    string    `bson:"callId" json:"callId"`
	Number    string    `bson:"number" json:"number"`
	Responses []Answer  `bson:"responses" json:"responses"`
	CreatedAt time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Answered returns how many questions the participant has answered.
// It is the only progress marker; nothing else is stored.
func (p *Participant) Answered() int {
	return len(p.Responses)
}

// Keyed reports whether the answer carries a recording reference. Blank
// references cannot be told apart and are never deduplicated.
func (a Answer) Keyed() bool {
	return a.LegID != "" || a.RecordingID != ""
}

// HasAnswer reports whether the recording identified by legID and
// recordingID is already stored. One leg carries a recording per question,
// so only the pair identifies an answer.
func (p *Participant) HasAnswer(legID, recordingID string) bool {
	for _, a := range p.Responses {
		if a.LegID == legID && a.RecordingID == recordingID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share the responses slice.
func (p *Participant) Clone() *Participant {
	c := *p
	c.Responses = append([]Answer(nil), p.Responses...)
	return &c
}
