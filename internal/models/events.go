package models

// AnswerRecorded is published after an answer has been persisted.
type AnswerRecorded struct {
	EventID       string `json:"eventId"`
	EventType     string `json:"eventType"`
	CallID        string `json:"callId"`
	QuestionIndex int    `json:"questionIndex"`
	LegID         string `json:"legId"`
	RecordingID   string `json:"recordingId"`
	Timestamp     int64  `json:"timestamp"`
}

// SurveyCompleted is published once a participant has answered every question.
type SurveyCompleted struct {
	EventID   string   `json:"eventId"`
	EventType string   `json:"eventType"`
	CallID    string   `json:"callId"`
	Number    string   `json:"number"`
	Answers   []Answer `json:"answers"`
	Timestamp int64    `json:"timestamp"`
}

const (
	EventAnswerRecorded  = "survey.answer.recorded"
	EventSurveyCompleted = "survey.completed"
)
