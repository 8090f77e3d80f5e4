// Package instructions renders call-flow documents understood by the
// telephony platform. Everything here is pure.
package instructions

import "fmt"

const (
	FlowTitle = "Survey Call Step"

	ActionSay    = "say"
	ActionRecord = "record"

	Voice    = "male"
	Language = "en-US"

	// Recording stops on any key press or after this many seconds of silence.
	FinishOnKey   = "any"
	RecordTimeout = 10

	ClosingMessage = "You have completed our survey. Thank you for participating!"
)

// Step is a single call-flow instruction.
type Step struct {
	Action  string `json:"action"`
	Options any    `json:"options"`
}

// SayOptions configures a text-to-speech step.
type SayOptions struct {
	Payload  string `json:"payload"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

// RecordOptions configures a recording step.
type RecordOptions struct {
	FinishOnKey string `json:"finishOnKey"`
	Timeout     int    `json:"timeout"`
	OnFinish    string `json:"onFinish"`
}

// Flow is the document returned for every callback.
type Flow struct {
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// Prompt describes what the caller hears next.
type Prompt struct {
	Complete bool
	Welcome  bool
	Total    int
	Question string
}

// Say builds a say step with the fixed voice and language.
func Say(text string) Step {
	return Step{
		Action: ActionSay,
		Options: SayOptions{
			Payload:  text,
			Voice:    Voice,
			Language: Language,
		},
	}
}

// Record builds a record step whose completion callback is onFinish.
func Record(onFinish string) Step {
	return Step{
		Action: ActionRecord,
		Options: RecordOptions{
			FinishOnKey: FinishOnKey,
			Timeout:     RecordTimeout,
			OnFinish:    onFinish,
		},
	}
}

// Build wraps steps into a flow document.
func Build(steps ...Step) Flow {
	if steps == nil {
		steps = []Step{}
	}
	return Flow{Title: FlowTitle, Steps: steps}
}

// Welcome returns the introduction read before the first question.
func Welcome(total int) string {
	return fmt.Sprintf("Welcome to our survey! You will be asked %d questions. "+
		"The answers will be recorded. Speak your response for each and press any key "+
		"on your phone to move on to the next question. Here is the first question:", total)
}

// Render turns a prompt into a flow: the closing message alone when the
// survey is complete, otherwise an optional welcome, the question and a
// record step.
func Render(p Prompt, onFinish string) Flow {
	if p.Complete {
		return Build(Say(ClosingMessage))
	}

	steps := make([]Step, 0, 3)
	if p.Welcome {
		steps = append(steps, Say(Welcome(p.Total)))
	}
	steps = append(steps, Say(p.Question), Record(onFinish))
	return Build(steps...)
}

// Count returns how many steps in the flow have the given action.
func (f Flow) Count(action string) int {
	n := 0
	for _, s := range f.Steps {
		if s.Action == action {
			n++
		}
	}
	return n
}
