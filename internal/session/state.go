// Package session drives one quiz run: question order, the per-question
// countdown, answer submission and completion. All mutation happens on a
// single goroutine fed by a command channel; async store calls post their
// results back as commands tagged with a generation so stale replies from an
// abandoned load can never corrupt the current run.
package session

import (
	"quiztrack-service/internal/domain"
)

// Outcome is the per-question result of the current run, kept in question
// order for the feedback and result screens.
type Outcome struct {
	QuestionID string `json:"questionId"`
	Selected   string `json:"selected"`
	Correct    bool   `json:"correct"`
	TimedOut   bool   `json:"timedOut"`
}

// State is an immutable snapshot of the run, pushed to subscribers after
// every transition.
type State struct {
	QuizID    string `json:"quizId"`
	AttemptID string `json:"attemptId,omitempty"`

	Loading    bool `json:"loading"`
	Submitting bool `json:"submitting"`
	Paused     bool `json:"paused"`
	Completed  bool `json:"completed"`

	Questions      []domain.Question `json:"questions,omitempty"`
	CurrentIndex   int               `json:"currentIndex"`
	SelectedAnswer string            `json:"selectedAnswer"`
	TimeRemaining  int               `json:"timeRemaining"`
	TotalTime      int               `json:"totalTime"`

	// ShowResult is true while per-question feedback is on screen, between
	// a recorded answer and the advance to the next question.
	ShowResult  bool      `json:"showResult"`
	LastCorrect bool      `json:"lastCorrect"`
	Outcomes    []Outcome `json:"outcomes,omitempty"`

	Err error `json:"-"`
}

// CurrentQuestion returns the question under the cursor.
func (s State) CurrentQuestion() (domain.Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return domain.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// IsUrgent reports whether the countdown is in its final stretch.
func (s State) IsUrgent() bool {
	return s.TimeRemaining > 0 && s.TimeRemaining <= domain.UrgentTimeThresholdSeconds
}

// CorrectCount tallies the correct outcomes of this run so far.
func (s State) CorrectCount() int {
	count := 0
	for _, o := range s.Outcomes {
		if o.Correct {
			count++
		}
	}
	return count
}

// EventKind discriminates one-shot Event values.
type EventKind int

const (
	// EventNavigateToResult fires once after successful completion.
	EventNavigateToResult EventKind = iota
	// EventShowError fires on a load, save or completion failure.
	EventShowError
	// EventFeedbackCorrect and EventFeedbackIncorrect fire when an answer
	// is recorded.
	EventFeedbackCorrect
	EventFeedbackIncorrect
)

// Event is a one-shot signal, consumed once, unlike State which is a level.
type Event struct {
	Kind      EventKind `json:"kind"`
	AttemptID string    `json:"attemptId,omitempty"`
	Err       error     `json:"-"`
}
