package domain

import (
	"fmt"
	"time"
)

const (
	// QuestionsPerQuiz is the batch size fetched when a quiz is created.
	QuestionsPerQuiz = 10
	// DefaultQuestionTimeSeconds is the per-question countdown.
	DefaultQuestionTimeSeconds = 30
	// UrgentTimeThresholdSeconds marks the countdown tail where clients
	// render the timer as urgent.
	UrgentTimeThresholdSeconds = 5
	// MinQuizNameLength is the minimum trimmed length of a quiz name.
	MinQuizNameLength = 3
)

// Quiz is one named question set. A name maps to exactly one quiz; creating
// the same name again yields the existing record.
type Quiz struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	CreatedAt              int64  `json:"createdAt"` // unix millis
	TotalQuestions         int    `json:"totalQuestions"`
	TimePerQuestionSeconds int    `json:"timePerQuestionSeconds"`
}

// Question is one multiple-choice question of a quiz. Options holds every
// candidate answer including the correct one; their order is a presentation
// concern and stores may shuffle it on read.
type Question struct {
	ID            string   `json:"id"`
	QuizID        string   `json:"quizId"`
	QuestionText  string   `json:"questionText"`
	CorrectAnswer string   `json:"correctAnswer"`
	Options       []string `json:"options"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	QuestionOrder int      `json:"questionOrder"`
}

// IsCorrectAnswer reports whether the given text matches the correct answer.
func (q Question) IsCorrectAnswer(answer string) bool {
	return answer == q.CorrectAnswer
}

// CorrectAnswerIndex returns the position of the correct answer in Options,
// or -1 when absent.
func (q Question) CorrectAnswerIndex() int {
	for i, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return i
		}
	}
	return -1
}

// Attempt is one timed run through a quiz. It is mutated exactly once, at
// completion, and never again.
type Attempt struct {
	ID             string `json:"id"`
	QuizID         string `json:"quizId"`
	StartedAt      int64  `json:"startedAt"` // unix millis
	CompletedAt    int64  `json:"completedAt,omitempty"`
	TotalCorrect   int    `json:"totalCorrect"`
	TotalQuestions int    `json:"totalQuestions"`
	IsCompleted    bool   `json:"isCompleted"`
}

// ScorePercentage is totalCorrect over totalQuestions as a percentage.
func (a Attempt) ScorePercentage() float64 {
	if a.TotalQuestions == 0 {
		return 0
	}
	return float64(a.TotalCorrect) / float64(a.TotalQuestions) * 100
}

// ScoreText formats the score for display, e.g. "7 / 10".
func (a Attempt) ScoreText() string {
	return fmt.Sprintf("%d / %d", a.TotalCorrect, a.TotalQuestions)
}

// Duration is the wall time of a completed attempt, zero until completion.
func (a Attempt) Duration() time.Duration {
	if !a.IsCompleted || a.CompletedAt == 0 {
		return 0
	}
	return time.Duration(a.CompletedAt-a.StartedAt) * time.Millisecond
}

// Answer is the immutable record of one submission. SelectedAnswer may be
// empty, which denotes no selection (pure timeout). IsCorrect is computed
// once at submission and never re-derived.
type Answer struct {
	ID               string `json:"id"`
	AttemptID        string `json:"attemptId"`
	QuestionID       string `json:"questionId"`
	SelectedAnswer   string `json:"selectedAnswer"`
	IsCorrect        bool   `json:"isCorrect"`
	AnsweredAt       int64  `json:"answeredAt"` // unix millis
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
	WasTimedOut      bool   `json:"wasTimedOut"`
}
