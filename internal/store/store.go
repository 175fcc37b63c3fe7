// Package store defines the persistence gateway the repository and session
// engine are written against, plus the change-subscription hub its
// implementations share.
package store

import (
	"context"

	"quiztrack-service/internal/domain"
)

// Store is the persistence gateway over the four entities. Implementations
// live under internal/infra; lookups that miss return domain.ErrQuizNotFound
// or domain.ErrAttemptNotFound, every other failure is wrapped as a
// domain.StorageError by the caller.
type Store interface {
	// CreateQuizWithQuestions persists a quiz and its question batch as one
	// unit; SQL stores run it in a single transaction so a quiz can never
	// exist without its questions.
	CreateQuizWithQuestions(ctx context.Context, quiz domain.Quiz, questions []domain.Question) error
	QuizByID(ctx context.Context, quizID string) (domain.Quiz, error)
	// QuizByName reports absence via the bool, not an error.
	QuizByName(ctx context.Context, name string) (domain.Quiz, bool, error)
	QuizExistsByName(ctx context.Context, name string) (bool, error)
	// Quizzes lists all quizzes, newest first.
	Quizzes(ctx context.Context) ([]domain.Quiz, error)
	// DeleteQuiz removes the quiz and cascades to its questions, attempts
	// and their answers.
	DeleteQuiz(ctx context.Context, quizID string) error

	// QuestionsForQuiz returns questions ordered ascending by QuestionOrder.
	QuestionsForQuiz(ctx context.Context, quizID string) ([]domain.Question, error)

	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	AttemptByID(ctx context.Context, attemptID string) (domain.Attempt, error)
	// AttemptsForQuiz lists attempts, newest first.
	AttemptsForQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error)
	// CompleteAttempt sets the terminal fields of an attempt in one write.
	CompleteAttempt(ctx context.Context, attemptID string, completedAt int64, totalCorrect int) error

	// SaveAnswer inserts or replaces by answer id.
	SaveAnswer(ctx context.Context, answer domain.Answer) error
	// AnswersForAttempt returns answers ordered by AnsweredAt ascending.
	AnswersForAttempt(ctx context.Context, attemptID string) ([]domain.Answer, error)
	// AnswersForQuestion gathers every answer to one question across all
	// attempts of the quiz, in insertion order.
	AnswersForQuestion(ctx context.Context, quizID, questionID string) ([]domain.Answer, error)
	CorrectAnswerCount(ctx context.Context, attemptID string) (int, error)
	AnswerCountForQuestion(ctx context.Context, quizID, questionID string) (int, error)

	// Watch* deliver the current result set immediately and again after
	// every write touching it. The cancel func must be called to release
	// the subscription.
	WatchQuizzes(ctx context.Context) (<-chan []domain.Quiz, func())
	WatchQuestions(ctx context.Context, quizID string) (<-chan []domain.Question, func())
	WatchAttempts(ctx context.Context, quizID string) (<-chan []domain.Attempt, func())
	WatchAnswers(ctx context.Context, attemptID string) (<-chan []domain.Answer, func())
}

// ProgressStore persists the two scalars worth surviving a restart
// mid-attempt: the current question index and the seconds remaining.
type ProgressStore interface {
	SaveProgress(ctx context.Context, attemptID string, questionIndex, timeRemaining int) error
	// LoadProgress reports absence via the bool.
	LoadProgress(ctx context.Context, attemptID string) (questionIndex, timeRemaining int, ok bool, err error)
	ClearProgress(ctx context.Context, attemptID string) error
}
