// Package repo is the write-side orchestration over the store and the
// question source: quiz creation, attempt lifecycle and answer recording.
package repo

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
	"quiztrack-service/internal/trivia"
)

// QuestionSource supplies fresh question batches. Satisfied by
// trivia.Client and by the caching wrapper in this package.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, amount int) ([]trivia.Question, error)
}

type Repository struct {
	store  store.Store
	source QuestionSource

	clock           func() time.Time
	newID           func() string
	rndMu           sync.Mutex
	rnd             *rand.Rand
	timePerQuestion int
}

func NewRepository(s store.Store, source QuestionSource) *Repository {
	return &Repository{
		store:           s,
		source:          source,
		clock:           time.Now,
		newID:           uuid.NewString,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		timePerQuestion: domain.DefaultQuestionTimeSeconds,
	}
}

// CreateQuizByName returns the quiz for name, fetching and persisting a fresh
// question batch only when no quiz with that name exists yet. Calling it
// twice with the same name never yields two quizzes.
func (r *Repository) CreateQuizByName(ctx context.Context, name string) (domain.Quiz, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < domain.MinQuizNameLength {
		return domain.Quiz{}, domain.ErrInvalidQuizName
	}

	existing, found, err := r.store.QuizByName(ctx, name)
	if err != nil {
		return domain.Quiz{}, domain.WrapStorage(err)
	}
	if found {
		return existing, nil
	}

	fetched, err := r.source.FetchQuestions(ctx, domain.QuestionsPerQuiz)
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.Quiz{
		ID:                     r.newID(),
		Name:                   name,
		CreatedAt:              r.clock().UnixMilli(),
		TotalQuestions:         len(fetched),
		TimePerQuestionSeconds: r.timePerQuestion,
	}
	questions := make([]domain.Question, 0, len(fetched))
	for i, q := range fetched {
		questions = append(questions, domain.Question{
			ID:            q.ID,
			QuizID:        quiz.ID,
			QuestionText:  q.Question.Text,
			CorrectAnswer: q.CorrectAnswer,
			Options:       r.shuffledOptions(q),
			Category:      q.Category,
			Difficulty:    q.Difficulty,
			QuestionOrder: i,
		})
	}

	if err := r.store.CreateQuizWithQuestions(ctx, quiz, questions); err != nil {
		return domain.Quiz{}, domain.WrapStorage(err)
	}
	return quiz, nil
}

// shuffledOptions mixes the correct answer in with the distractors. The
// order is fixed here, at creation, so every attempt sees the same layout.
func (r *Repository) shuffledOptions(q trivia.Question) []string {
	options := make([]string, 0, len(q.IncorrectAnswers)+1)
	options = append(options, q.CorrectAnswer)
	options = append(options, q.IncorrectAnswers...)
	r.rndMu.Lock()
	r.rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	r.rndMu.Unlock()
	return options
}

func (r *Repository) QuizByID(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := r.store.QuizByID(ctx, quizID)
	return quiz, domain.WrapStorage(err)
}

// QuizByName looks a quiz up by its exact name. A missing quiz is an absent
// result, not an error.
func (r *Repository) QuizByName(ctx context.Context, name string) (domain.Quiz, bool, error) {
	quiz, found, err := r.store.QuizByName(ctx, strings.TrimSpace(name))
	return quiz, found, domain.WrapStorage(err)
}

func (r *Repository) Quizzes(ctx context.Context) ([]domain.Quiz, error) {
	quizzes, err := r.store.Quizzes(ctx)
	return quizzes, domain.WrapStorage(err)
}

func (r *Repository) QuestionsForQuiz(ctx context.Context, quizID string) ([]domain.Question, error) {
	questions, err := r.store.QuestionsForQuiz(ctx, quizID)
	return questions, domain.WrapStorage(err)
}

func (r *Repository) DeleteQuiz(ctx context.Context, quizID string) error {
	return domain.WrapStorage(r.store.DeleteQuiz(ctx, quizID))
}

// StartAttempt opens a new attempt against quizID.
func (r *Repository) StartAttempt(ctx context.Context, quizID string) (domain.Attempt, error) {
	quiz, err := r.store.QuizByID(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, domain.WrapStorage(err)
	}
	attempt := domain.Attempt{
		ID:             r.newID(),
		QuizID:         quiz.ID,
		StartedAt:      r.clock().UnixMilli(),
		TotalQuestions: quiz.TotalQuestions,
	}
	if err := r.store.CreateAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, domain.WrapStorage(err)
	}
	return attempt, nil
}

func (r *Repository) AttemptByID(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := r.store.AttemptByID(ctx, attemptID)
	return attempt, domain.WrapStorage(err)
}

func (r *Repository) AttemptsForQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	attempts, err := r.store.AttemptsForQuiz(ctx, quizID)
	return attempts, domain.WrapStorage(err)
}

// RecordAnswer persists one submission. Correctness is decided here, once:
// a submission that arrives timed out is incorrect no matter what was
// selected.
func (r *Repository) RecordAnswer(ctx context.Context, attemptID string, question domain.Question, selected string, timeSpentSeconds int, wasTimedOut bool) (domain.Answer, error) {
	answer := domain.Answer{
		ID:               r.newID(),
		AttemptID:        attemptID,
		QuestionID:       question.ID,
		SelectedAnswer:   selected,
		IsCorrect:        question.IsCorrectAnswer(selected) && !wasTimedOut,
		AnsweredAt:       r.clock().UnixMilli(),
		TimeSpentSeconds: timeSpentSeconds,
		WasTimedOut:      wasTimedOut,
	}
	if err := r.store.SaveAnswer(ctx, answer); err != nil {
		return domain.Answer{}, domain.WrapStorage(err)
	}
	return answer, nil
}

func (r *Repository) AnswersForAttempt(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	answers, err := r.store.AnswersForAttempt(ctx, attemptID)
	return answers, domain.WrapStorage(err)
}

// CompleteAttempt finalizes the attempt, recounting correct answers from the
// stored records rather than trusting a caller-supplied score. Completing an
// already completed attempt is a no-op returning the stored result.
func (r *Repository) CompleteAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := r.store.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, domain.WrapStorage(err)
	}
	if attempt.IsCompleted {
		return attempt, nil
	}

	correct, err := r.store.CorrectAnswerCount(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, domain.WrapStorage(err)
	}
	completedAt := r.clock().UnixMilli()
	if err := r.store.CompleteAttempt(ctx, attemptID, completedAt, correct); err != nil {
		return domain.Attempt{}, domain.WrapStorage(err)
	}

	attempt.CompletedAt = completedAt
	attempt.TotalCorrect = correct
	attempt.IsCompleted = true
	return attempt, nil
}
