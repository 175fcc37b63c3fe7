package sqlite

import (
	"context"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

func (s *Store) WatchQuizzes(ctx context.Context) (<-chan []domain.Quiz, func()) {
	return store.Watch(&s.hub, store.TopicQuizzes(), func() ([]domain.Quiz, error) {
		return s.Quizzes(ctx)
	})
}

func (s *Store) WatchQuestions(ctx context.Context, quizID string) (<-chan []domain.Question, func()) {
	return store.Watch(&s.hub, store.TopicQuestions(quizID), func() ([]domain.Question, error) {
		return s.QuestionsForQuiz(ctx, quizID)
	})
}

func (s *Store) WatchAttempts(ctx context.Context, quizID string) (<-chan []domain.Attempt, func()) {
	return store.Watch(&s.hub, store.TopicAttempts(quizID), func() ([]domain.Attempt, error) {
		return s.AttemptsForQuiz(ctx, quizID)
	})
}

func (s *Store) WatchAnswers(ctx context.Context, attemptID string) (<-chan []domain.Answer, func()) {
	return store.Watch(&s.hub, store.TopicAnswers(attemptID), func() ([]domain.Answer, error) {
		return s.AnswersForAttempt(ctx, attemptID)
	})
}
