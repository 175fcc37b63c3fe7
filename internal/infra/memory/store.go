// Package memory holds the in-process implementations of the persistence
// gateways, used by tests and by serve runs without a database configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

// Store is an in-memory store.Store. Answers keep insertion order so the
// latest-answer tie-break stays deterministic.
type Store struct {
	mu        sync.RWMutex
	hub       store.Hub
	quizzes   map[string]domain.Quiz
	questions map[string][]domain.Question // by quiz id, ordered
	attempts  map[string]domain.Attempt
	answers   map[string][]domain.Answer // by attempt id, insertion order
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string][]domain.Question),
		attempts:  make(map[string]domain.Attempt),
		answers:   make(map[string][]domain.Answer),
	}
}

func (s *Store) CreateQuizWithQuestions(_ context.Context, quiz domain.Quiz, questions []domain.Question) error {
	s.mu.Lock()
	s.quizzes[quiz.ID] = quiz
	ordered := make([]domain.Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].QuestionOrder < ordered[j].QuestionOrder
	})
	s.questions[quiz.ID] = ordered
	s.mu.Unlock()

	s.hub.Notify(store.TopicQuizzes(), store.TopicQuestions(quiz.ID))
	return nil
}

func (s *Store) QuizByID(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) QuizByName(_ context.Context, name string) (domain.Quiz, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, quiz := range s.quizzes {
		if quiz.Name == name {
			return quiz, true, nil
		}
	}
	return domain.Quiz{}, false, nil
}

func (s *Store) QuizExistsByName(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.QuizByName(ctx, name)
	return ok, err
}

func (s *Store) Quizzes(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quizzesLocked(), nil
}

func (s *Store) quizzesLocked() []domain.Quiz {
	list := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		list = append(list, quiz)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	delete(s.quizzes, quizID)
	delete(s.questions, quizID)
	var droppedAttempts []string
	for id, attempt := range s.attempts {
		if attempt.QuizID == quizID {
			droppedAttempts = append(droppedAttempts, id)
		}
	}
	for _, id := range droppedAttempts {
		delete(s.attempts, id)
		delete(s.answers, id)
	}
	s.mu.Unlock()

	topics := []string{store.TopicQuizzes(), store.TopicQuestions(quizID), store.TopicAttempts(quizID)}
	for _, id := range droppedAttempts {
		topics = append(topics, store.TopicAnswers(id))
	}
	s.hub.Notify(topics...)
	return nil
}

func (s *Store) QuestionsForQuiz(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions := s.questions[quizID]
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	s.attempts[attempt.ID] = attempt
	s.mu.Unlock()

	s.hub.Notify(store.TopicAttempts(attempt.QuizID))
	return nil
}

func (s *Store) AttemptByID(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) AttemptsForQuiz(_ context.Context, quizID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID {
			list = append(list, attempt)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt != list[j].StartedAt {
			return list[i].StartedAt > list[j].StartedAt
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (s *Store) CompleteAttempt(_ context.Context, attemptID string, completedAt int64, totalCorrect int) error {
	s.mu.Lock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrAttemptNotFound
	}
	attempt.CompletedAt = completedAt
	attempt.TotalCorrect = totalCorrect
	attempt.IsCompleted = true
	s.attempts[attemptID] = attempt
	s.mu.Unlock()

	s.hub.Notify(store.TopicAttempts(attempt.QuizID))
	return nil
}

func (s *Store) SaveAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	existing := s.answers[answer.AttemptID]
	replaced := false
	for i := range existing {
		if existing[i].ID == answer.ID {
			existing[i] = answer
			replaced = true
			break
		}
	}
	if !replaced {
		s.answers[answer.AttemptID] = append(existing, answer)
	}
	s.mu.Unlock()

	s.hub.Notify(store.TopicAnswers(answer.AttemptID))
	return nil
}

func (s *Store) AnswersForAttempt(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := s.answers[attemptID]
	out := make([]domain.Answer, len(answers))
	copy(out, answers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnsweredAt < out[j].AnsweredAt
	})
	return out, nil
}

func (s *Store) AnswersForQuestion(_ context.Context, quizID, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for _, attempt := range s.attemptsForQuizLocked(quizID) {
		for _, answer := range s.answers[attempt.ID] {
			if answer.QuestionID == questionID {
				out = append(out, answer)
			}
		}
	}
	return out, nil
}

// attemptsForQuizLocked iterates attempts in a stable order so answer lists
// keep a deterministic insertion order across calls.
func (s *Store) attemptsForQuizLocked(quizID string) []domain.Attempt {
	var list []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID {
			list = append(list, attempt)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt != list[j].StartedAt {
			return list[i].StartedAt < list[j].StartedAt
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (s *Store) CorrectAnswerCount(_ context.Context, attemptID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, answer := range s.answers[attemptID] {
		if answer.IsCorrect {
			count++
		}
	}
	return count, nil
}

func (s *Store) AnswerCountForQuestion(ctx context.Context, quizID, questionID string) (int, error) {
	answers, err := s.AnswersForQuestion(ctx, quizID, questionID)
	if err != nil {
		return 0, err
	}
	return len(answers), nil
}

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
