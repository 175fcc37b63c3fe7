package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiztrack-service/internal/domain"
)

func seedQuiz(t *testing.T, s *Store, quizID string, questionIDs ...string) {
	t.Helper()
	questions := make([]domain.Question, 0, len(questionIDs))
	for i, id := range questionIDs {
		questions = append(questions, domain.Question{
			ID:            id,
			QuizID:        quizID,
			QuestionText:  "q" + id,
			CorrectAnswer: "right",
			Options:       []string{"right", "wrong"},
			QuestionOrder: i,
		})
	}
	quiz := domain.Quiz{
		ID:                     quizID,
		Name:                   "quiz " + quizID,
		CreatedAt:              time.Now().UnixMilli(),
		TotalQuestions:         len(questions),
		TimePerQuestionSeconds: 30,
	}
	if err := s.CreateQuizWithQuestions(context.Background(), quiz, questions); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
}

func TestQuizLookups(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedQuiz(t, s, "quiz-1", "q1", "q2")

	if _, err := s.QuizByID(ctx, "quiz-1"); err != nil {
		t.Fatalf("quiz by id: %v", err)
	}
	if _, err := s.QuizByID(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	_, found, err := s.QuizByName(ctx, "quiz quiz-1")
	if err != nil || !found {
		t.Fatalf("expected quiz found by name, got found=%v err=%v", found, err)
	}
	_, found, err = s.QuizByName(ctx, "nope")
	if err != nil || found {
		t.Fatalf("expected absence without error, got found=%v err=%v", found, err)
	}

	questions, err := s.QuestionsForQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 || questions[0].QuestionOrder != 0 || questions[1].QuestionOrder != 1 {
		t.Fatalf("expected ordered questions, got %+v", questions)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedQuiz(t, s, "quiz-1", "q1")

	attempt := domain.Attempt{ID: "a1", QuizID: "quiz-1", StartedAt: 100, TotalQuestions: 1}
	if err := s.CreateAttempt(ctx, attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	if err := s.SaveAnswer(ctx, domain.Answer{
		ID: "ans1", AttemptID: "a1", QuestionID: "q1",
		SelectedAnswer: "right", IsCorrect: true, AnsweredAt: 200,
	}); err != nil {
		t.Fatalf("save answer: %v", err)
	}

	count, err := s.CorrectAnswerCount(ctx, "a1")
	if err != nil || count != 1 {
		t.Fatalf("expected 1 correct answer, got %d err=%v", count, err)
	}

	if err := s.CompleteAttempt(ctx, "a1", 300, count); err != nil {
		t.Fatalf("complete attempt: %v", err)
	}
	got, err := s.AttemptByID(ctx, "a1")
	if err != nil {
		t.Fatalf("attempt by id: %v", err)
	}
	if !got.IsCompleted || got.TotalCorrect != 1 || got.CompletedAt != 300 {
		t.Fatalf("unexpected completed attempt: %+v", got)
	}

	if err := s.CompleteAttempt(ctx, "missing", 300, 0); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestAnswersForQuestionSpansAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedQuiz(t, s, "quiz-1", "q1")

	for i, attemptID := range []string{"a1", "a2"} {
		if err := s.CreateAttempt(ctx, domain.Attempt{
			ID: attemptID, QuizID: "quiz-1", StartedAt: int64(i), TotalQuestions: 1,
		}); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
		if err := s.SaveAnswer(ctx, domain.Answer{
			ID: "ans-" + attemptID, AttemptID: attemptID, QuestionID: "q1",
			IsCorrect: i == 0, AnsweredAt: int64(100 + i),
		}); err != nil {
			t.Fatalf("save answer: %v", err)
		}
	}

	answers, err := s.AnswersForQuestion(ctx, "quiz-1", "q1")
	if err != nil {
		t.Fatalf("answers for question: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers across attempts, got %d", len(answers))
	}
	count, err := s.AnswerCountForQuestion(ctx, "quiz-1", "q1")
	if err != nil || count != 2 {
		t.Fatalf("expected count 2, got %d err=%v", count, err)
	}
}

func TestDeleteQuizCascades(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedQuiz(t, s, "quiz-1", "q1")
	_ = s.CreateAttempt(ctx, domain.Attempt{ID: "a1", QuizID: "quiz-1", TotalQuestions: 1})
	_ = s.SaveAnswer(ctx, domain.Answer{ID: "ans1", AttemptID: "a1", QuestionID: "q1"})

	if err := s.DeleteQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}
	if _, err := s.QuizByID(ctx, "quiz-1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz gone, got %v", err)
	}
	if _, err := s.AttemptByID(ctx, "a1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt gone, got %v", err)
	}
	answers, _ := s.AnswersForAttempt(ctx, "a1")
	if len(answers) != 0 {
		t.Fatalf("expected answers gone, got %d", len(answers))
	}
}

func TestWatchAttemptsPushesOnWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedQuiz(t, s, "quiz-1", "q1")

	ch, cancel := s.WatchAttempts(ctx, "quiz-1")
	defer cancel()

	initial := <-ch
	if len(initial) != 0 {
		t.Fatalf("expected empty initial attempt list, got %d", len(initial))
	}

	_ = s.CreateAttempt(ctx, domain.Attempt{ID: "a1", QuizID: "quiz-1", TotalQuestions: 1})

	select {
	case update := <-ch:
		if len(update) != 1 || update[0].ID != "a1" {
			t.Fatalf("expected attempt a1 in update, got %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatal("no attempt update received")
	}
}

func TestProgressStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewProgressStore()

	if _, _, ok, err := p.LoadProgress(ctx, "a1"); err != nil || ok {
		t.Fatalf("expected no progress, got ok=%v err=%v", ok, err)
	}

	if err := p.SaveProgress(ctx, "a1", 3, 17); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	idx, remaining, ok, err := p.LoadProgress(ctx, "a1")
	if err != nil || !ok || idx != 3 || remaining != 17 {
		t.Fatalf("unexpected progress: idx=%d remaining=%d ok=%v err=%v", idx, remaining, ok, err)
	}

	if err := p.ClearProgress(ctx, "a1"); err != nil {
		t.Fatalf("clear progress: %v", err)
	}
	if _, _, ok, _ := p.LoadProgress(ctx, "a1"); ok {
		t.Fatal("expected progress cleared")
	}
}
