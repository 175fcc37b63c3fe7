// Package analytics builds the teacher dashboard aggregates from raw attempt
// and answer records. It is pure read-side arithmetic over the store; nothing
// here mutates state.
package analytics

import (
	"context"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

type Aggregator struct {
	store store.Store
}

func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// ForQuiz computes the per-question accuracy breakdown for one quiz.
func (a *Aggregator) ForQuiz(ctx context.Context, quizID string) (domain.QuizAnalytics, error) {
	quiz, err := a.store.QuizByID(ctx, quizID)
	if err != nil {
		return domain.QuizAnalytics{}, domain.WrapStorage(err)
	}

	attempts, err := a.store.AttemptsForQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizAnalytics{}, domain.WrapStorage(err)
	}
	completed := 0
	for _, att := range attempts {
		if att.IsCompleted {
			completed++
		}
	}

	questions, err := a.store.QuestionsForQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizAnalytics{}, domain.WrapStorage(err)
	}

	perQuestion := make([]domain.QuestionAnalytics, 0, len(questions))
	for _, q := range questions {
		answers, err := a.store.AnswersForQuestion(ctx, quizID, q.ID)
		if err != nil {
			return domain.QuizAnalytics{}, domain.WrapStorage(err)
		}
		perQuestion = append(perQuestion, aggregateQuestion(q, answers))
	}

	return domain.QuizAnalytics{
		Quiz:              quiz,
		TotalAttempts:     len(attempts),
		CompletedAttempts: completed,
		QuestionAnalytics: perQuestion,
	}, nil
}

// Dashboard rolls ForQuiz up across every quiz, newest first.
func (a *Aggregator) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	quizzes, err := a.store.Quizzes(ctx)
	if err != nil {
		return domain.DashboardSummary{}, domain.WrapStorage(err)
	}

	summary := domain.DashboardSummary{Quizzes: make([]domain.QuizAnalytics, 0, len(quizzes))}
	correct, total := 0, 0
	for _, quiz := range quizzes {
		qa, err := a.ForQuiz(ctx, quiz.ID)
		if err != nil {
			return domain.DashboardSummary{}, err
		}
		summary.Quizzes = append(summary.Quizzes, qa)
		summary.TotalAttempts += qa.TotalAttempts
		summary.CompletedAttempts += qa.CompletedAttempts
		for _, question := range qa.QuestionAnalytics {
			correct += question.CorrectCount
			total += question.TotalAnswers
		}
	}
	if total > 0 {
		summary.OverallAccuracy = float64(correct) / float64(total) * 100
	}
	return summary, nil
}

func aggregateQuestion(q domain.Question, answers []domain.Answer) domain.QuestionAnalytics {
	qa := domain.QuestionAnalytics{Question: q, TotalAnswers: len(answers)}
	for i := range answers {
		ans := answers[i]
		if ans.IsCorrect {
			qa.CorrectCount++
		} else {
			qa.WrongCount++
		}
		// Answers arrive in insertion order, so >= lets a later write win
		// an AnsweredAt tie.
		if qa.LatestAnswer == nil || ans.AnsweredAt >= qa.LatestAnswer.AnsweredAt {
			latest := ans
			qa.LatestAnswer = &latest
		}
	}
	if qa.TotalAnswers > 0 {
		qa.Accuracy = float64(qa.CorrectCount) / float64(qa.TotalAnswers) * 100
	}
	return qa
}
