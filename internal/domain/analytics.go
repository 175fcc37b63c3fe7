package domain

// QuestionAnalytics aggregates every historical answer to one question
// across all attempts of its quiz.
type QuestionAnalytics struct {
	Question     Question `json:"question"`
	TotalAnswers int      `json:"totalAnswers"`
	CorrectCount int      `json:"correctCount"`
	WrongCount   int      `json:"wrongCount"`
	Accuracy     float64  `json:"accuracy"` // percentage, 0 when unanswered
	LatestAnswer *Answer  `json:"latestAnswer,omitempty"`
}

// QuizAnalytics is the per-quiz view of the teacher dashboard.
type QuizAnalytics struct {
	Quiz              Quiz                `json:"quiz"`
	TotalAttempts     int                 `json:"totalAttempts"`
	CompletedAttempts int                 `json:"completedAttempts"`
	QuestionAnalytics []QuestionAnalytics `json:"questionAnalytics"`
}

// OverallAccuracy sums correct over total across every question, so
// questions with more answers weigh proportionally more than a plain
// average of per-question accuracies would allow.
func (a QuizAnalytics) OverallAccuracy() float64 {
	correct, total := 0, 0
	for _, qa := range a.QuestionAnalytics {
		correct += qa.CorrectCount
		total += qa.TotalAnswers
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// DashboardSummary rolls QuizAnalytics up across every quiz.
type DashboardSummary struct {
	Quizzes           []QuizAnalytics `json:"quizzes"`
	TotalAttempts     int             `json:"totalAttempts"`
	CompletedAttempts int             `json:"completedAttempts"`
	OverallAccuracy   float64         `json:"overallAccuracy"`
}
