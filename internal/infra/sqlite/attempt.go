package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attempts
		 (id, quiz_id, started_at_ms, completed_at_ms, total_correct, total_questions, is_completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.QuizID, attempt.StartedAt, attempt.CompletedAt,
		attempt.TotalCorrect, attempt.TotalQuestions, boolToInt(attempt.IsCompleted),
	)
	if err != nil {
		return err
	}
	s.hub.Notify(store.TopicAttempts(attempt.QuizID))
	return nil
}

const attemptColumns = `id, quiz_id, started_at_ms, completed_at_ms, total_correct, total_questions, is_completed`

func scanAttempt(row interface{ Scan(...any) error }) (domain.Attempt, error) {
	var (
		a         domain.Attempt
		completed int
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.StartedAt, &a.CompletedAt,
		&a.TotalCorrect, &a.TotalQuestions, &completed)
	a.IsCompleted = completed != 0
	return a, err
}

func (s *Store) AttemptByID(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, attemptID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, err
}

func (s *Store) AttemptsForQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id = ? ORDER BY started_at_ms DESC, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]domain.Attempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func (s *Store) CompleteAttempt(ctx context.Context, attemptID string, completedAt int64, totalCorrect int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET is_completed = 1, completed_at_ms = ?, total_correct = ? WHERE id = ?`,
		completedAt, totalCorrect, attemptID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAttemptNotFound
	}

	var quizID string
	if err := s.db.QueryRowContext(ctx,
		`SELECT quiz_id FROM attempts WHERE id = ?`, attemptID).Scan(&quizID); err == nil {
		s.hub.Notify(store.TopicAttempts(quizID))
	}
	return nil
}

func (s *Store) SaveAnswer(ctx context.Context, answer domain.Answer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO answers
		 (id, attempt_id, question_id, selected_answer, is_correct, answered_at_ms, time_spent_s, was_timed_out)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		answer.ID, answer.AttemptID, answer.QuestionID, answer.SelectedAnswer,
		boolToInt(answer.IsCorrect), answer.AnsweredAt, answer.TimeSpentSeconds, boolToInt(answer.WasTimedOut),
	)
	if err != nil {
		return err
	}
	s.hub.Notify(store.TopicAnswers(answer.AttemptID))
	return nil
}

const answerColumns = `id, attempt_id, question_id, selected_answer, is_correct, answered_at_ms, time_spent_s, was_timed_out`

func scanAnswer(row interface{ Scan(...any) error }) (domain.Answer, error) {
	var (
		a        domain.Answer
		correct  int
		timedOut int
	)
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.SelectedAnswer,
		&correct, &a.AnsweredAt, &a.TimeSpentSeconds, &timedOut)
	a.IsCorrect = correct != 0
	a.WasTimedOut = timedOut != 0
	return a, err
}

func (s *Store) AnswersForAttempt(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE attempt_id = ?
		 ORDER BY answered_at_ms ASC, rowid ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnswers(rows)
}

func (s *Store) AnswersForQuestion(ctx context.Context, quizID, questionID string) ([]domain.Answer, error) {
	// rowid order = insertion order, which the latest-answer tie-break
	// relies on.
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.attempt_id, a.question_id, a.selected_answer, a.is_correct,
		        a.answered_at_ms, a.time_spent_s, a.was_timed_out
		 FROM answers a
		 INNER JOIN attempts att ON a.attempt_id = att.id
		 WHERE att.quiz_id = ? AND a.question_id = ?
		 ORDER BY a.rowid ASC`, quizID, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnswers(rows)
}

func collectAnswers(rows *sql.Rows) ([]domain.Answer, error) {
	answers := make([]domain.Answer, 0)
	for rows.Next() {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	return answers, rows.Err()
}

func (s *Store) CorrectAnswerCount(ctx context.Context, attemptID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers WHERE attempt_id = ? AND is_correct = 1`, attemptID).Scan(&count)
	return count, err
}

func (s *Store) AnswerCountForQuestion(ctx context.Context, quizID, questionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers a
		 INNER JOIN attempts att ON a.attempt_id = att.id
		 WHERE att.quiz_id = ? AND a.question_id = ?`, quizID, questionID).Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
