package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempts
		 (id, quiz_id, started_at_ms, completed_at_ms, total_correct, total_questions, is_completed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   started_at_ms = EXCLUDED.started_at_ms,
		   completed_at_ms = EXCLUDED.completed_at_ms,
		   total_correct = EXCLUDED.total_correct,
		   total_questions = EXCLUDED.total_questions,
		   is_completed = EXCLUDED.is_completed`,
		attempt.ID, attempt.QuizID, attempt.StartedAt, attempt.CompletedAt,
		attempt.TotalCorrect, attempt.TotalQuestions, attempt.IsCompleted,
	)
	if err != nil {
		return err
	}
	s.hub.Notify(store.TopicAttempts(attempt.QuizID))
	return nil
}

const attemptColumns = `id, quiz_id, started_at_ms, completed_at_ms, total_correct, total_questions, is_completed`

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var a domain.Attempt
	err := row.Scan(&a.ID, &a.QuizID, &a.StartedAt, &a.CompletedAt,
		&a.TotalCorrect, &a.TotalQuestions, &a.IsCompleted)
	return a, err
}

func (s *Store) AttemptByID(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, attemptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, err
}

func (s *Store) AttemptsForQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id = $1 ORDER BY started_at_ms DESC, id`, quizID)
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
	var quizID string
	err := s.pool.QueryRow(ctx,
		`UPDATE attempts SET is_completed = TRUE, completed_at_ms = $1, total_correct = $2
		 WHERE id = $3 RETURNING quiz_id`,
		completedAt, totalCorrect, attemptID).Scan(&quizID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAttemptNotFound
	}
	if err != nil {
		return err
	}
	s.hub.Notify(store.TopicAttempts(quizID))
	return nil
}

func (s *Store) SaveAnswer(ctx context.Context, answer domain.Answer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answers
		 (id, attempt_id, question_id, selected_answer, is_correct, answered_at_ms, time_spent_s, was_timed_out)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   selected_answer = EXCLUDED.selected_answer,
		   is_correct = EXCLUDED.is_correct,
		   answered_at_ms = EXCLUDED.answered_at_ms,
		   time_spent_s = EXCLUDED.time_spent_s,
		   was_timed_out = EXCLUDED.was_timed_out`,
		answer.ID, answer.AttemptID, answer.QuestionID, answer.SelectedAnswer,
		answer.IsCorrect, answer.AnsweredAt, answer.TimeSpentSeconds, answer.WasTimedOut,
	)
	if err != nil {
		return err
	}
	s.hub.Notify(store.TopicAnswers(answer.AttemptID))
	return nil
}

const answerColumns = `id, attempt_id, question_id, selected_answer, is_correct, answered_at_ms, time_spent_s, was_timed_out`

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var a domain.Answer
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.SelectedAnswer,
		&a.IsCorrect, &a.AnsweredAt, &a.TimeSpentSeconds, &a.WasTimedOut)
	return a, err
}

func (s *Store) AnswersForAttempt(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE attempt_id = $1
		 ORDER BY answered_at_ms ASC, seq ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnswers(rows)
}

func (s *Store) AnswersForQuestion(ctx context.Context, quizID, questionID string) ([]domain.Answer, error) {
	// seq order = insertion order, which the latest-answer tie-break relies on.
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.attempt_id, a.question_id, a.selected_answer, a.is_correct,
		        a.answered_at_ms, a.time_spent_s, a.was_timed_out
		 FROM answers a
		 INNER JOIN attempts att ON a.attempt_id = att.id
		 WHERE att.quiz_id = $1 AND a.question_id = $2
		 ORDER BY a.seq ASC`, quizID, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnswers(rows)
}

func collectAnswers(rows pgx.Rows) ([]domain.Answer, error) {
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
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM answers WHERE attempt_id = $1 AND is_correct`, attemptID).Scan(&count)
	return count, err
}

func (s *Store) AnswerCountForQuestion(ctx context.Context, quizID, questionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM answers a
		 INNER JOIN attempts att ON a.attempt_id = att.id
		 WHERE att.quiz_id = $1 AND a.question_id = $2`, quizID, questionID).Scan(&count)
	return count, err
}
