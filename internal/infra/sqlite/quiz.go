package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

func (s *Store) CreateQuizWithQuestions(ctx context.Context, quiz domain.Quiz, questions []domain.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO quizzes (id, name, created_at_ms, total_questions, time_per_question_s)
		 VALUES (?, ?, ?, ?, ?)`,
		quiz.ID, quiz.Name, quiz.CreatedAt, quiz.TotalQuestions, quiz.TimePerQuestionSeconds,
	)
	if err != nil {
		return err
	}

	for _, q := range questions {
		optionsJSON, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO questions
			 (quiz_id, id, question_text, correct_answer, options_json, category, difficulty, question_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.QuizID, q.ID, q.QuestionText, q.CorrectAnswer, string(optionsJSON),
			q.Category, q.Difficulty, q.QuestionOrder,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.hub.Notify(store.TopicQuizzes(), store.TopicQuestions(quiz.ID))
	return nil
}

const quizColumns = `id, name, created_at_ms, total_questions, time_per_question_s`

func scanQuiz(row interface{ Scan(...any) error }) (domain.Quiz, error) {
	var q domain.Quiz
	err := row.Scan(&q.ID, &q.Name, &q.CreatedAt, &q.TotalQuestions, &q.TimePerQuestionSeconds)
	return q, err
}

func (s *Store) QuizByID(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := scanQuiz(s.db.QueryRowContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, quizID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, err
}

func (s *Store) QuizByName(ctx context.Context, name string) (domain.Quiz, bool, error) {
	quiz, err := scanQuiz(s.db.QueryRowContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		return domain.Quiz{}, false, err
	}
	return quiz, true, nil
}

func (s *Store) QuizExistsByName(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM quizzes WHERE name = ? LIMIT 1`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Quizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes ORDER BY created_at_ms DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	attemptIDs, err := s.attemptIDsForQuiz(ctx, quizID)
	if err != nil {
		return err
	}

	// ON DELETE CASCADE drops questions, attempts and answers with the quiz.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = ?`, quizID); err != nil {
		return err
	}

	topics := []string{store.TopicQuizzes(), store.TopicQuestions(quizID), store.TopicAttempts(quizID)}
	for _, id := range attemptIDs {
		topics = append(topics, store.TopicAnswers(id))
	}
	s.hub.Notify(topics...)
	return nil
}

func (s *Store) attemptIDsForQuiz(ctx context.Context, quizID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM attempts WHERE quiz_id = ?`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) QuestionsForQuiz(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quiz_id, question_text, correct_answer, options_json, category, difficulty, question_order
		 FROM questions WHERE quiz_id = ? ORDER BY question_order ASC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q           domain.Question
			optionsJSON string
		)
		if err := rows.Scan(&q.ID, &q.QuizID, &q.QuestionText, &q.CorrectAnswer,
			&optionsJSON, &q.Category, &q.Difficulty, &q.QuestionOrder); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
