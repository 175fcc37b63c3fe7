package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

func (s *Store) CreateQuizWithQuestions(ctx context.Context, quiz domain.Quiz, questions []domain.Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO quizzes (id, name, created_at_ms, total_questions, time_per_question_s)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   created_at_ms = EXCLUDED.created_at_ms,
		   total_questions = EXCLUDED.total_questions,
		   time_per_question_s = EXCLUDED.time_per_question_s`,
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
		_, err = tx.Exec(ctx,
			`INSERT INTO questions
			 (quiz_id, id, question_text, correct_answer, options, category, difficulty, question_order)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (quiz_id, id) DO UPDATE SET
			   question_text = EXCLUDED.question_text,
			   correct_answer = EXCLUDED.correct_answer,
			   options = EXCLUDED.options,
			   category = EXCLUDED.category,
			   difficulty = EXCLUDED.difficulty,
			   question_order = EXCLUDED.question_order`,
			q.QuizID, q.ID, q.QuestionText, q.CorrectAnswer, string(optionsJSON),
			q.Category, q.Difficulty, q.QuestionOrder,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.hub.Notify(store.TopicQuizzes(), store.TopicQuestions(quiz.ID))
	return nil
}

const quizColumns = `id, name, created_at_ms, total_questions, time_per_question_s`

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var q domain.Quiz
	err := row.Scan(&q.ID, &q.Name, &q.CreatedAt, &q.TotalQuestions, &q.TimePerQuestionSeconds)
	return q, err
}

func (s *Store) QuizByID(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, quizID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, err
}

func (s *Store) QuizByName(ctx context.Context, name string) (domain.Quiz, bool, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		return domain.Quiz{}, false, err
	}
	return quiz, true, nil
}

func (s *Store) QuizExistsByName(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM quizzes WHERE name = $1 LIMIT 1`, name).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Quizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID); err != nil {
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
	rows, err := s.pool.Query(ctx, `SELECT id FROM attempts WHERE quiz_id = $1`, quizID)
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
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, question_text, correct_answer, options, category, difficulty, question_order
		 FROM questions WHERE quiz_id = $1 ORDER BY question_order ASC`, quizID)
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
