package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"quiztrack-service/internal/analytics"
	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/repo"
)

// API serves the quiz management and teacher dashboard endpoints.
type API struct {
	repo      *repo.Repository
	analytics *analytics.Aggregator
	log       logrus.FieldLogger
}

func NewAPI(r *repo.Repository, a *analytics.Aggregator, log logrus.FieldLogger) *API {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{repo: r, analytics: a, log: log}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quizzes", a.createQuiz)
	mux.HandleFunc("GET /api/quizzes", a.listQuizzes)
	mux.HandleFunc("GET /api/quizzes/{id}", a.getQuiz)
	mux.HandleFunc("DELETE /api/quizzes/{id}", a.deleteQuiz)
	mux.HandleFunc("GET /api/quizzes/{id}/questions", a.listQuestions)
	mux.HandleFunc("GET /api/quizzes/{id}/attempts", a.listAttempts)
	mux.HandleFunc("GET /api/quizzes/{id}/analytics", a.quizAnalytics)
	mux.HandleFunc("GET /api/attempts/{id}", a.getAttempt)
	mux.HandleFunc("GET /api/dashboard", a.dashboard)
}

type createQuizRequest struct {
	Name string `json:"name"`
}

func (a *API) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quiz, err := a.repo.CreateQuizByName(r.Context(), req.Name)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (a *API) listQuizzes(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		quiz, found, err := a.repo.QuizByName(r.Context(), name)
		if err != nil {
			a.writeDomainError(w, err)
			return
		}
		if !found {
			a.writeDomainError(w, domain.ErrQuizNotFound)
			return
		}
		writeJSON(w, http.StatusOK, quiz)
		return
	}

	quizzes, err := a.repo.Quizzes(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (a *API) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := a.repo.QuizByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (a *API) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := a.repo.DeleteQuiz(r.Context(), r.PathValue("id")); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.repo.QuestionsForQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := a.repo.AttemptsForQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

type quizAnalyticsResponse struct {
	domain.QuizAnalytics
	OverallAccuracy float64 `json:"overallAccuracy"`
}

func (a *API) quizAnalytics(w http.ResponseWriter, r *http.Request) {
	qa, err := a.analytics.ForQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizAnalyticsResponse{
		QuizAnalytics:   qa,
		OverallAccuracy: qa.OverallAccuracy(),
	})
}

type attemptResponse struct {
	domain.Attempt
	ScorePercentage float64 `json:"scorePercentage"`
	ScoreText       string  `json:"scoreText"`
}

func (a *API) getAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := a.repo.AttemptByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse{
		Attempt:         attempt,
		ScorePercentage: attempt.ScorePercentage(),
		ScoreText:       attempt.ScoreText(),
	})
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := a.analytics.Dashboard(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	var netErr *domain.NetworkError
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuizName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoConnection), errors.Is(err, domain.ErrTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &netErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		a.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}
