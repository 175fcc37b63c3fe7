package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiztrack-service/internal/infra/memory"
	"quiztrack-service/internal/repo"
	"quiztrack-service/internal/trivia"
)

type fakeSource struct{ count int }

func (f *fakeSource) FetchQuestions(_ context.Context, _ int) ([]trivia.Question, error) {
	out := make([]trivia.Question, 0, f.count)
	for i := 0; i < f.count; i++ {
		out = append(out, trivia.Question{
			ID:               fmt.Sprintf("q%d", i),
			CorrectAnswer:    "right",
			IncorrectAnswers: []string{"wrong a", "wrong b", "wrong c"},
			Question:         trivia.QuestionText{Text: fmt.Sprintf("question %d?", i)},
		})
	}
	return out, nil
}

func newWSServer(t *testing.T, questionCount int) (*httptest.Server, *repo.Repository, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	repository := repo.NewRepository(store, &fakeSource{count: questionCount})

	handler := NewWSHandler(repository, memory.NewProgressStore(), nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, repository, store
}

func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func readUntil(t *testing.T, conn *websocket.Conn, cond func(wsMessage) bool) wsMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if cond(msg) {
			return msg
		}
	}
	t.Fatal("timed out waiting for message")
	return wsMessage{}
}

func loadedState(msg wsMessage) bool {
	if msg.Type != "state" {
		return false
	}
	loading, _ := msg.Payload["loading"].(bool)
	attemptID, _ := msg.Payload["attemptId"].(string)
	return !loading && attemptID != ""
}

func TestWebSocketFullQuizRun(t *testing.T) {
	server, repository, store := newWSServer(t, 2)
	quiz, err := repository.CreateQuizByName(context.Background(), "socket quiz")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	conn := dialWS(t, server, "quizId="+quiz.ID)

	state := readUntil(t, conn, loadedState)
	attemptID := state.Payload["attemptId"].(string)

	questions, _ := repository.QuestionsForQuiz(context.Background(), quiz.ID)

	// Answer the first question correctly.
	writeIntent(t, conn, "select", map[string]any{"answer": questions[0].CorrectAnswer})
	writeIntent(t, conn, "submit", nil)
	msg := readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "state" && m.Payload["showResult"] == true
	})
	if msg.Payload["lastCorrect"] != true {
		t.Fatalf("expected correct feedback, got %+v", msg.Payload)
	}
	readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "event" && m.Payload["kind"] == "feedbackCorrect"
	})

	// Answer the second question wrong, then finish.
	writeIntent(t, conn, "next", nil)
	readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "state" && m.Payload["currentIndex"] == float64(1) && m.Payload["showResult"] == false
	})
	wrong := questions[1].Options[0]
	if wrong == questions[1].CorrectAnswer {
		wrong = questions[1].Options[1]
	}
	writeIntent(t, conn, "select", map[string]any{"answer": wrong})
	writeIntent(t, conn, "submit", nil)
	readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "state" && m.Payload["showResult"] == true
	})
	writeIntent(t, conn, "next", nil)

	nav := readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "event" && m.Payload["kind"] == "navigateToResult"
	})
	if nav.Payload["attemptId"] != attemptID {
		t.Fatalf("unexpected attempt in navigate event: %+v", nav.Payload)
	}

	attempt, err := store.AttemptByID(context.Background(), attemptID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !attempt.IsCompleted || attempt.TotalCorrect != 1 {
		t.Fatalf("expected completed attempt with 1 correct, got %+v", attempt)
	}
}

func TestWebSocketRequiresQuizID(t *testing.T) {
	server, _, _ := newWSServer(t, 1)
	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebSocketUnknownQuizReportsError(t *testing.T) {
	server, _, _ := newWSServer(t, 1)
	conn := dialWS(t, server, "quizId=missing")

	readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "event" && m.Payload["kind"] == "showError"
	})
}

func writeIntent(t *testing.T, conn *websocket.Conn, typ string, payload map[string]any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}
