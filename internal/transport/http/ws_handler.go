// Package http exposes the service over HTTP: a JSON API for quiz management
// and the teacher dashboard, and a WebSocket endpoint that runs one quiz
// session per connection.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiztrack-service/internal/repo"
	"quiztrack-service/internal/session"
	"quiztrack-service/internal/store"
)

type WSHandler struct {
	repo     *repo.Repository
	progress store.ProgressStore
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	// tick is the countdown interval, one second in production. Tests may
	// shorten it.
	tick time.Duration
}

func NewWSHandler(r *repo.Repository, progress store.ProgressStore, log logrus.FieldLogger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		repo:     r,
		progress: progress,
		log:      log,
		tick:     time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type statePayload struct {
	session.State
	Error string `json:"error,omitempty"`
}

type eventPayload struct {
	Kind      string `json:"kind"`
	AttemptID string `json:"attemptId,omitempty"`
	Message   string `json:"message,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func eventKindName(kind session.EventKind) string {
	switch kind {
	case session.EventNavigateToResult:
		return "navigateToResult"
	case session.EventShowError:
		return "showError"
	case session.EventFeedbackCorrect:
		return "feedbackCorrect"
	case session.EventFeedbackIncorrect:
		return "feedbackIncorrect"
	default:
		return "unknown"
	}
}

// ServeWS upgrades the request and drives one quiz session over the socket.
// quizId is required; attemptId resumes an unfinished attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	attemptID := r.URL.Query().Get("attemptId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	engine := session.NewEngine(h.repo, h.progress, h.log, h.tick)
	defer engine.Close()

	states, cancel := engine.Subscribe()
	defer cancel()

	send := make(chan any, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpsDone := make(chan struct{})

	// Single writer goroutine; gorilla connections do not allow concurrent
	// writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(pumpsDone)
		for {
			select {
			case state, ok := <-states:
				if !ok {
					return
				}
				payload := statePayload{State: state}
				if state.Err != nil {
					payload.Error = state.Err.Error()
				}
				select {
				case send <- outboundMessage[statePayload]{Type: "state", Payload: payload}:
				case <-closeSignals:
					return
				}
			case ev := <-engine.Events():
				payload := eventPayload{Kind: eventKindName(ev.Kind), AttemptID: ev.AttemptID}
				if ev.Err != nil {
					payload.Message = ev.Err.Error()
				}
				select {
				case send <- outboundMessage[eventPayload]{Type: "event", Payload: payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if attemptID != "" {
		engine.ResumeAttempt(quizID, attemptID)
	} else {
		engine.Load(quizID)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}}
				continue
			}
			engine.SelectAnswer(payload.Answer)
		case "submit":
			engine.Submit()
		case "next":
			engine.NextQuestion()
		case "pause":
			engine.Pause()
		case "resume":
			engine.Resume()
		default:
			send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-pumpsDone
	close(send)
	<-writerDone
}
