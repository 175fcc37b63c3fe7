package store

import "sync"

// Topic keys for Hub notifications.
func TopicQuizzes() string                { return "quizzes" }
func TopicQuestions(quizID string) string { return "questions:" + quizID }
func TopicAttempts(quizID string) string  { return "attempts:" + quizID }
func TopicAnswers(attemptID string) string {
	return "answers:" + attemptID
}

// Hub fans write notifications out to query subscriptions. Stores call
// Notify after each successful write with every topic the write touched;
// each subscriber re-runs its query and pushes the fresh result set.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func()
}

// Subscribe registers fire under topic and returns a cancel func. fire is
// invoked synchronously from Notify; it must not block.
func (h *Hub) Subscribe(topic string, fire func()) func() {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[string]map[int]func())
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]func())
	}
	id := h.nextID
	h.nextID++
	h.subs[topic][id] = fire
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs[topic], id)
		h.mu.Unlock()
	}
}

// Notify fires every subscription registered under the given topics.
func (h *Hub) Notify(topics ...string) {
	h.mu.RLock()
	var fires []func()
	for _, topic := range topics {
		for _, fire := range h.subs[topic] {
			fires = append(fires, fire)
		}
	}
	h.mu.RUnlock()
	for _, fire := range fires {
		fire()
	}
}

// Watch wires a query to a Hub topic: the subscriber channel receives the
// current result set immediately and a fresh one after every Notify. Results
// are pushed with drop-stale semantics so a slow reader only ever misses
// intermediate snapshots, never the latest.
func Watch[T any](hub *Hub, topic string, query func() ([]T, error)) (<-chan []T, func()) {
	ch := make(chan []T, 8)

	// Serializes concurrent Notify calls so the drain-then-send below can
	// never block two pushers against a full buffer.
	var mu sync.Mutex
	push := func() {
		mu.Lock()
		defer mu.Unlock()
		result, err := query()
		if err != nil {
			return
		}
		select {
		case ch <- result:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- result
		}
	}

	cancel := hub.Subscribe(topic, push)
	push()
	return ch, cancel
}
