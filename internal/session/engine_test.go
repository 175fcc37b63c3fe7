package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiztrack-service/internal/domain"
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

type fixture struct {
	store      *memory.Store
	repository *repo.Repository
	quiz       domain.Quiz
}

func newFixture(t *testing.T, questionCount int) *fixture {
	t.Helper()
	s := memory.NewStore()
	r := repo.NewRepository(s, &fakeSource{count: questionCount})
	quiz, err := r.CreateQuizByName(context.Background(), "engine test quiz")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return &fixture{store: s, repository: r, quiz: quiz}
}

func waitState(t *testing.T, e *Engine, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := e.Snapshot(); cond(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; state: %+v", what, e.Snapshot())
	return State{}
}

func waitEvent(t *testing.T, e *Engine, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %d", kind)
		}
	}
}

func correctOption(t *testing.T, s State) string {
	t.Helper()
	q, ok := s.CurrentQuestion()
	if !ok {
		t.Fatalf("no current question: %+v", s)
	}
	return q.CorrectAnswer
}

func wrongOption(t *testing.T, s State) string {
	t.Helper()
	q, ok := s.CurrentQuestion()
	if !ok {
		t.Fatalf("no current question: %+v", s)
	}
	for _, opt := range q.Options {
		if opt != q.CorrectAnswer {
			return opt
		}
	}
	t.Fatalf("question has no wrong option: %+v", q)
	return ""
}

func TestLoadStartsFirstQuestion(t *testing.T) {
	f := newFixture(t, 2)
	e := NewEngine(f.repository, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	if len(s.Questions) != 2 || s.CurrentIndex != 0 {
		t.Fatalf("unexpected state after load: %+v", s)
	}
	if s.TimeRemaining != domain.DefaultQuestionTimeSeconds || s.TotalTime != domain.DefaultQuestionTimeSeconds {
		t.Fatalf("expected full countdown, got %d/%d", s.TimeRemaining, s.TotalTime)
	}

	// The attempt must already be persisted and open.
	attempt, err := f.store.AttemptByID(context.Background(), s.AttemptID)
	if err != nil || attempt.IsCompleted {
		t.Fatalf("expected open attempt, got %+v err=%v", attempt, err)
	}
}

func TestLoadUnknownQuizSurfacesError(t *testing.T) {
	f := newFixture(t, 2)
	e := NewEngine(f.repository, nil, nil, 0)
	defer e.Close()

	e.Load("missing")
	s := waitState(t, e, "load error", func(s State) bool { return !s.Loading && s.Err != nil })
	if !errors.Is(s.Err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", s.Err)
	}
	ev := waitEvent(t, e, EventShowError)
	if !errors.Is(ev.Err, domain.ErrQuizNotFound) {
		t.Fatalf("unexpected event error: %v", ev.Err)
	}
}

func TestFullRunScoresOneOfTwo(t *testing.T) {
	f := newFixture(t, 2)
	e := NewEngine(f.repository, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })
	attemptID := s.AttemptID

	// Question 1: correct.
	e.SelectAnswer(correctOption(t, s))
	e.Submit()
	s = waitState(t, e, "first feedback", func(s State) bool { return s.ShowResult })
	if !s.LastCorrect {
		t.Fatalf("expected correct feedback: %+v", s)
	}
	waitEvent(t, e, EventFeedbackCorrect)

	// Question 2: wrong.
	e.NextQuestion()
	s = waitState(t, e, "second question", func(s State) bool { return s.CurrentIndex == 1 && !s.ShowResult })
	if s.SelectedAnswer != "" || s.TimeRemaining != s.TotalTime {
		t.Fatalf("question state must reset on advance: %+v", s)
	}
	e.SelectAnswer(wrongOption(t, s))
	e.Submit()
	s = waitState(t, e, "second feedback", func(s State) bool { return s.ShowResult })
	if s.LastCorrect {
		t.Fatalf("expected incorrect feedback: %+v", s)
	}
	waitEvent(t, e, EventFeedbackIncorrect)

	// Advancing past the last question completes the attempt.
	e.NextQuestion()
	s = waitState(t, e, "completion", func(s State) bool { return s.Completed })
	if s.CorrectCount() != 1 {
		t.Fatalf("expected 1 correct outcome, got %d", s.CorrectCount())
	}
	ev := waitEvent(t, e, EventNavigateToResult)
	if ev.AttemptID != attemptID {
		t.Fatalf("unexpected attempt id in event: %q", ev.AttemptID)
	}

	attempt, err := f.store.AttemptByID(context.Background(), attemptID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !attempt.IsCompleted || attempt.TotalCorrect != 1 || attempt.TotalQuestions != 2 {
		t.Fatalf("stored attempt does not match the run: %+v", attempt)
	}
	answers, _ := f.store.AnswersForAttempt(context.Background(), attemptID)
	if len(answers) != 2 {
		t.Fatalf("expected 2 stored answers, got %d", len(answers))
	}
}

func TestCountdownExpiryAutoSubmits(t *testing.T) {
	f := newFixture(t, 1)
	e := NewEngine(f.repository, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	for i := 0; i < domain.DefaultQuestionTimeSeconds; i++ {
		e.Tick()
	}
	s := waitState(t, e, "timeout feedback", func(s State) bool { return s.ShowResult })
	if s.LastCorrect || s.TimeRemaining != 0 {
		t.Fatalf("expected timed-out incorrect feedback: %+v", s)
	}

	answers, _ := f.store.AnswersForAttempt(context.Background(), s.AttemptID)
	if len(answers) != 1 {
		t.Fatalf("expected exactly one answer, got %d", len(answers))
	}
	if !answers[0].WasTimedOut || answers[0].SelectedAnswer != "" || answers[0].IsCorrect {
		t.Fatalf("unexpected timeout answer: %+v", answers[0])
	}
}

func TestSelectionAtTimeoutIsStillIncorrect(t *testing.T) {
	f := newFixture(t, 1)
	e := NewEngine(f.repository, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	// Pick the right answer but never submit; let the clock run out.
	e.SelectAnswer(correctOption(t, s))
	for i := 0; i < domain.DefaultQuestionTimeSeconds; i++ {
		e.Tick()
	}
	s = waitState(t, e, "timeout feedback", func(s State) bool { return s.ShowResult })
	if s.LastCorrect {
		t.Fatalf("a timed-out answer can never be correct: %+v", s)
	}

	answers, _ := f.store.AnswersForAttempt(context.Background(), s.AttemptID)
	if len(answers) != 1 || answers[0].IsCorrect || !answers[0].WasTimedOut {
		t.Fatalf("unexpected stored answer: %+v", answers)
	}
	if answers[0].SelectedAnswer == "" {
		t.Fatalf("the selection must still be recorded: %+v", answers[0])
	}
}

func TestSubmitWithoutSelectionIsIgnored(t *testing.T) {
	f := newFixture(t, 1)
	e := NewEngine(f.repository, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	e.Submit()
	e.Tick() // prove the engine is still responsive afterwards
	waitState(t, e, "tick", func(s State) bool { return s.TimeRemaining == s.TotalTime-1 })

	answers, _ := f.store.AnswersForAttempt(context.Background(), s.AttemptID)
	if len(answers) != 0 {
		t.Fatalf("nothing should have been recorded: %+v", answers)
	}
}

type gatedRepo struct {
	Repo
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedRepo) gate(quizID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	g.gates[quizID] = ch
	return ch
}

func (g *gatedRepo) QuizByID(ctx context.Context, quizID string) (domain.Quiz, error) {
	g.mu.Lock()
	gate := g.gates[quizID]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return g.Repo.QuizByID(ctx, quizID)
}

func TestStaleLoadResultIsDiscarded(t *testing.T) {
	s := memory.NewStore()
	r := repo.NewRepository(s, &fakeSource{count: 1})
	ctx := context.Background()
	quizA, err := r.CreateQuizByName(ctx, "first quiz")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	quizB, err := r.CreateQuizByName(ctx, "second quiz")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	gated := &gatedRepo{Repo: r}
	slow := gated.gate(quizA.ID)

	e := NewEngine(gated, nil, nil, 0)
	defer e.Close()

	e.Load(quizA.ID)
	e.Load(quizB.ID)
	waitState(t, e, "second load", func(s State) bool {
		return s.QuizID == quizB.ID && !s.Loading && s.AttemptID != ""
	})

	// Release the first load late; its result must be dropped.
	close(slow)
	time.Sleep(50 * time.Millisecond)
	if got := e.Snapshot(); got.QuizID != quizB.ID || got.Loading {
		t.Fatalf("stale load overwrote the active run: %+v", got)
	}
}

type flakyRepo struct {
	Repo
	mu        sync.Mutex
	failSaves int
}

func (f *flakyRepo) RecordAnswer(ctx context.Context, attemptID string, question domain.Question, selected string, timeSpentSeconds int, wasTimedOut bool) (domain.Answer, error) {
	f.mu.Lock()
	if f.failSaves > 0 {
		f.failSaves--
		f.mu.Unlock()
		return domain.Answer{}, &domain.StorageError{Message: "disk full"}
	}
	f.mu.Unlock()
	return f.Repo.RecordAnswer(ctx, attemptID, question, selected, timeSpentSeconds, wasTimedOut)
}

func TestSaveFailureKeepsQuestionRetryable(t *testing.T) {
	f := newFixture(t, 1)
	flaky := &flakyRepo{Repo: f.repository, failSaves: 1}
	e := NewEngine(flaky, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	e.SelectAnswer(correctOption(t, s))
	e.Submit()
	s = waitState(t, e, "save failure", func(s State) bool { return !s.Submitting && s.Err != nil })
	if s.ShowResult {
		t.Fatalf("failed save must not show feedback: %+v", s)
	}
	waitEvent(t, e, EventShowError)

	// The selection survives, so a retry goes through.
	e.Submit()
	s = waitState(t, e, "retry feedback", func(s State) bool { return s.ShowResult })
	if !s.LastCorrect {
		t.Fatalf("expected the retried answer to score: %+v", s)
	}
}

func TestCompletionFailureIsRetriable(t *testing.T) {
	f := newFixture(t, 1)
	broken := &brokenCompleteRepo{Repo: f.repository, failures: 1}
	e := NewEngine(broken, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	e.SelectAnswer(correctOption(t, s))
	e.Submit()
	waitState(t, e, "feedback", func(s State) bool { return s.ShowResult })

	e.NextQuestion()
	s = waitState(t, e, "completion failure", func(s State) bool { return !s.Submitting && s.Err != nil })
	if s.Completed || !s.ShowResult {
		t.Fatalf("failed completion must stay on the feedback screen: %+v", s)
	}

	e.NextQuestion()
	waitState(t, e, "completion retry", func(s State) bool { return s.Completed })
}

type brokenCompleteRepo struct {
	Repo
	mu       sync.Mutex
	failures int
}

func (b *brokenCompleteRepo) CompleteAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return domain.Attempt{}, &domain.StorageError{Message: "disk full"}
	}
	b.mu.Unlock()
	return b.Repo.CompleteAttempt(ctx, attemptID)
}

func TestPauseFreezesCountdownAndSavesProgress(t *testing.T) {
	f := newFixture(t, 1)
	progress := memory.NewProgressStore()
	e := NewEngine(f.repository, progress, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	e.Tick()
	e.Tick()
	waitState(t, e, "ticks", func(s State) bool { return s.TimeRemaining == s.TotalTime-2 })

	e.Pause()
	s := waitState(t, e, "pause", func(s State) bool { return s.Paused })
	e.Tick()
	time.Sleep(20 * time.Millisecond)
	if got := e.Snapshot(); got.TimeRemaining != s.TimeRemaining {
		t.Fatalf("countdown ran while paused: %d -> %d", s.TimeRemaining, got.TimeRemaining)
	}

	waitProgressValue(t, progress, s.AttemptID, 0, s.TimeRemaining)

	e.Resume()
	e.Tick()
	waitState(t, e, "tick after resume", func(got State) bool { return got.TimeRemaining == s.TimeRemaining-1 })
}

func waitProgress(t *testing.T, p *memory.ProgressStore, attemptID string) (int, int, bool, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		index, remaining, ok, err := p.LoadProgress(context.Background(), attemptID)
		if err != nil || ok {
			return index, remaining, ok, err
		}
		time.Sleep(2 * time.Millisecond)
	}
	return 0, 0, false, nil
}

func waitProgressValue(t *testing.T, p *memory.ProgressStore, attemptID string, wantIndex, wantRemaining int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var index, remaining int
	var ok bool
	for time.Now().Before(deadline) {
		var err error
		index, remaining, ok, err = p.LoadProgress(context.Background(), attemptID)
		if err != nil {
			t.Fatalf("load progress: %v", err)
		}
		if ok && index == wantIndex && remaining == wantRemaining {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected progress index=%d remaining=%d, got index=%d remaining=%d ok=%v", wantIndex, wantRemaining, index, remaining, ok)
}

func TestTickPersistsRemainingTime(t *testing.T) {
	f := newFixture(t, 1)
	progress := memory.NewProgressStore()
	e := NewEngine(f.repository, progress, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	// No pause, no advance: the countdown alone must keep the saved
	// progress current, or a dropped connection resumes with a full clock.
	e.Tick()
	waitState(t, e, "tick", func(got State) bool { return got.TimeRemaining == s.TotalTime-1 })
	waitProgressValue(t, progress, s.AttemptID, 0, s.TotalTime-1)

	e.Tick()
	waitState(t, e, "second tick", func(got State) bool { return got.TimeRemaining == s.TotalTime-2 })
	waitProgressValue(t, progress, s.AttemptID, 0, s.TotalTime-2)
}

func TestTimeoutRetryStaysTimedOut(t *testing.T) {
	f := newFixture(t, 1)
	flaky := &flakyRepo{Repo: f.repository, failSaves: 1}
	e := NewEngine(flaky, nil, nil, 0)
	defer e.Close()

	e.Load(f.quiz.ID)
	s := waitState(t, e, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	// Pick the right answer, then let the clock run out; the auto-submit
	// fails to save.
	e.SelectAnswer(correctOption(t, s))
	for i := 0; i < domain.DefaultQuestionTimeSeconds; i++ {
		e.Tick()
	}
	s = waitState(t, e, "save failure", func(s State) bool { return !s.Submitting && s.Err != nil })
	if s.ShowResult || s.TimeRemaining != 0 {
		t.Fatalf("unexpected state after failed timeout save: %+v", s)
	}

	// The retry lands after expiry, so it must still count as timed out
	// even though it arrives as an ordinary submit.
	e.Submit()
	s = waitState(t, e, "retry feedback", func(s State) bool { return s.ShowResult })
	if s.LastCorrect {
		t.Fatalf("an answer recorded after expiry can never be correct: %+v", s)
	}

	answers, _ := f.store.AnswersForAttempt(context.Background(), s.AttemptID)
	if len(answers) != 1 {
		t.Fatalf("expected exactly one answer, got %d", len(answers))
	}
	if !answers[0].WasTimedOut || answers[0].IsCorrect {
		t.Fatalf("unexpected stored answer: %+v", answers[0])
	}
}

func TestResumeAttemptSkipsAnsweredQuestions(t *testing.T) {
	f := newFixture(t, 3)
	progress := memory.NewProgressStore()

	first := NewEngine(f.repository, progress, nil, 0)
	first.Load(f.quiz.ID)
	s := waitState(t, first, "load", func(s State) bool { return !s.Loading && s.AttemptID != "" })
	attemptID := s.AttemptID

	first.SelectAnswer(correctOption(t, s))
	first.Submit()
	waitState(t, first, "feedback", func(s State) bool { return s.ShowResult })
	first.NextQuestion()
	waitState(t, first, "second question", func(s State) bool { return s.CurrentIndex == 1 })
	first.Pause()
	waitState(t, first, "pause", func(s State) bool { return s.Paused })
	if _, _, ok, _ := waitProgress(t, progress, attemptID); !ok {
		t.Fatal("expected progress saved before shutdown")
	}
	first.Close()

	second := NewEngine(f.repository, progress, nil, 0)
	defer second.Close()
	second.ResumeAttempt(f.quiz.ID, attemptID)
	s = waitState(t, second, "resume", func(s State) bool { return !s.Loading && s.AttemptID != "" })

	if s.AttemptID != attemptID {
		t.Fatalf("resume must reuse the attempt, got %q", s.AttemptID)
	}
	if s.CurrentIndex != 1 || len(s.Outcomes) != 1 || !s.Outcomes[0].Correct {
		t.Fatalf("resume must pick up after the answered question: %+v", s)
	}
}

func TestTimerReplacedNotStacked(t *testing.T) {
	f := newFixture(t, 1)
	e := NewEngine(f.repository, nil, nil, time.Millisecond)
	defer e.Close()

	e.mu.Lock()
	e.startTickerLocked(1)
	first := e.tickerStop
	e.startTickerLocked(2)
	second := e.tickerStop
	e.mu.Unlock()

	if first == second {
		t.Fatal("expected a fresh ticker per question")
	}
	select {
	case <-first:
	default:
		t.Fatal("starting a ticker must stop the previous one")
	}
	select {
	case <-second:
		t.Fatal("the new ticker must still be live")
	default:
	}
}

func TestInternalTimerDrivesCountdown(t *testing.T) {
	f := newFixture(t, 1)
	e := NewEngine(f.repository, nil, nil, 5*time.Millisecond)
	defer e.Close()

	e.Load(f.quiz.ID)
	waitState(t, e, "countdown", func(s State) bool {
		return !s.Loading && s.TimeRemaining < s.TotalTime && s.TimeRemaining > 0
	})
}

func TestSubscribeDeliversTransitions(t *testing.T) {
	f := newFixture(t, 1)
	e := NewEngine(f.repository, nil, nil, 0)
	defer e.Close()

	ch, cancel := e.Subscribe()
	defer cancel()

	if initial := <-ch; initial.AttemptID != "" || initial.Loading {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	e.Load(f.quiz.ID)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if !s.Loading && s.AttemptID != "" {
				return
			}
		case <-deadline:
			t.Fatal("no loaded snapshot delivered")
		}
	}
}
