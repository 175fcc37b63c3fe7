package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quiztrack-service/internal/domain"
	"quiztrack-service/internal/store"
)

// Repo is the slice of the repository the engine needs. Satisfied by
// *repo.Repository.
type Repo interface {
	QuizByID(ctx context.Context, quizID string) (domain.Quiz, error)
	QuestionsForQuiz(ctx context.Context, quizID string) ([]domain.Question, error)
	StartAttempt(ctx context.Context, quizID string) (domain.Attempt, error)
	AttemptByID(ctx context.Context, attemptID string) (domain.Attempt, error)
	AnswersForAttempt(ctx context.Context, attemptID string) ([]domain.Answer, error)
	RecordAnswer(ctx context.Context, attemptID string, question domain.Question, selected string, timeSpentSeconds int, wasTimedOut bool) (domain.Answer, error)
	CompleteAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
}

type command interface{}

type loadCmd struct{ quizID, attemptID string }
type selectCmd struct{ answer string }
type submitCmd struct{}
type nextCmd struct{}
type pauseCmd struct{}
type resumeCmd struct{}

// tickCmd decrements the countdown. Ticks from a superseded question carry a
// stale epoch and are dropped; epoch -1 marks a manual tick that always
// applies.
type tickCmd struct{ epoch int }

type loadedCmd struct {
	gen       int
	quiz      domain.Quiz
	questions []domain.Question
	attempt   domain.Attempt
	index     int
	remaining int
	outcomes  []Outcome
	err       error
}

type answerSavedCmd struct {
	gen    int
	answer domain.Answer
	err    error
}

type completedCmd struct {
	gen     int
	attempt domain.Attempt
	err     error
}

// progressOp is one write against the progress store. A dedicated goroutine
// applies them in order, so a clear posted after a save cannot lose.
type progressOp struct {
	attemptID string
	index     int
	remaining int
	clear     bool
}

// Engine runs one quiz attempt. A single goroutine consumes the command
// channel and is the only writer of the state; everything public just posts
// commands or reads snapshots.
type Engine struct {
	repo     Repo
	progress store.ProgressStore
	log      logrus.FieldLogger
	tick     time.Duration

	cmds  chan command
	saves chan progressOp
	done  chan struct{}
	once  sync.Once

	mu          sync.RWMutex
	state       State
	subscribers map[chan State]struct{}
	events      chan Event

	// gen invalidates in-flight store replies across loads; epoch does the
	// same for ticks across questions.
	gen        int
	epoch      int
	tickerStop chan struct{}
}

// NewEngine starts the engine goroutine. A zero tick disables the internal
// timer; callers then drive the countdown through Tick. A nil log falls back
// to the logrus standard logger.
func NewEngine(r Repo, progress store.ProgressStore, log logrus.FieldLogger, tick time.Duration) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		repo:        r,
		progress:    progress,
		log:         log,
		tick:        tick,
		cmds:        make(chan command, 32),
		saves:       make(chan progressOp, 16),
		done:        make(chan struct{}),
		subscribers: make(map[chan State]struct{}),
		events:      make(chan Event, 8),
	}
	go e.run()
	if progress != nil {
		go e.progressLoop()
	}
	return e
}

// Load starts a fresh attempt against quizID.
func (e *Engine) Load(quizID string) { e.post(loadCmd{quizID: quizID}) }

// ResumeAttempt picks an unfinished attempt back up, skipping questions that
// already have a recorded answer.
func (e *Engine) ResumeAttempt(quizID, attemptID string) {
	e.post(loadCmd{quizID: quizID, attemptID: attemptID})
}

// SelectAnswer highlights an option. It does not submit.
func (e *Engine) SelectAnswer(answer string) { e.post(selectCmd{answer: answer}) }

// Submit records the selected answer. Ignored when nothing is selected.
func (e *Engine) Submit() { e.post(submitCmd{}) }

// NextQuestion advances past the feedback screen, completing the attempt
// when the last question is done.
func (e *Engine) NextQuestion() { e.post(nextCmd{}) }

// Pause freezes the countdown and persists progress for resumption.
func (e *Engine) Pause() { e.post(pauseCmd{}) }

// Resume restarts a paused countdown.
func (e *Engine) Resume() { e.post(resumeCmd{}) }

// Tick advances the countdown by one second. Used by tests and by callers
// that run the engine without an internal timer.
func (e *Engine) Tick() { e.post(tickCmd{epoch: -1}) }

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Subscribe delivers the current state immediately and a fresh snapshot
// after every transition. Slow consumers lose intermediate snapshots, never
// the latest one. The cancel func releases the subscription.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	initial := e.state
	e.mu.Unlock()

	ch <- initial

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// Events exposes the one-shot signal channel.
func (e *Engine) Events() <-chan Event { return e.events }

// Close stops the engine goroutine and its timer.
func (e *Engine) Close() { e.once.Do(func() { close(e.done) }) }

func (e *Engine) post(c command) {
	select {
	case e.cmds <- c:
	case <-e.done:
	}
}

func (e *Engine) run() {
	for {
		select {
		case c := <-e.cmds:
			e.handle(c)
		case <-e.done:
			e.mu.Lock()
			e.stopTickerLocked()
			e.mu.Unlock()
			return
		}
	}
}

func (e *Engine) handle(c command) {
	e.mu.Lock()
	switch c := c.(type) {
	case loadCmd:
		e.handleLoadLocked(c)
	case loadedCmd:
		e.handleLoadedLocked(c)
	case selectCmd:
		e.handleSelectLocked(c)
	case submitCmd:
		e.submitLocked(false)
	case answerSavedCmd:
		e.handleAnswerSavedLocked(c)
	case nextCmd:
		e.handleNextLocked()
	case completedCmd:
		e.handleCompletedLocked(c)
	case tickCmd:
		e.handleTickLocked(c)
	case pauseCmd:
		e.handlePauseLocked()
	case resumeCmd:
		e.handleResumeLocked()
	}
	snapshot := e.state
	e.broadcastLocked(snapshot)
	e.mu.Unlock()
}

func (e *Engine) handleLoadLocked(c loadCmd) {
	e.gen++
	e.stopTickerLocked()
	e.state = State{QuizID: c.quizID, Loading: true}
	go e.fetch(e.gen, c.quizID, c.attemptID)
}

func (e *Engine) fetch(gen int, quizID, attemptID string) {
	ctx := context.Background()

	quiz, err := e.repo.QuizByID(ctx, quizID)
	if err != nil {
		e.post(loadedCmd{gen: gen, err: err})
		return
	}
	questions, err := e.repo.QuestionsForQuiz(ctx, quizID)
	if err != nil {
		e.post(loadedCmd{gen: gen, err: err})
		return
	}

	remaining := quiz.TimePerQuestionSeconds
	index := 0
	var (
		attempt  domain.Attempt
		outcomes []Outcome
	)
	if attemptID != "" {
		attempt, err = e.repo.AttemptByID(ctx, attemptID)
		if err != nil {
			e.post(loadedCmd{gen: gen, err: err})
			return
		}
		answers, err := e.repo.AnswersForAttempt(ctx, attemptID)
		if err != nil {
			e.post(loadedCmd{gen: gen, err: err})
			return
		}
		for _, a := range answers {
			outcomes = append(outcomes, Outcome{
				QuestionID: a.QuestionID,
				Selected:   a.SelectedAnswer,
				Correct:    a.IsCorrect,
				TimedOut:   a.WasTimedOut,
			})
		}
		index = len(answers)
		if e.progress != nil {
			if i, r, ok, err := e.progress.LoadProgress(ctx, attemptID); err == nil && ok {
				index, remaining = i, r
			}
		}
	} else {
		attempt, err = e.repo.StartAttempt(ctx, quizID)
		if err != nil {
			e.post(loadedCmd{gen: gen, err: err})
			return
		}
	}

	e.post(loadedCmd{
		gen:       gen,
		quiz:      quiz,
		questions: questions,
		attempt:   attempt,
		index:     index,
		remaining: remaining,
		outcomes:  outcomes,
	})
}

func (e *Engine) handleLoadedLocked(c loadedCmd) {
	if c.gen != e.gen {
		return
	}
	e.state.Loading = false
	if c.err != nil {
		e.state.Err = c.err
		e.emit(Event{Kind: EventShowError, Err: c.err})
		return
	}

	total := c.quiz.TimePerQuestionSeconds
	if total <= 0 {
		total = domain.DefaultQuestionTimeSeconds
	}
	e.state.AttemptID = c.attempt.ID
	e.state.Questions = c.questions
	e.state.Outcomes = c.outcomes
	e.state.TotalTime = total
	e.state.CurrentIndex = c.index

	if c.index >= len(c.questions) {
		// Every question already answered; only completion is left.
		e.state.Submitting = true
		go e.complete(e.gen, c.attempt.ID)
		return
	}

	remaining := c.remaining
	if remaining <= 0 || remaining > total {
		remaining = total
	}
	e.startQuestionLocked(remaining)
}

func (e *Engine) handleSelectLocked(c selectCmd) {
	if e.state.Loading || e.state.Submitting || e.state.ShowResult || e.state.Completed {
		return
	}
	e.state.SelectedAnswer = c.answer
}

// submitLocked records the current selection. A timed-out submission goes
// through even with nothing selected and is incorrect regardless of what was
// picked. Expiry is re-checked here so a submission arriving after the clock
// hit zero, a retry after a failed timeout save included, counts as timed
// out no matter which path posted it.
func (e *Engine) submitLocked(timedOut bool) {
	if e.state.Loading || e.state.Submitting || e.state.ShowResult || e.state.Completed {
		return
	}
	timedOut = timedOut || e.state.TimeRemaining <= 0
	if !timedOut && e.state.SelectedAnswer == "" {
		return
	}
	question, ok := e.state.CurrentQuestion()
	if !ok {
		return
	}

	e.state.Submitting = true
	e.state.Err = nil
	e.stopTickerLocked()

	timeSpent := e.state.TotalTime - e.state.TimeRemaining
	go func(gen int, attemptID, selected string, q domain.Question) {
		answer, err := e.repo.RecordAnswer(context.Background(), attemptID, q, selected, timeSpent, timedOut)
		e.post(answerSavedCmd{gen: gen, answer: answer, err: err})
	}(e.gen, e.state.AttemptID, e.state.SelectedAnswer, question)
}

func (e *Engine) handleAnswerSavedLocked(c answerSavedCmd) {
	if c.gen != e.gen {
		return
	}
	e.state.Submitting = false
	if c.err != nil {
		// Stay on the question so the user can retry; restart the
		// countdown from where it stopped.
		e.state.Err = c.err
		e.log.WithError(c.err).Warn("answer save failed")
		e.emit(Event{Kind: EventShowError, Err: c.err})
		if e.state.TimeRemaining > 0 && !e.state.Paused {
			e.epoch++
			e.startTickerLocked(e.epoch)
		}
		return
	}

	e.state.Outcomes = append(e.state.Outcomes, Outcome{
		QuestionID: c.answer.QuestionID,
		Selected:   c.answer.SelectedAnswer,
		Correct:    c.answer.IsCorrect,
		TimedOut:   c.answer.WasTimedOut,
	})
	e.state.ShowResult = true
	e.state.LastCorrect = c.answer.IsCorrect
	if c.answer.IsCorrect {
		e.emit(Event{Kind: EventFeedbackCorrect})
	} else {
		e.emit(Event{Kind: EventFeedbackIncorrect})
	}
	e.saveProgress(e.state.AttemptID, e.state.CurrentIndex+1, e.state.TotalTime)
}

func (e *Engine) handleNextLocked() {
	if e.state.Loading || e.state.Submitting || e.state.Completed || !e.state.ShowResult {
		return
	}
	if e.state.CurrentIndex+1 < len(e.state.Questions) {
		e.state.CurrentIndex++
		e.startQuestionLocked(e.state.TotalTime)
		return
	}

	e.state.Submitting = true
	e.state.Err = nil
	go e.complete(e.gen, e.state.AttemptID)
}

func (e *Engine) complete(gen int, attemptID string) {
	attempt, err := e.repo.CompleteAttempt(context.Background(), attemptID)
	e.post(completedCmd{gen: gen, attempt: attempt, err: err})
}

func (e *Engine) handleCompletedLocked(c completedCmd) {
	if c.gen != e.gen {
		return
	}
	e.state.Submitting = false
	if c.err != nil {
		// ShowResult stays set so NextQuestion retries completion.
		e.state.Err = c.err
		e.log.WithError(c.err).Warn("attempt completion failed")
		e.emit(Event{Kind: EventShowError, Err: c.err})
		return
	}

	e.state.Completed = true
	e.state.ShowResult = false
	e.stopTickerLocked()
	e.postProgress(progressOp{attemptID: c.attempt.ID, clear: true})
	e.emit(Event{Kind: EventNavigateToResult, AttemptID: c.attempt.ID})
}

func (e *Engine) handleTickLocked(c tickCmd) {
	if c.epoch != -1 && c.epoch != e.epoch {
		return
	}
	if e.state.Loading || e.state.Submitting || e.state.ShowResult || e.state.Paused || e.state.Completed {
		return
	}
	if e.state.TimeRemaining <= 0 {
		return
	}
	e.state.TimeRemaining--
	e.saveProgress(e.state.AttemptID, e.state.CurrentIndex, e.state.TimeRemaining)
	if e.state.TimeRemaining == 0 {
		e.submitLocked(true)
	}
}

func (e *Engine) handlePauseLocked() {
	if e.state.Loading || e.state.Completed || e.state.Paused {
		return
	}
	e.state.Paused = true
	e.stopTickerLocked()
	e.saveProgress(e.state.AttemptID, e.state.CurrentIndex, e.state.TimeRemaining)
}

func (e *Engine) handleResumeLocked() {
	if !e.state.Paused {
		return
	}
	e.state.Paused = false
	if !e.state.ShowResult && !e.state.Submitting && !e.state.Completed {
		e.epoch++
		e.startTickerLocked(e.epoch)
	}
}

// startQuestionLocked resets the per-question fields and rearms the timer.
// Bumping the epoch first guarantees at most one live countdown.
func (e *Engine) startQuestionLocked(remaining int) {
	e.state.SelectedAnswer = ""
	e.state.ShowResult = false
	e.state.Err = nil
	e.state.TimeRemaining = remaining
	e.epoch++
	e.startTickerLocked(e.epoch)
}

func (e *Engine) startTickerLocked(epoch int) {
	e.stopTickerLocked()
	if e.tick <= 0 {
		return
	}
	stop := make(chan struct{})
	e.tickerStop = stop
	go func() {
		ticker := time.NewTicker(e.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.post(tickCmd{epoch: epoch})
			case <-stop:
				return
			case <-e.done:
				return
			}
		}
	}()
}

func (e *Engine) stopTickerLocked() {
	if e.tickerStop != nil {
		close(e.tickerStop)
		e.tickerStop = nil
	}
}

func (e *Engine) saveProgress(attemptID string, index, remaining int) {
	e.postProgress(progressOp{attemptID: attemptID, index: index, remaining: remaining})
}

// postProgress enqueues a progress write without blocking the actor loop.
// Under backpressure the oldest pending save is dropped; a newer write for
// the same attempt supersedes it anyway.
func (e *Engine) postProgress(op progressOp) {
	if e.progress == nil || op.attemptID == "" {
		return
	}
	select {
	case e.saves <- op:
	default:
		select {
		case <-e.saves:
		default:
		}
		select {
		case e.saves <- op:
		default:
		}
	}
}

func (e *Engine) progressLoop() {
	for {
		select {
		case op := <-e.saves:
			var err error
			if op.clear {
				err = e.progress.ClearProgress(context.Background(), op.attemptID)
			} else {
				err = e.progress.SaveProgress(context.Background(), op.attemptID, op.index, op.remaining)
			}
			if err != nil {
				e.log.WithError(err).Debug("progress write failed")
			}
		case <-e.done:
			return
		}
	}
}

func (e *Engine) broadcastLocked(snapshot State) {
	for ch := range e.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		select {
		case <-e.events:
		default:
		}
		select {
		case e.events <- ev:
		default:
		}
	}
}
