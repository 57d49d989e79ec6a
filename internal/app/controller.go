package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"faculty-quiz-service/internal/domain"
	"faculty-quiz-service/internal/timer"
)

// ErrControllerClosed is returned to a start that was still loading when the controller shut down.
var ErrControllerClosed = errors.New("quiz controller closed")

// ControllerConfig holds the per-session knobs of a Controller.
type ControllerConfig struct {
	Duration         time.Duration
	WarningThreshold time.Duration
	// TickInterval is the countdown display cadence; a negative value disables the tick loop.
	TickInterval    time.Duration
	RequireIdentity bool
	SaveTimeout     time.Duration
}

// DefaultQuizDuration is the time limit of one session.
const DefaultQuizDuration = 21 * time.Minute

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.Duration <= 0 {
		c.Duration = DefaultQuizDuration
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = timer.DefaultWarningThreshold
	}
	if c.TickInterval == 0 {
		c.TickInterval = timer.DefaultTickInterval
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 10 * time.Second
	}
	return c
}

// ControllerDeps are the collaborators of a Controller.
type ControllerDeps struct {
	DeviceID   string
	Source     QuestionSource
	Attempts   AttemptRecorder
	Identities *IdentityStore
	Logger     *zap.Logger
	Now        func() time.Time
	// OnIdle runs on its own goroutine whenever the controller settles with nobody attached
	// and nothing in flight, so its owner can drop it.
	OnIdle func()
}

// Controller drives one device through IDLE -> LOADING -> ACTIVE -> FINISHED.
type Controller struct {
	deviceID   string
	source     QuestionSource
	attempts   AttemptRecorder
	identities *IdentityStore
	log        *zap.Logger
	now        func() time.Time
	onIdle     func()
	cfg        ControllerConfig

	mu          sync.Mutex
	state       domain.SessionState
	identity    string
	generation  uint64
	session     *activeSession
	result      *domain.Result
	lastError   string
	saving      int
	saveWarning string
	subscribers map[chan domain.SessionView]struct{}

	wg sync.WaitGroup
}

type activeSession struct {
	generation uint64
	batch      []domain.Question
	index      map[string]int
	position   int
	answers    domain.AnswerSet
	startedAt  time.Time
	countdown  *timer.Countdown
	cancel     context.CancelFunc
}

func NewController(deps ControllerDeps, cfg ControllerConfig) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		deviceID:    deps.DeviceID,
		source:      deps.Source,
		attempts:    deps.Attempts,
		identities:  deps.Identities,
		log:         logger.With(zap.String("device_id", deps.DeviceID)),
		now:         now,
		onIdle:      deps.OnIdle,
		cfg:         cfg.withDefaults(),
		state:       domain.StateIdle,
		subscribers: make(map[chan domain.SessionView]struct{}),
	}
}

// DeviceID identifies the device owning this controller.
func (c *Controller) DeviceID() string {
	return c.deviceID
}

// LoadIdentity reads the remembered identity and makes it the default for the next start.
func (c *Controller) LoadIdentity(ctx context.Context) error {
	if c.identities == nil {
		return nil
	}
	identity, err := c.identities.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.identity == "" {
		c.identity = identity
	}
	c.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start requests a new batch and, on success, activates a fresh session with a new deadline.
// Any session in progress is discarded. On failure the controller returns to IDLE with no
// session state and the error is a *domain.GenerationError.
func (c *Controller) Start(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)

	c.mu.Lock()
	if c.state == domain.StateLoading {
		c.mu.Unlock()
		return domain.ErrLoadInProgress
	}
	if identity == "" {
		identity = c.identity
	}
	if c.cfg.RequireIdentity && identity == "" {
		c.mu.Unlock()
		return domain.ErrIdentityRequired
	}
	c.discardSessionLocked()
	c.generation++
	gen := c.generation
	c.identity = identity
	c.state = domain.StateLoading
	c.result = nil
	c.lastError = ""
	c.saveWarning = ""
	c.broadcastLocked()
	c.mu.Unlock()

	batch, err := c.source.RequestBatch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return ErrControllerClosed
	}
	if err != nil {
		genErr := &domain.GenerationError{}
		if !errors.As(err, &genErr) {
			genErr = &domain.GenerationError{Err: err}
		}
		c.state = domain.StateIdle
		c.session = nil
		c.lastError = genErr.Message()
		c.broadcastLocked()
		c.notifyIfIdleLocked()
		c.log.Warn("question generation failed", zap.Error(err))
		return genErr
	}

	c.activateLocked(gen, batch)
	c.log.Info("quiz session started",
		zap.String("identity", identity),
		zap.Int("questions", len(batch)),
		zap.Duration("duration", c.cfg.Duration))
	return nil
}

func (c *Controller) activateLocked(gen uint64, batch []domain.Question) {
	questions := make([]domain.Question, len(batch))
	copy(questions, batch)
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		if _, dup := index[q.ID]; !dup {
			index[q.ID] = i
		}
	}

	countdown := timer.New(c.cfg.Duration, func() { c.expire(gen) },
		timer.WithClock(c.now),
		timer.WithWarningThreshold(c.cfg.WarningThreshold))
	runCtx, cancel := context.WithCancel(context.Background())

	c.session = &activeSession{
		generation: gen,
		batch:      questions,
		index:      index,
		answers:    domain.AnswerSet{},
		startedAt:  c.now(),
		countdown:  countdown,
		cancel:     cancel,
	}
	c.state = domain.StateActive
	c.broadcastLocked()

	if c.cfg.TickInterval > 0 {
		go countdown.Run(runCtx, c.cfg.TickInterval, func(timer.Reading) { c.onTick(gen) })
	}
}

// SelectOption records option as the answer to questionID, replacing any earlier choice.
// It reports false, changing nothing, outside ACTIVE or for an unknown question or option.
func (c *Controller) SelectOption(questionID string, option int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateActive || c.session == nil {
		return false
	}
	idx, ok := c.session.index[questionID]
	if !ok || !c.session.batch[idx].HasOption(option) {
		return false
	}
	c.session.answers[questionID] = option
	c.broadcastLocked()
	return true
}

// Advance moves the position by +1 or -1 and reports whether it moved.
func (c *Controller) Advance(direction int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateActive || c.session == nil {
		return false
	}
	if direction != 1 && direction != -1 {
		return false
	}
	next := c.session.position + direction
	if next < 0 || next >= len(c.session.batch) {
		return false
	}
	c.session.position = next
	c.broadcastLocked()
	return true
}

// Finish scores the active session. Only the first call on a session takes effect;
// later calls, and calls outside ACTIVE, return ok=false.
func (c *Controller) Finish() (domain.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishLocked(c.generation, false)
}

// Tick observes the countdown of the active session immediately, firing expiry if the deadline passed.
func (c *Controller) Tick() (timer.Reading, bool) {
	c.mu.Lock()
	if c.state != domain.StateActive || c.session == nil {
		c.mu.Unlock()
		return timer.Reading{}, false
	}
	countdown := c.session.countdown
	c.mu.Unlock()
	return countdown.Tick(), true
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.finishLocked(gen, true); ok {
		c.log.Info("quiz time expired")
	}
}

func (c *Controller) onTick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen && c.state == domain.StateActive {
		c.broadcastLocked()
	}
}

func (c *Controller) finishLocked(gen uint64, timedOut bool) (domain.Result, bool) {
	s := c.session
	if c.state != domain.StateActive || s == nil || s.generation != gen {
		return domain.Result{}, false
	}

	now := c.now()
	declared := s.countdown.Duration()
	elapsed := now.Sub(s.startedAt)
	if elapsed > declared {
		elapsed = declared
	}
	if elapsed < 0 {
		elapsed = 0
	}

	score := domain.Score(s.answers, s.batch)
	total := len(s.batch)
	percentage := domain.Percentage(score, total)
	result := domain.Result{
		Score:      score,
		Total:      total,
		Percentage: percentage,
		Grade:      domain.GradeFor(percentage),
		Answers:    s.answers.Clone(),
		Questions:  s.batch,
		Elapsed:    elapsed,
		Declared:   declared,
		Identity:   c.identity,
		TimedOut:   timedOut,
		FinishedAt: now,
	}

	s.countdown.Stop()
	s.cancel()
	c.session = nil
	c.result = &result
	c.state = domain.StateFinished

	if c.attempts != nil {
		c.saving++
		c.wg.Add(1)
		go c.persist(gen, result)
	}
	c.broadcastLocked()
	c.notifyIfIdleLocked()

	c.log.Info("quiz session finished",
		zap.Int("score", score),
		zap.Int("total", total),
		zap.Bool("timed_out", timedOut))
	return result, true
}

func (c *Controller) persist(gen uint64, result domain.Result) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SaveTimeout)
	defer cancel()

	id, err := c.attempts.Record(ctx, result.Score, result.Total, result.Identity)
	if err != nil {
		c.log.Warn("saving attempt locally failed", zap.Error(err))
	} else if c.identities != nil {
		if idErr := c.identities.Save(ctx, result.Identity); idErr != nil {
			c.log.Warn("remembering identity failed", zap.Error(idErr))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving--
	defer c.notifyIfIdleLocked()
	if c.generation != gen {
		return
	}
	if err != nil {
		c.saveWarning = "Your result could not be saved on this device."
	} else {
		c.log.Debug("attempt saved", zap.String("attempt_id", id))
	}
	c.broadcastLocked()
}

// ShowLeaderboard switches IDLE or FINISHED to the leaderboard view.
func (c *Controller) ShowLeaderboard() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateIdle && c.state != domain.StateFinished {
		return false
	}
	c.state = domain.StateMonitor
	c.broadcastLocked()
	return true
}

// Home returns to IDLE from the leaderboard or results view.
func (c *Controller) Home() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateMonitor && c.state != domain.StateFinished {
		return false
	}
	c.state = domain.StateIdle
	c.result = nil
	c.broadcastLocked()
	return true
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() domain.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Idle reports whether nobody is watching and nothing is in flight.
func (c *Controller) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleLocked()
}

func (c *Controller) idleLocked() bool {
	return len(c.subscribers) == 0 &&
		c.saving == 0 &&
		c.state != domain.StateActive &&
		c.state != domain.StateLoading
}

func (c *Controller) notifyIfIdleLocked() {
	if c.onIdle != nil && c.idleLocked() {
		go c.onIdle()
	}
}

// Subscribe returns a channel receiving a snapshot after every change and timer tick.
// The caller must invoke the returned cancel function to avoid leaks.
func (c *Controller) Subscribe() (<-chan domain.SessionView, func()) {
	ch := make(chan domain.SessionView, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
			c.notifyIfIdleLocked()
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Wait blocks until in-flight persistence has completed.
func (c *Controller) Wait() {
	c.wg.Wait()
	if w, ok := c.attempts.(interface{ Wait() }); ok {
		w.Wait()
	}
}

// Close abandons any session in progress, closes subscriptions and waits for pending saves.
// Abandoned sessions are not recorded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.discardSessionLocked()
	c.generation++
	c.state = domain.StateIdle
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
	c.mu.Unlock()
	c.Wait()
}

func (c *Controller) discardSessionLocked() {
	if c.session == nil {
		return
	}
	c.session.countdown.Stop()
	c.session.cancel()
	c.session = nil
}

func (c *Controller) broadcastLocked() {
	view := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- view:
		default:
			// drop the stale snapshot so a slow reader never blocks the controller
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (c *Controller) snapshotLocked() domain.SessionView {
	view := domain.SessionView{
		State:       c.state,
		Identity:    c.identity,
		Saving:      c.saving > 0,
		SaveWarning: c.saveWarning,
		Error:       c.lastError,
		Result:      c.result,
		UpdatedAt:   c.now(),
	}
	if s := c.session; s != nil && c.state == domain.StateActive {
		view.Position = s.position
		view.Total = len(s.batch)
		if s.position < len(s.batch) {
			q := s.batch[s.position].View()
			view.Question = &q
		}
		view.Answers = s.answers.Clone()
		reading := s.countdown.Peek()
		view.Timer = &domain.TimerView{
			SecondsLeft: reading.Seconds,
			Warning:     reading.Warning,
			Expired:     reading.Expired,
		}
	}
	if c.result != nil {
		view.Total = c.result.Total
	}
	return view
}
