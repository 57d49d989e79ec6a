package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"faculty-quiz-service/internal/app"
	"faculty-quiz-service/internal/domain"
	"faculty-quiz-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type recordCall struct {
	Score    int
	Total    int
	Identity string
}

type fakeAttempts struct {
	mu    sync.Mutex
	calls []recordCall
	err   error
}

func (f *fakeAttempts) Record(_ context.Context, score, total int, identity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordCall{Score: score, Total: total, Identity: identity})
	if f.err != nil {
		return "", f.err
	}
	return "attempt-1", nil
}

func (f *fakeAttempts) Calls() []recordCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage unavailable")
}

func (failingKV) Set(context.Context, string, string) error {
	return errors.New("storage unavailable")
}

// blockingSource holds RequestBatch until release is closed.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	batch   []domain.Question
}

func (b *blockingSource) RequestBatch(ctx context.Context) ([]domain.Question, error) {
	close(b.entered)
	select {
	case <-b.release:
		return b.batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type controllerFixture struct {
	controller *app.Controller
	clock      *fakeClock
	attempts   *fakeAttempts
}

func newControllerFixture(source app.QuestionSource, cfg app.ControllerConfig) controllerFixture {
	clock := newFakeClock()
	attempts := &fakeAttempts{}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = -1
	}
	c := app.NewController(app.ControllerDeps{
		DeviceID: "device-1",
		Source:   source,
		Attempts: attempts,
		Now:      clock.Now,
	}, cfg)
	return controllerFixture{controller: c, clock: clock, attempts: attempts}
}

func batchWithAnswers(correct ...int) []domain.Question {
	batch := make([]domain.Question, len(correct))
	for i, answer := range correct {
		batch[i] = domain.Question{
			ID:            "q" + string(rune('1'+i)),
			Category:      "Engineering Mathematics",
			Question:      "question",
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: answer,
			Explanation:   "explanation",
		}
	}
	return batch
}

func staticSource(batch []domain.Question) app.QuestionSource {
	return memory.NewStaticQuestionSource(batch)
}
