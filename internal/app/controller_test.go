package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"faculty-quiz-service/internal/app"
	"faculty-quiz-service/internal/domain"
	"faculty-quiz-service/internal/infra/memory"
)

func TestStartActivatesSession(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0, 2)), app.ControllerConfig{})
	defer f.controller.Close()

	require.NoError(t, f.controller.Start(context.Background(), "  Ada  "))

	view := f.controller.Snapshot()
	require.Equal(t, domain.StateActive, view.State)
	require.Equal(t, "Ada", view.Identity)
	require.Equal(t, 0, view.Position)
	require.Equal(t, 3, view.Total)
	require.Empty(t, view.Answers)
	require.NotNil(t, view.Question)
	require.Equal(t, "q1", view.Question.ID)
	require.NotNil(t, view.Timer)
	require.Equal(t, 21*60, view.Timer.SecondsLeft)
	require.False(t, view.Timer.Warning)
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	source := memory.NewFailingQuestionSource(errors.New("quota exceeded"))
	f := newControllerFixture(source, app.ControllerConfig{})
	defer f.controller.Close()

	err := f.controller.Start(context.Background(), "Ada")
	require.Error(t, err)
	require.True(t, domain.IsGenerationError(err))

	view := f.controller.Snapshot()
	require.Equal(t, domain.StateIdle, view.State)
	require.Equal(t, domain.GenerationFailedMessage, view.Error)
	require.Nil(t, view.Question)
	require.Nil(t, view.Timer)
	require.Zero(t, view.Total)

	_, ok := f.controller.Finish()
	require.False(t, ok)
	f.controller.Wait()
	require.Empty(t, f.attempts.Calls())
}

func TestStartRequiresIdentityWhenGated(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(0)), app.ControllerConfig{RequireIdentity: true})
	defer f.controller.Close()

	require.ErrorIs(t, f.controller.Start(context.Background(), "   "), domain.ErrIdentityRequired)
	require.Equal(t, domain.StateIdle, f.controller.State())
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
}

func TestStartWhileLoadingIsRejected(t *testing.T) {
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{}), batch: batchWithAnswers(0, 1)}
	f := newControllerFixture(source, app.ControllerConfig{})
	defer f.controller.Close()

	errc := make(chan error, 1)
	go func() { errc <- f.controller.Start(context.Background(), "Ada") }()
	<-source.entered

	require.Equal(t, domain.StateLoading, f.controller.State())
	require.ErrorIs(t, f.controller.Start(context.Background(), "Ada"), domain.ErrLoadInProgress)
	require.False(t, f.controller.SelectOption("q1", 0))

	close(source.release)
	require.NoError(t, <-errc)
	require.Equal(t, domain.StateActive, f.controller.State())
}

func TestSelectOptionOverwritesAndValidates(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0, 2)), app.ControllerConfig{})
	defer f.controller.Close()

	require.False(t, f.controller.SelectOption("q1", 0), "selection before start must be a no-op")
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))

	require.True(t, f.controller.SelectOption("q1", 2))
	require.True(t, f.controller.SelectOption("q1", 1))
	require.False(t, f.controller.SelectOption("q1", 4))
	require.False(t, f.controller.SelectOption("q1", -1))
	require.False(t, f.controller.SelectOption("missing", 0))

	require.Equal(t, domain.AnswerSet{"q1": 1}, f.controller.Snapshot().Answers)
}

func TestAdvanceIsClamped(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0, 2)), app.ControllerConfig{})
	defer f.controller.Close()
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))

	require.False(t, f.controller.Advance(-1))
	require.Equal(t, 0, f.controller.Snapshot().Position)

	require.True(t, f.controller.Advance(1))
	require.True(t, f.controller.Advance(1))
	require.False(t, f.controller.Advance(1))
	require.Equal(t, 2, f.controller.Snapshot().Position)
	require.False(t, f.controller.Advance(2))

	require.True(t, f.controller.Advance(-1))
	view := f.controller.Snapshot()
	require.Equal(t, 1, view.Position)
	require.Equal(t, "q2", view.Question.ID)
	require.Empty(t, view.Answers)
}

func TestFinishScoresSession(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0, 2)), app.ControllerConfig{})
	defer f.controller.Close()
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))

	f.controller.SelectOption("q1", 1)
	f.controller.SelectOption("q2", 2)
	f.controller.SelectOption("q3", 2)
	f.clock.Advance(4 * time.Minute)

	result, ok := f.controller.Finish()
	require.True(t, ok)
	require.Equal(t, 2, result.Score)
	require.Equal(t, 3, result.Total)
	require.InDelta(t, 66.67, result.Percentage, 0.01)
	require.Equal(t, domain.GradeQualified, result.Grade)
	require.Equal(t, 4*time.Minute, result.Elapsed)
	require.Equal(t, app.DefaultQuizDuration, result.Declared)
	require.Equal(t, "Ada", result.Identity)
	require.False(t, result.TimedOut)
	require.Len(t, result.Questions, 3)

	view := f.controller.Snapshot()
	require.Equal(t, domain.StateFinished, view.State)
	require.NotNil(t, view.Result)
	require.Nil(t, view.Timer)

	f.controller.Wait()
	require.Equal(t, []recordCall{{Score: 2, Total: 3, Identity: "Ada"}}, f.attempts.Calls())
}

func TestFinishWithNoAnswers(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(0, 1, 2, 3, 0)), app.ControllerConfig{})
	defer f.controller.Close()
	require.NoError(t, f.controller.Start(context.Background(), ""))

	result, ok := f.controller.Finish()
	require.True(t, ok)
	require.Equal(t, 0, result.Score)
	require.Equal(t, 5, result.Total)
	require.Equal(t, float64(0), result.Percentage)
}

func TestFinishWithEmptyBatch(t *testing.T) {
	f := newControllerFixture(staticSource(nil), app.ControllerConfig{})
	defer f.controller.Close()
	require.NoError(t, f.controller.Start(context.Background(), ""))

	require.False(t, f.controller.Advance(1))
	require.Nil(t, f.controller.Snapshot().Question)

	result, ok := f.controller.Finish()
	require.True(t, ok)
	require.Equal(t, 0, result.Total)
	require.Equal(t, float64(0), result.Percentage)
}

func TestFinishIsIdempotent(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0)), app.ControllerConfig{})
	defer f.controller.Close()
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))

	first, ok := f.controller.Finish()
	require.True(t, ok)
	second, ok := f.controller.Finish()
	require.False(t, ok)
	require.Equal(t, domain.Result{}, second)
	require.Equal(t, 2, first.Total)

	f.controller.Wait()
	require.Len(t, f.attempts.Calls(), 1)
}

func TestTimerExpiryRacingSubmitFinishesOnce(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0, 2)), app.ControllerConfig{})
	defer f.controller.Close()
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	f.clock.Advance(app.DefaultQuizDuration + time.Second)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, ok := f.controller.Finish(); ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			f.controller.Tick()
		}()
	}
	wg.Wait()
	f.controller.Wait()

	require.Equal(t, domain.StateFinished, f.controller.State())
	require.LessOrEqual(t, successes, 1)
	require.Len(t, f.attempts.Calls(), 1)
}

func TestTimerExpiryFinishesFromAnyPosition(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0, 2)), app.ControllerConfig{})
	defer f.controller.Close()
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	f.controller.SelectOption("q1", 1)
	f.controller.Advance(1)

	f.clock.Advance(20 * time.Minute)
	reading, ok := f.controller.Tick()
	require.True(t, ok)
	require.True(t, reading.Warning)
	require.Equal(t, domain.StateActive, f.controller.State())

	f.clock.Advance(5 * time.Minute)
	reading, ok = f.controller.Tick()
	require.True(t, ok)
	require.True(t, reading.Expired)
	require.Equal(t, 0, reading.Seconds)

	view := f.controller.Snapshot()
	require.Equal(t, domain.StateFinished, view.State)
	require.True(t, view.Result.TimedOut)
	require.Equal(t, 1, view.Result.Score)
	require.Equal(t, app.DefaultQuizDuration, view.Result.Elapsed)

	_, ok = f.controller.Tick()
	require.False(t, ok)
}

func TestTickLoopExpiresSession(t *testing.T) {
	attempts := &fakeAttempts{}
	c := app.NewController(app.ControllerDeps{
		DeviceID: "device-1",
		Source:   staticSource(batchWithAnswers(0)),
		Attempts: attempts,
	}, app.ControllerConfig{Duration: 50 * time.Millisecond, TickInterval: 5 * time.Millisecond})
	defer c.Close()

	require.NoError(t, c.Start(context.Background(), "Ada"))
	require.Eventually(t, func() bool {
		return c.State() == domain.StateFinished
	}, 2*time.Second, 5*time.Millisecond)

	c.Wait()
	require.Len(t, attempts.Calls(), 1)
}

func TestRestartDiscardsPreviousSession(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0, 2)), app.ControllerConfig{})
	defer f.controller.Close()

	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	f.controller.SelectOption("q1", 1)
	f.controller.Advance(1)

	f.clock.Advance(20 * time.Minute)
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	view := f.controller.Snapshot()
	require.Equal(t, 0, view.Position)
	require.Empty(t, view.Answers)

	// Past the first deadline but well inside the second.
	f.clock.Advance(2 * time.Minute)
	reading, ok := f.controller.Tick()
	require.True(t, ok)
	require.False(t, reading.Expired)
	require.Equal(t, domain.StateActive, f.controller.State())
	require.Empty(t, f.attempts.Calls())
}

func TestNewQuizAfterFinish(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1)), app.ControllerConfig{})
	defer f.controller.Close()

	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	_, ok := f.controller.Finish()
	require.True(t, ok)

	require.NoError(t, f.controller.Start(context.Background(), ""))
	view := f.controller.Snapshot()
	require.Equal(t, domain.StateActive, view.State)
	require.Equal(t, "Ada", view.Identity, "identity carries over to the next session")
	require.Nil(t, view.Result)
}

func TestLocalSaveFailureStillFinishes(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1)), app.ControllerConfig{})
	defer f.controller.Close()
	f.attempts.err = errors.New("disk full")

	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	_, ok := f.controller.Finish()
	require.True(t, ok)
	f.controller.Wait()

	view := f.controller.Snapshot()
	require.Equal(t, domain.StateFinished, view.State)
	require.False(t, view.Saving)
	require.NotEmpty(t, view.SaveWarning)
}

func TestIdentityRememberedAfterAttempt(t *testing.T) {
	kv := memory.NewKVStore().ForDevice("device-1")
	identities := app.NewIdentityStore(kv)
	store := app.NewAttemptStore(kv, nil, app.AttemptStoreConfig{}, nil)

	c := app.NewController(app.ControllerDeps{
		DeviceID:   "device-1",
		Source:     staticSource(batchWithAnswers(0)),
		Attempts:   store,
		Identities: identities,
	}, app.ControllerConfig{TickInterval: -1})
	require.NoError(t, c.Start(context.Background(), "Grace"))
	_, ok := c.Finish()
	require.True(t, ok)
	c.Close()

	next := app.NewController(app.ControllerDeps{DeviceID: "device-1", Identities: identities}, app.ControllerConfig{})
	require.NoError(t, next.LoadIdentity(context.Background()))
	require.Equal(t, "Grace", next.Snapshot().Identity)
}

func TestLeaderboardViewIsSiblingOfIdle(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1)), app.ControllerConfig{})
	defer f.controller.Close()

	require.True(t, f.controller.ShowLeaderboard())
	require.Equal(t, domain.StateMonitor, f.controller.State())
	require.True(t, f.controller.Home())
	require.Equal(t, domain.StateIdle, f.controller.State())

	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	require.False(t, f.controller.ShowLeaderboard())
	require.False(t, f.controller.Home())
	require.Equal(t, domain.StateActive, f.controller.State())
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0)), app.ControllerConfig{})
	defer f.controller.Close()

	ch, cancel := f.controller.Subscribe()
	defer cancel()
	require.Equal(t, domain.StateIdle, (<-ch).State)

	require.NoError(t, f.controller.Start(context.Background(), "Ada"))
	require.Equal(t, domain.StateLoading, (<-ch).State)
	require.Equal(t, domain.StateActive, (<-ch).State)

	f.controller.SelectOption("q1", 1)
	update := <-ch
	require.Equal(t, domain.AnswerSet{"q1": 1}, update.Answers)
}

func TestCloseAbandonsSessionWithoutRecording(t *testing.T) {
	f := newControllerFixture(staticSource(batchWithAnswers(1, 0)), app.ControllerConfig{})
	require.NoError(t, f.controller.Start(context.Background(), "Ada"))

	ch, _ := f.controller.Subscribe()
	f.controller.Close()

	for range ch {
	}
	require.Equal(t, domain.StateIdle, f.controller.State())
	require.Empty(t, f.attempts.Calls())
}

func TestOnIdleFiresWhenControllerSettles(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	idle := make(chan struct{}, 8)
	c := app.NewController(app.ControllerDeps{
		DeviceID: "device-1",
		Source:   staticSource(batchWithAnswers(0)),
		Attempts: &fakeAttempts{},
		Now:      clock.Now,
		OnIdle:   func() { idle <- struct{}{} },
	}, app.ControllerConfig{TickInterval: -1})
	defer c.Close()

	_, cancel := c.Subscribe()
	require.NoError(t, c.Start(ctx, "Ada"))
	cancel()
	require.Never(t, func() bool { return len(idle) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"an active session is not idle")

	_, ok := c.Finish()
	require.True(t, ok)
	c.Wait()
	require.Eventually(t, func() bool { return len(idle) > 0 }, time.Second, 5*time.Millisecond)
	require.True(t, c.Idle())
}

func TestOnIdleWaitsForLastSubscriber(t *testing.T) {
	fired := make(chan struct{})
	c := app.NewController(app.ControllerDeps{
		DeviceID: "device-1",
		OnIdle:   func() { close(fired) },
	}, app.ControllerConfig{TickInterval: -1})
	defer c.Close()

	_, first := c.Subscribe()
	_, second := c.Subscribe()
	first()
	select {
	case <-fired:
		t.Fatalf("controller still has a subscriber")
	case <-time.After(20 * time.Millisecond):
	}
	second()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expected idle notification after the last subscriber left")
	}
}
