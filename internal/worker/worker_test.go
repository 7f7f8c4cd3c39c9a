package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sparkacademy/portal-service/internal/config"
	"github.com/sparkacademy/portal-service/internal/utils"
)

func testLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type countingDispatcher struct {
	calls atomic.Int64
	batch atomic.Int64
	err   error
}

func (d *countingDispatcher) DispatchDueReminders(ctx context.Context, batchSize int) (int, error) {
	d.calls.Add(1)
	d.batch.Store(int64(batchSize))
	if d.err != nil {
		return 0, d.err
	}
	return 1, nil
}

type countingPoller struct {
	calls atomic.Int64
}

func (p *countingPoller) PollVideoJobs(ctx context.Context, batchSize int) (int, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestRunnerTicksBothLoops(t *testing.T) {
	dispatcher := &countingDispatcher{}
	poller := &countingPoller{}

	runner := NewRunner(dispatcher, poller, config.WorkerConfig{
		ReminderInterval:  2 * time.Millisecond,
		VideoPollInterval: 2 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if dispatcher.calls.Load() >= 2 && poller.calls.Load() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	runner.Wait()

	if got := dispatcher.calls.Load(); got < 2 {
		t.Errorf("dispatcher calls = %d, want at least 2", got)
	}
	if got := poller.calls.Load(); got < 2 {
		t.Errorf("poller calls = %d, want at least 2", got)
	}
	if got := dispatcher.batch.Load(); got != reminderBatchSize {
		t.Errorf("batch size = %d, want %d", got, reminderBatchSize)
	}

	// No further ticks after Wait returned
	settled := dispatcher.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if got := dispatcher.calls.Load(); got != settled {
		t.Errorf("dispatcher ticked after shutdown: %d -> %d", settled, got)
	}
}

func TestRunnerSurvivesTickErrors(t *testing.T) {
	dispatcher := &countingDispatcher{err: errors.New("kafka down")}
	poller := &countingPoller{}

	runner := NewRunner(dispatcher, poller, config.WorkerConfig{
		ReminderInterval:  2 * time.Millisecond,
		VideoPollInterval: time.Hour,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if dispatcher.calls.Load() >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	runner.Wait()

	// The loop keeps ticking through failures
	if got := dispatcher.calls.Load(); got < 3 {
		t.Errorf("dispatcher calls = %d, want at least 3", got)
	}
}

func TestRunnerDisablesNonPositiveIntervals(t *testing.T) {
	dispatcher := &countingDispatcher{}
	poller := &countingPoller{}

	runner := NewRunner(dispatcher, poller, config.WorkerConfig{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)

	// Both loops bail out immediately, Wait must not block
	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return for disabled workers")
	}

	cancel()

	if got := dispatcher.calls.Load(); got != 0 {
		t.Errorf("dispatcher calls = %d, want 0", got)
	}
	if got := poller.calls.Load(); got != 0 {
		t.Errorf("poller calls = %d, want 0", got)
	}
}
