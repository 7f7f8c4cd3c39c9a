package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sparkacademy/portal-service/internal/config"
	"github.com/sparkacademy/portal-service/internal/utils"
)

const (
	reminderBatchSize  = 100
	videoPollBatchSize = 50

	// tickTimeout bounds one pass so a stuck provider call cannot block
	// the loop past the next ticks forever
	tickTimeout = time.Minute
)

// ReminderDispatcher is the slice of the planner service the worker needs
type ReminderDispatcher interface {
	DispatchDueReminders(ctx context.Context, batchSize int) (int, error)
}

// VideoPoller is the slice of the media service the worker needs
type VideoPoller interface {
	PollVideoJobs(ctx context.Context, batchSize int) (int, error)
}

// Runner drives the background loops: reminder dispatch for due tasks and
// provider polling for pending video jobs.
type Runner struct {
	dispatcher ReminderDispatcher
	poller     VideoPoller
	cfg        config.WorkerConfig
	logger     utils.Logger
	wg         sync.WaitGroup
}

func NewRunner(dispatcher ReminderDispatcher, poller VideoPoller, cfg config.WorkerConfig, logger utils.Logger) *Runner {
	return &Runner{
		dispatcher: dispatcher,
		poller:     poller,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start launches the worker loops and returns. The loops stop when ctx is
// canceled; Wait blocks until they have drained.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(2)

	go r.loop(ctx, "reminder-dispatch", r.cfg.ReminderInterval, func(ctx context.Context) (int, error) {
		return r.dispatcher.DispatchDueReminders(ctx, reminderBatchSize)
	})

	go r.loop(ctx, "video-poll", r.cfg.VideoPollInterval, func(ctx context.Context) (int, error) {
		return r.poller.PollVideoJobs(ctx, videoPollBatchSize)
	})
}

// Wait blocks until every loop has observed cancellation and exited
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) (int, error)) {
	defer r.wg.Done()

	if interval <= 0 {
		r.logger.Warn("Worker disabled, interval not positive", "worker", name, "interval", interval)
		return
	}

	r.logger.Info("Worker started", "worker", name, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Worker stopped", "worker", name)
			return
		case <-ticker.C:
			r.runTick(ctx, name, tick)
		}
	}
}

func (r *Runner) runTick(ctx context.Context, name string, tick func(context.Context) (int, error)) {
	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	processed, err := tick(tickCtx)
	if err != nil {
		r.logger.Error("Worker tick failed", "worker", name, "error", err)
		return
	}
	if processed > 0 {
		r.logger.Info("Worker tick processed items", "worker", name, "processed", processed)
	}
}
