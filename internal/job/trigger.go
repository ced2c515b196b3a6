package job

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when a run is requested while one is still in
// flight.
var ErrAlreadyRunning = errors.New("job: run already in progress")

// RunFunc executes one run.
type RunFunc func(ctx context.Context) error

// Trigger invokes a run on a fixed interval without overlap. Each run gets a
// deadline below the interval; a run that exceeds it is abandoned: its
// context is cancelled and the trigger stays busy until it returns.
type Trigger struct {
	run      RunFunc
	interval time.Duration
	timeout  time.Duration
	running  atomic.Bool
	log      *zap.Logger
}

// NewTrigger creates a Trigger. timeout must be positive and shorter than
// interval.
func NewTrigger(run RunFunc, interval, timeout time.Duration) (*Trigger, error) {
	if interval <= 0 {
		return nil, eris.New("job: interval must be positive")
	}
	if timeout <= 0 || timeout >= interval {
		return nil, eris.Errorf("job: timeout %s must be positive and below interval %s", timeout, interval)
	}
	return &Trigger{
		run:      run,
		interval: interval,
		timeout:  timeout,
		log:      zap.L().With(zap.String("component", "job.trigger")),
	}, nil
}

// Running reports whether a run is in flight.
func (t *Trigger) Running() bool {
	return t.running.Load()
}

// RunOnce executes one run synchronously unless another is in flight. It
// returns when the run finishes or its deadline passes, whichever is first.
func (t *Trigger) RunOnce(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	done := make(chan error, 1)
	go func() {
		done <- t.run(runCtx)
	}()

	select {
	case err := <-done:
		cancel()
		t.running.Store(false)
		return err
	case <-runCtx.Done():
		cancel()
		t.log.Warn("run abandoned", zap.Duration("timeout", t.timeout), zap.Error(runCtx.Err()))
		go func() {
			<-done
			t.running.Store(false)
		}()
		return eris.Wrap(runCtx.Err(), "job: run abandoned")
	}
}

// Start runs immediately and then on every tick until ctx is done. Ticks
// that find a run in flight are skipped.
func (t *Trigger) Start(ctx context.Context) {
	t.log.Info("scheduler started", zap.Duration("interval", t.interval), zap.Duration("timeout", t.timeout))

	fire := func() {
		go func() {
			err := t.RunOnce(ctx)
			switch {
			case errors.Is(err, ErrAlreadyRunning):
				t.log.Warn("tick skipped, previous run still in flight")
			case err != nil:
				t.log.Error("scheduled run failed", zap.Error(err))
			}
		}()
	}

	fire()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			fire()
		}
	}
}
