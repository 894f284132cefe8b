package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

var errNotAttached = errors.New("scheduler: controller is not attached")

// Controller starts and stops the scheduler on behalf of the control API.
// Run must be running for Start to succeed; the scheduler goroutine lives
// under the context given to Run.
type Controller struct {
	sched   *Scheduler
	events  EventEmitter
	running RunningRecorder
	logger  *slog.Logger

	mu        sync.Mutex
	base      context.Context
	active    bool
	startedAt time.Time
	stop      chan struct{}
	done      chan struct{}
}

// RunningRecorder tracks whether the loop runs.
type RunningRecorder interface {
	SetRunning(running bool)
}

// NewController wraps s. events is optional.
func NewController(s *Scheduler, events EventEmitter, logger *slog.Logger) *Controller {
	return &Controller{
		sched:  s,
		events: events,
		logger: logger.With(slog.String("component", "controller")),
	}
}

// SetRecorder reports start and stop to r. Must be called before Run.
func (c *Controller) SetRecorder(r RunningRecorder) {
	c.running = r
}

// Run attaches the controller to ctx, optionally starts the scheduler, and
// blocks until ctx is done. A running scheduler is stopped before returning.
func (c *Controller) Run(ctx context.Context, autoStart bool) error {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	if autoStart {
		if err := c.Start(); err != nil {
			return err
		}
	}
	<-ctx.Done()
	if err := c.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		return err
	}
	return nil
}

// Start launches the scheduler loop. It returns domain.ErrAlreadyRunning if
// it is already running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base == nil {
		return errNotAttached
	}
	if c.base.Err() != nil {
		return fmt.Errorf("scheduler: %w", c.base.Err())
	}
	if c.active {
		return domain.ErrAlreadyRunning
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.active = true
	c.startedAt = time.Now().UTC()
	c.stop = stop
	c.done = done

	ctx := c.base
	go func() {
		defer close(done)
		if err := c.sched.Run(ctx, stop); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("scheduler exited", slog.String("error", err.Error()))
		}
		// A Start issued while this run was stopping owns the flag now.
		c.mu.Lock()
		if c.done == done {
			c.active = false
			c.setRunning(false)
		}
		c.mu.Unlock()
	}()

	c.setRunning(true)
	c.logger.Info("bot started")
	c.emit(ctx, domain.Event{Type: domain.EventBotStarted, Message: "bot started"})
	return nil
}

// Stop signals the scheduler to stop and waits for the current pair to
// finish. It returns domain.ErrNotRunning if nothing is running.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return domain.ErrNotRunning
	}
	c.active = false
	close(c.stop)
	done := c.done
	ctx := c.base
	c.mu.Unlock()

	<-done
	c.logger.Info("bot stopped")
	c.emit(context.WithoutCancel(ctx), domain.Event{Type: domain.EventBotStopped, Message: "bot stopped"})
	return nil
}

// Status is the control API view of the bot.
type Status struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Pairs     []string  `json:"pairs"`
	Execution Execution `json:"execution"`
	Snapshot
}

// Status reports whether the bot runs plus the latest scheduler state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{Running: c.active}
	if c.active {
		st.StartedAt = c.startedAt
	}
	c.mu.Unlock()

	for _, p := range c.sched.Pairs() {
		st.Pairs = append(st.Pairs, p.String())
	}
	st.Execution = c.sched.Execution()
	st.Snapshot = c.sched.Snapshot()
	return st
}

func (c *Controller) setRunning(v bool) {
	if c.running != nil {
		c.running.SetRunning(v)
	}
}

func (c *Controller) emit(ctx context.Context, ev domain.Event) {
	if c.events != nil {
		c.events.Emit(ctx, ev)
	}
}
