package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

const (
	// DefaultSinkTimeout bounds a single write to one external sink.
	DefaultSinkTimeout = 2 * time.Second
	// DefaultQueueSize bounds the events waiting for the external sinks.
	DefaultQueueSize = 256
)

// Notifier forwards selected events to operators.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// EventConfig configures the event fan-out. Stream, Bus, Audit and Notifier
// are optional; the in-memory log is always kept. Bus publishes each event as
// JSON on Channel and is meant for setups where Stream does not already
// publish.
type EventConfig struct {
	Stream      domain.EventLog
	Bus         domain.EventBus
	Channel     string
	Audit       domain.AuditStore
	Notifier    Notifier
	MemorySize  int
	QueueSize   int
	SinkTimeout time.Duration
	Logger      *slog.Logger
}

// EventService is the append-only event log of the bot. Every event goes to
// the in-memory log and to each configured sink; a failing sink is logged
// and skipped. Emit hands the external sinks to a background worker so a
// slow sink never holds up the caller.
type EventService struct {
	memory   *MemoryEventLog
	stream   domain.EventLog
	bus      domain.EventBus
	channel  string
	audit    domain.AuditStore
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event
	done   chan struct{}
}

// NewEventService creates an EventService and starts its delivery worker
// when external sinks are configured. Call Close to drain it.
func NewEventService(cfg EventConfig) *EventService {
	s := &EventService{
		memory:   NewMemoryEventLog(cfg.MemorySize),
		stream:   cfg.Stream,
		bus:      cfg.Bus,
		channel:  cfg.Channel,
		audit:    cfg.Audit,
		notifier: cfg.Notifier,
		timeout:  cfg.SinkTimeout,
		logger:   cfg.Logger.With(slog.String("component", "events")),
		done:     make(chan struct{}),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultSinkTimeout
	}
	if !s.hasSinks() {
		close(s.done)
		return s
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	s.queue = make(chan domain.Event, size)
	go s.deliverLoop()
	return s
}

func (s *EventService) hasSinks() bool {
	return s.stream != nil || s.bus != nil || s.audit != nil || s.notifier != nil
}

// Emit records ev in memory and queues it for the external sinks. A full
// queue drops the event for those sinks only.
func (s *EventService) Emit(ctx context.Context, ev domain.Event) {
	ev = stamp(ev)
	_ = s.memory.Append(ctx, ev)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queue == nil || s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.WarnContext(ctx, "event queue full, sinks skipped",
			slog.String("type", string(ev.Type)),
			slog.String("id", ev.ID),
		)
	}
}

// Close stops accepting queued events and waits until the queued ones are
// delivered. It is safe to call more than once.
func (s *EventService) Close() {
	s.mu.Lock()
	if !s.closed && s.queue != nil {
		close(s.queue)
	}
	s.closed = true
	s.mu.Unlock()
	<-s.done
}

func (s *EventService) deliverLoop() {
	defer close(s.done)
	for ev := range s.queue {
		if err := s.deliver(context.Background(), ev); err != nil {
			s.logger.Warn("event sink failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Append implements domain.EventLog. It delivers synchronously and the
// returned error joins every sink failure; the event is recorded in memory
// regardless.
func (s *EventService) Append(ctx context.Context, ev domain.Event) error {
	ev = stamp(ev)
	_ = s.memory.Append(ctx, ev)
	return s.deliver(ctx, ev)
}

// deliver writes ev to each external sink under its own timeout.
func (s *EventService) deliver(ctx context.Context, ev domain.Event) error {
	var errs []error
	if s.stream != nil {
		if err := s.withTimeout(ctx, func(ctx context.Context) error { return s.stream.Append(ctx, ev) }); err != nil {
			errs = append(errs, fmt.Errorf("stream: %w", err))
		}
	}
	if s.bus != nil {
		if payload, err := json.Marshal(ev); err != nil {
			errs = append(errs, fmt.Errorf("bus: %w", err))
		} else if err := s.withTimeout(ctx, func(ctx context.Context) error { return s.bus.Publish(ctx, s.channel, payload) }); err != nil {
			errs = append(errs, fmt.Errorf("bus: %w", err))
		}
	}
	if s.audit != nil {
		if err := s.withTimeout(ctx, func(ctx context.Context) error { return s.audit.Insert(ctx, ev) }); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if s.notifier != nil {
		if err := s.withTimeout(ctx, func(ctx context.Context) error { return s.notifier.Notify(ctx, ev) }); err != nil {
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *EventService) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func stamp(ev domain.Event) domain.Event {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}

// Recent implements domain.EventLog, newest first. It reads the stream when
// one is configured and falls back to the in-memory log.
func (s *EventService) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if s.stream != nil {
		evs, err := s.stream.Recent(ctx, limit)
		if err == nil {
			return evs, nil
		}
		s.logger.WarnContext(ctx, "stream read failed, using memory log",
			slog.String("error", err.Error()),
		)
	}
	return s.memory.Recent(ctx, limit)
}

// History lists persisted events from the audit store.
func (s *EventService) History(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	if s.audit == nil {
		return nil, fmt.Errorf("service: audit log: %w", domain.ErrNotFound)
	}
	return s.audit.List(ctx, opts)
}

// DefaultMemoryEvents is the in-memory log capacity when none is configured.
const DefaultMemoryEvents = 500

// MemoryEventLog keeps the last N events in process memory.
type MemoryEventLog struct {
	mu     sync.Mutex
	events []domain.Event
	limit  int
}

// NewMemoryEventLog creates a log holding up to limit events.
func NewMemoryEventLog(limit int) *MemoryEventLog {
	if limit <= 0 {
		limit = DefaultMemoryEvents
	}
	return &MemoryEventLog{limit: limit}
}

// Append implements domain.EventLog.
func (m *MemoryEventLog) Append(_ context.Context, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if overflow := len(m.events) - m.limit; overflow > 0 {
		m.events = append([]domain.Event(nil), m.events[overflow:]...)
	}
	return nil
}

// Recent implements domain.EventLog.
func (m *MemoryEventLog) Recent(_ context.Context, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Event, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

var (
	_ domain.EventLog = (*EventService)(nil)
	_ domain.EventLog = (*MemoryEventLog)(nil)
)
