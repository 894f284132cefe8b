// Package notify forwards selected bot events to operator chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// DefaultEvents are forwarded when no explicit filter is configured.
var DefaultEvents = []domain.EventType{
	domain.EventArbDetected,
	domain.EventTradeConfirmed,
	domain.EventTradePending,
	domain.EventTradeFailed,
	domain.EventVolumeSpike,
}

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans events out to every sender. Only filtered event types are
// sent, and an identical message is sent at most once per throttle window.
type Notifier struct {
	senders  []Sender
	events   map[domain.EventType]bool
	throttle *Throttle
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list selects
// DefaultEvents; a zero throttle disables suppression.
func NewNotifier(senders []Sender, events []string, throttle time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool)
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	if len(allowed) == 0 {
		for _, e := range DefaultEvents {
			allowed[e] = true
		}
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	if throttle > 0 {
		n.throttle = NewThrottle(throttle)
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends ev if its type passes the filter. Sender failures are joined
// into the returned error; one failing sender does not stop the others.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if len(n.senders) == 0 || !n.events[ev.Type] {
		return nil
	}
	if n.throttle != nil && n.throttle.Suppress(string(ev.Type)+"|"+ev.Pair+"|"+ev.Message) {
		n.logger.DebugContext(ctx, "notification throttled", slog.String("type", string(ev.Type)))
		return nil
	}

	title := Title(ev)
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, ev.Message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Title renders the headline for ev.
func Title(ev domain.Event) string {
	label := strings.ReplaceAll(string(ev.Type), "_", " ")
	if ev.Pair == "" {
		return "dexarb: " + label
	}
	return fmt.Sprintf("dexarb: %s (%s)", label, ev.Pair)
}
