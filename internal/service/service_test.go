package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultSettings() domain.TradeConfig {
	return domain.TradeConfig{
		MinProfitRatio:       0.005,
		TradeAmount:          0.1,
		SlippagePct:          0.5,
		FeePerTx:             0.0005,
		VolumeSpikeThreshold: 2,
	}
}

func ptr(f float64) *float64 { return &f }

func TestSettings_PartialUpdate(t *testing.T) {
	mem := NewMemoryEventLog(10)
	events := NewEventService(EventConfig{Logger: discardLogger()})
	events.memory = mem
	s, err := NewSettingsService(defaultSettings(), events, discardLogger())
	require.NoError(t, err)

	got, err := s.Update(context.Background(), SettingsUpdate{TradeAmount: ptr(0.5), MinProfitRatio: ptr(0.01)})
	require.NoError(t, err)

	want := defaultSettings()
	want.TradeAmount = 0.5
	want.MinProfitRatio = 0.01
	assert.Equal(t, want, got)
	assert.Equal(t, want, s.Snapshot())

	evs, _ := mem.Recent(context.Background(), 0)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventSettings, evs[0].Type)
}

func TestSettings_InvalidUpdateKeepsOldValue(t *testing.T) {
	s, err := NewSettingsService(defaultSettings(), nil, discardLogger())
	require.NoError(t, err)

	_, err = s.Update(context.Background(), SettingsUpdate{TradeAmount: ptr(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)
	assert.Equal(t, defaultSettings(), s.Snapshot())

	_, err = NewSettingsService(domain.TradeConfig{}, nil, discardLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)
}

func TestSettings_ConcurrentReadersSeeWholeValues(t *testing.T) {
	s, err := NewSettingsService(defaultSettings(), nil, discardLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(v float64) {
			defer wg.Done()
			_, _ = s.Update(context.Background(), SettingsUpdate{TradeAmount: ptr(v), FeePerTx: ptr(v / 1000)})
		}(float64(i))
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			if snap.TradeAmount != 0.1 {
				assert.InDelta(t, snap.TradeAmount/1000, snap.FeePerTx, 1e-12)
			}
		}()
	}
	wg.Wait()
}

type fakeStream struct {
	appendErr error
	recentErr error
	got       []domain.Event
}

func (f *fakeStream) Append(_ context.Context, ev domain.Event) error {
	f.got = append(f.got, ev)
	return f.appendErr
}

func (f *fakeStream) Recent(_ context.Context, limit int) ([]domain.Event, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return []domain.Event{{ID: "from-stream"}}, nil
}

type fakeAudit struct{ got []domain.Event }

func (f *fakeAudit) Insert(_ context.Context, ev domain.Event) error {
	f.got = append(f.got, ev)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.Event, error) {
	return f.got, nil
}

func TestEvents_FanOutAndFillDefaults(t *testing.T) {
	stream := &fakeStream{}
	audit := &fakeAudit{}
	s := NewEventService(EventConfig{Stream: stream, Audit: audit, Logger: discardLogger()})

	require.NoError(t, s.Append(context.Background(), domain.Event{Type: domain.EventNoTrade, Message: "x"}))

	require.Len(t, stream.got, 1)
	require.Len(t, audit.got, 1)
	assert.NotEmpty(t, stream.got[0].ID)
	assert.False(t, stream.got[0].At.IsZero())
	assert.Equal(t, stream.got[0].ID, audit.got[0].ID)

	evs, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "from-stream", evs[0].ID)

	hist, err := s.History(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestEvents_FailingSinkDoesNotLoseEvent(t *testing.T) {
	stream := &fakeStream{appendErr: errors.New("redis down"), recentErr: errors.New("redis down")}
	audit := &fakeAudit{}
	s := NewEventService(EventConfig{Stream: stream, Audit: audit, Logger: discardLogger()})

	err := s.Append(context.Background(), domain.Event{Type: domain.EventTradeFailed, Message: "leg failed"})
	assert.ErrorContains(t, err, "stream")
	assert.Len(t, audit.got, 1)

	evs, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "leg failed", evs[0].Message)
}

func TestEvents_HistoryWithoutAudit(t *testing.T) {
	s := NewEventService(EventConfig{Logger: discardLogger()})
	_, err := s.History(context.Background(), domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryEventLog_NewestFirstAndBounded(t *testing.T) {
	m := NewMemoryEventLog(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(context.Background(), domain.Event{ID: fmt.Sprint(i)}))
	}

	evs, err := m.Recent(context.Background(), 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(evs))
	for _, ev := range evs {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"4", "3", "2"}, ids)

	evs, _ = m.Recent(context.Background(), 1)
	assert.Len(t, evs, 1)
}

func TestEvents_PublishOnLocalBus(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, "dexarb:events")
	require.NoError(t, err)

	s := NewEventService(EventConfig{Bus: bus, Channel: "dexarb:events", Logger: discardLogger()})
	require.NoError(t, s.Append(ctx, domain.Event{Type: domain.EventBotStarted, Message: "bot started"}))

	select {
	case payload := <-sub:
		var ev domain.Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, domain.EventBotStarted, ev.Type)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("no payload published")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-sub
		return !open
	}, time.Second, 5*time.Millisecond)
}

type blockingNotifier struct {
	release chan struct{}
	got     chan domain.Event
}

func (n *blockingNotifier) Notify(ctx context.Context, ev domain.Event) error {
	select {
	case <-n.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	n.got <- ev
	return nil
}

func TestEvents_EmitDoesNotWaitForSinks(t *testing.T) {
	n := &blockingNotifier{release: make(chan struct{}), got: make(chan domain.Event, 4)}
	s := NewEventService(EventConfig{Notifier: n, SinkTimeout: time.Minute, Logger: discardLogger()})
	defer s.Close()

	start := time.Now()
	s.Emit(context.Background(), domain.Event{Type: domain.EventArbDetected, Message: "gap"})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	evs, err := s.memory.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	close(n.release)
	select {
	case ev := <-n.got:
		assert.Equal(t, domain.EventArbDetected, ev.Type)
		assert.Equal(t, evs[0].ID, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("event never reached the notifier")
	}
}

func TestEvents_FullQueueSkipsSinksOnly(t *testing.T) {
	n := &blockingNotifier{release: make(chan struct{}), got: make(chan domain.Event, 8)}
	s := NewEventService(EventConfig{Notifier: n, QueueSize: 1, SinkTimeout: time.Minute, Logger: discardLogger()})

	for i := 0; i < 5; i++ {
		s.Emit(context.Background(), domain.Event{Type: domain.EventNoTrade, Message: fmt.Sprint(i)})
	}
	evs, _ := s.memory.Recent(context.Background(), 0)
	assert.Len(t, evs, 5)

	close(n.release)
	s.Close()
	// One event in flight plus one queued.
	assert.LessOrEqual(t, len(n.got), 2)
	assert.GreaterOrEqual(t, len(n.got), 1)

	// Emit after Close keeps the memory log.
	s.Emit(context.Background(), domain.Event{Type: domain.EventBotStopped})
	evs, _ = s.memory.Recent(context.Background(), 1)
	assert.Equal(t, domain.EventBotStopped, evs[0].Type)
}

type stuckStream struct{ fakeStream }

func (s *stuckStream) Append(ctx context.Context, _ domain.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestEvents_EachSinkHasItsOwnTimeout(t *testing.T) {
	audit := &fakeAudit{}
	s := NewEventService(EventConfig{Stream: &stuckStream{}, Audit: audit, SinkTimeout: 20 * time.Millisecond, Logger: discardLogger()})
	defer s.Close()

	err := s.Append(context.Background(), domain.Event{Type: domain.EventTradeFailed})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, audit.got, 1)
}
