package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	marketdata "main/internal/domain/entity/marketdata"
)

type fakeCache struct {
	mu         sync.Mutex
	lastTrades []marketdata.TradeEvent
	flushes    []map[string]marketdata.Summary
}

func (f *fakeCache) Symbols(context.Context) ([]string, error) { return nil, nil }

func (f *fakeCache) WriteLastTrade(_ context.Context, ev marketdata.TradeEvent, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTrades = append(f.lastTrades, ev)
	return nil
}

func (f *fakeCache) WriteSummaries(_ context.Context, summaries map[string]marketdata.Summary) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make(map[string]marketdata.Summary, len(summaries))
	for k, v := range summaries {
		copied[k] = v
	}
	f.flushes = append(f.flushes, copied)
	return len(summaries), nil
}

func (f *fakeCache) ReadSummaries(context.Context, []string) (map[string]map[string]string, error) {
	return nil, nil
}

func (f *fakeCache) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flushes)
}

type fakeFeed struct {
	events []marketdata.TradeEvent
}

func (f *fakeFeed) Run(ctx context.Context, out chan<- marketdata.TradeEvent) error {
	for _, ev := range f.events {
		out <- ev
	}
	<-ctx.Done()
	return ctx.Err()
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAggregateFlushesWindow(t *testing.T) {
	fc := &fakeCache{}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	s := NewService(nil, fc, quietLogger())
	s.window = 40 * time.Millisecond
	s.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan marketdata.TradeEvent, 16)
	go s.aggregate(ctx, events)

	events <- marketdata.TradeEvent{Symbol: "AAPL", Price: 100, Volume: 10}
	events <- marketdata.TradeEvent{Symbol: "AAPL", Price: 102, Volume: 5}
	events <- marketdata.TradeEvent{Symbol: "AAPL", Price: 99, Volume: 3}
	events <- marketdata.TradeEvent{Symbol: "MSFT", Price: 500, Volume: 1}

	require.Eventually(t, func() bool { return fc.flushCount() >= 1 }, time.Second, 5*time.Millisecond)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	flush := fc.flushes[0]
	require.Contains(t, flush, "AAPL")
	require.Contains(t, flush, "MSFT")
	assert.Equal(t, marketdata.Summary{Open: 100, High: 102, Low: 99, Close: 99, Volume: 18, UpdatedAt: now}, flush["AAPL"])
	assert.Equal(t, 500.0, flush["MSFT"].Open)
	// Every consumed event also updated the last-trade keys, in arrival order.
	require.Len(t, fc.lastTrades, 4)
	assert.Equal(t, 100.0, fc.lastTrades[0].Price)
	assert.Equal(t, 99.0, fc.lastTrades[2].Price)
}

func TestAggregateEmptyWindowWritesNothing(t *testing.T) {
	fc := &fakeCache{}

	s := NewService(nil, fc, quietLogger())
	s.window = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan marketdata.TradeEvent)
	go s.aggregate(ctx, events)

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, 0, fc.flushCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	fc := &fakeCache{}
	feed := &fakeFeed{events: []marketdata.TradeEvent{{Symbol: "AAPL", Price: 10, Volume: 1}}}

	s := NewService(feed, fc, quietLogger())
	s.window = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return fc.flushCount() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("service did not stop after cancel")
	}
}
