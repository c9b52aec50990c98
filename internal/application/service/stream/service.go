package stream

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	marketdata "main/internal/domain/entity/marketdata"
	"main/internal/domain/interfaces"
	"main/internal/metrics"
)

const (
	flushWindow   = 10 * time.Second
	queueCapacity = 100000
)

// FeedSource produces trade events into the bounded queue until ctx ends.
type FeedSource interface {
	Run(ctx context.Context, out chan<- marketdata.TradeEvent) error
}

// Service couples the feed with the aggregation loop: trades accumulate in
// per-symbol buffers for the length of one window and are flushed to the
// cache in a single bulk write at window close.
type Service struct {
	feed   FeedSource
	cache  interfaces.MarketCache
	logger *logrus.Entry

	window time.Duration
	now    func() time.Time
}

func NewService(feed FeedSource, cache interfaces.MarketCache, logger *logrus.Logger) *Service {
	return &Service{
		feed:   feed,
		cache:  cache,
		logger: logger.WithField("component", "aggregator"),
		window: flushWindow,
		now:    time.Now,
	}
}

// Run starts the feed and the aggregation loop and blocks until ctx is
// cancelled or either side fails.
func (s *Service) Run(ctx context.Context) error {
	events := make(chan marketdata.TradeEvent, queueCapacity)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.feed.Run(gctx, events)
	})
	g.Go(func() error {
		return s.aggregate(gctx, events)
	})
	return g.Wait()
}

func (s *Service) aggregate(ctx context.Context, events <-chan marketdata.TradeEvent) error {
	buffers := make(map[string][]marketdata.TradeEvent)
	received := 0

	timer := time.NewTimer(s.window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			received++
			s.consume(ctx, ev, buffers)
		case <-timer.C:
			s.flush(ctx, buffers, received)
			buffers = make(map[string][]marketdata.TradeEvent)
			received = 0
			timer.Reset(s.window)
		}
	}
}

func (s *Service) consume(ctx context.Context, ev marketdata.TradeEvent, buffers map[string][]marketdata.TradeEvent) {
	buffers[ev.Symbol] = append(buffers[ev.Symbol], ev)
	metrics.TradesIngested.WithLabelValues(ev.Symbol).Inc()

	if err := s.cache.WriteLastTrade(ctx, ev, s.now()); err != nil {
		s.logger.WithError(err).WithField("symbol", ev.Symbol).Warn("last trade write failed")
	}
}

func (s *Service) flush(ctx context.Context, buffers map[string][]marketdata.TradeEvent, received int) {
	if received == 0 {
		s.logger.Info("no trades received in window, nothing to flush")
		return
	}

	now := s.now()
	summaries := make(map[string]marketdata.Summary, len(buffers))
	for symbol, events := range buffers {
		summary, err := marketdata.Aggregate(events, now)
		if err != nil {
			continue
		}
		summaries[symbol] = summary
	}

	written, err := s.cache.WriteSummaries(ctx, summaries)
	if err != nil {
		s.logger.WithError(err).Error("summary flush failed")
		return
	}
	metrics.SummariesFlushed.Add(float64(written))
	s.logger.WithFields(logrus.Fields{
		"symbols": written,
		"trades":  received,
	}).Info("summaries flushed")
}
