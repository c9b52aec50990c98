package persist

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	marketdata "main/internal/domain/entity/marketdata"
	"main/internal/domain/interfaces"
	"main/internal/metrics"
	"main/internal/retry"
)

const cycleInterval = 10 * time.Second

// Service moves cached OHLCV state into the durable store on a fixed cadence.
// Every store operation carries its own timeout; any failure abandons the
// cycle and the next one re-attempts with fresh state.
type Service struct {
	cache   interfaces.MarketCache
	history interfaces.History
	ids     map[string]int32
	logger  *logrus.Entry

	interval time.Duration
}

// NewService takes the symbol→id snapshot loaded once at process startup.
// Symbols without a mapping are skipped, never an error.
func NewService(cache interfaces.MarketCache, history interfaces.History, ids map[string]int32, logger *logrus.Logger) *Service {
	return &Service{
		cache:    cache,
		history:  history,
		ids:      ids,
		logger:   logger.WithField("component", "persister"),
		interval: cycleInterval,
	}
}

// Run executes persist cycles until ctx is cancelled. The sleep between
// cycles is interval minus cycle duration, clamped to zero, so an over-running
// cycle is followed immediately by the next one.
func (s *Service) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		s.cycle(ctx)
		if err := retry.Sleep(ctx, s.interval-time.Since(start)); err != nil {
			return err
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	symbols, err := s.cache.Symbols(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("symbol set read failed, skipping cycle")
		return
	}
	if len(symbols) == 0 {
		return
	}

	raw, err := s.cache.ReadSummaries(ctx, symbols)
	if err != nil {
		s.logger.WithError(err).Warn("summary read failed, skipping cycle")
		return
	}

	rows := make([]marketdata.HistoryRow, 0, len(raw))
	skipped := 0
	for _, symbol := range symbols {
		fields, ok := raw[symbol]
		if !ok {
			skipped++
			continue
		}
		summary, err := marketdata.ParseSummary(fields)
		if err != nil {
			skipped++
			s.logger.WithError(err).WithField("symbol", symbol).Debug("incomplete summary skipped")
			continue
		}
		id, ok := s.ids[symbol]
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, marketdata.HistoryRow{
			StockID:        id,
			Symbol:         symbol,
			Open:           summary.Open,
			High:           summary.High,
			Low:            summary.Low,
			Close:          summary.Close,
			Volume:         summary.Volume,
			TradeTimestamp: summary.UpdatedAt,
		})
	}
	metrics.RecordsSkipped.Add(float64(skipped))

	if len(rows) == 0 {
		if skipped > 0 {
			s.logger.WithField("skipped", skipped).Info("no complete summaries to persist")
		}
		return
	}

	inserted, err := s.history.InsertRows(ctx, rows)
	if err != nil {
		s.logger.WithError(err).Error("history insert failed")
		return
	}
	metrics.RowsPersisted.Add(float64(inserted))
	s.logger.WithFields(logrus.Fields{
		"inserted": inserted,
		"skipped":  skipped,
	}).Info("history rows persisted")
}
