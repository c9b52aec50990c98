package marketdata

import (
	"errors"
	"strconv"
	"time"
)

// Summary is the per-symbol OHLCV record kept in the cache between flushes.
type Summary struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	UpdatedAt time.Time
}

var ErrNoTrades = errors.New("no trades in window")

// Aggregate folds a window of trade events, in arrival order, into a Summary.
// Open is the first price, Close the last, High/Low the extremes and Volume the
// sum of per-trade volumes.
func Aggregate(events []TradeEvent, updatedAt time.Time) (Summary, error) {
	if len(events) == 0 {
		return Summary{}, ErrNoTrades
	}

	s := Summary{
		Open:      events[0].Price,
		High:      events[0].Price,
		Low:       events[0].Price,
		Close:     events[len(events)-1].Price,
		UpdatedAt: updatedAt,
	}
	for _, ev := range events {
		if ev.Price > s.High {
			s.High = ev.Price
		}
		if ev.Price < s.Low {
			s.Low = ev.Price
		}
		s.Volume += ev.Volume
	}
	return s, nil
}

// Fields renders the summary as cache hash fields.
func (s Summary) Fields() map[string]string {
	return map[string]string{
		"open":       formatFloat(s.Open),
		"high":       formatFloat(s.High),
		"low":        formatFloat(s.Low),
		"close":      formatFloat(s.Close),
		"volume":     formatFloat(s.Volume),
		"updated_at": s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ParseSummary rebuilds a Summary from cache hash fields. A missing or
// unparseable field makes the whole record unusable.
func ParseSummary(fields map[string]string) (Summary, error) {
	var (
		s   Summary
		err error
	)
	if s.Open, err = parseFloat(fields, "open"); err != nil {
		return Summary{}, err
	}
	if s.High, err = parseFloat(fields, "high"); err != nil {
		return Summary{}, err
	}
	if s.Low, err = parseFloat(fields, "low"); err != nil {
		return Summary{}, err
	}
	if s.Close, err = parseFloat(fields, "close"); err != nil {
		return Summary{}, err
	}
	if s.Volume, err = parseFloat(fields, "volume"); err != nil {
		return Summary{}, err
	}

	raw, ok := fields["updated_at"]
	if !ok {
		return Summary{}, errors.New("missing field updated_at")
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return Summary{}, errors.New("unparseable field updated_at")
	}
	s.UpdatedAt = ts.UTC()
	return s, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(fields map[string]string, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, errors.New("missing field " + key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("unparseable field " + key)
	}
	return v, nil
}
