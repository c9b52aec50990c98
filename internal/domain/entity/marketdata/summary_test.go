package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateWindow(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	events := []TradeEvent{
		{Symbol: "AAPL", Price: 100, Volume: 10, TradeTime: 1},
		{Symbol: "AAPL", Price: 102, Volume: 5, TradeTime: 2},
		{Symbol: "AAPL", Price: 99, Volume: 3, TradeTime: 3},
	}

	s, err := Aggregate(events, now)
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.Open)
	assert.Equal(t, 102.0, s.High)
	assert.Equal(t, 99.0, s.Low)
	assert.Equal(t, 99.0, s.Close)
	assert.Equal(t, 18.0, s.Volume)
	assert.Equal(t, now, s.UpdatedAt)
}

func TestAggregateBounds(t *testing.T) {
	now := time.Now().UTC()
	cases := map[string][]TradeEvent{
		"single": {{Symbol: "X", Price: 50, Volume: 1}},
		"rising": {{Price: 1}, {Price: 2}, {Price: 3}},
		"vshape": {{Price: 5, Volume: 2}, {Price: 1}, {Price: 4, Volume: 2}},
	}
	for name, events := range cases {
		s, err := Aggregate(events, now)
		require.NoError(t, err, name)
		assert.LessOrEqual(t, s.Low, s.Open, name)
		assert.LessOrEqual(t, s.Low, s.Close, name)
		assert.GreaterOrEqual(t, s.High, s.Open, name)
		assert.GreaterOrEqual(t, s.High, s.Close, name)
		assert.GreaterOrEqual(t, s.Volume, 0.0, name)
	}
}

func TestAggregateEmptyWindow(t *testing.T) {
	_, err := Aggregate(nil, time.Now())
	assert.ErrorIs(t, err, ErrNoTrades)
}

func TestParseSummaryRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 31, 5, 0, 0, 123456000, time.UTC)
	in := Summary{Open: 10.5, High: 11, Low: 9.25, Close: 10, Volume: 42.5, UpdatedAt: now}

	out, err := ParseSummary(in.Fields())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseSummaryIncomplete(t *testing.T) {
	complete := Summary{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3, UpdatedAt: time.Now().UTC()}.Fields()

	for _, field := range []string{"open", "high", "low", "close", "volume", "updated_at"} {
		t.Run("missing_"+field, func(t *testing.T) {
			fields := make(map[string]string, len(complete))
			for k, v := range complete {
				fields[k] = v
			}
			delete(fields, field)
			_, err := ParseSummary(fields)
			assert.Error(t, err)
		})
		t.Run("garbage_"+field, func(t *testing.T) {
			fields := make(map[string]string, len(complete))
			for k, v := range complete {
				fields[k] = v
			}
			fields[field] = "not-a-number"
			_, err := ParseSummary(fields)
			assert.Error(t, err)
		})
	}
}
