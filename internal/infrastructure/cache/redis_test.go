package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	marketdata "main/internal/domain/entity/marketdata"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client), mr
}

func TestSymbolSetOperations(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceSymbols(ctx, []string{"AAPL", "MSFT", "TSLA"}))
	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "TSLA"}, symbols)

	require.NoError(t, store.AddSymbols(ctx, []string{"GOOG"}))
	require.NoError(t, store.RemoveSymbols(ctx, []string{"TSLA"}))

	symbols, err = store.Symbols(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "GOOG"}, symbols)
}

func TestReplaceSymbolsDropsStale(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceSymbols(ctx, []string{"OLD"}))
	require.NoError(t, store.ReplaceSymbols(ctx, []string{"NEW"}))

	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW"}, symbols)
}

func TestWriteLastTrade(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	ev := marketdata.TradeEvent{Symbol: "AAPL", Price: 187.5, Volume: 12, TradeTime: 1756641600000}
	require.NoError(t, store.WriteLastTrade(ctx, ev, now))

	price, err := mr.Get("stock:price:AAPL")
	require.NoError(t, err)
	assert.Equal(t, "187.5", price)

	assert.Equal(t, "187.5", mr.HGet("stock:trade:AAPL", "price"))
	assert.Equal(t, "12", mr.HGet("stock:trade:AAPL", "volume"))
	assert.Equal(t, "1756641600000", mr.HGet("stock:trade:AAPL", "timestamp"))

	// Trade hash decays, the plain price key does not.
	assert.Greater(t, mr.TTL("stock:trade:AAPL"), time.Duration(0))
}

func TestSummaryWriteReadRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 5, 0, 0, 0, time.UTC)

	summaries := map[string]marketdata.Summary{
		"AAPL": {Open: 100, High: 102, Low: 99, Close: 99, Volume: 18, UpdatedAt: now},
	}
	written, err := store.WriteSummaries(ctx, summaries)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	raw, err := store.ReadSummaries(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Contains(t, raw, "AAPL")
	assert.NotContains(t, raw, "MSFT")

	parsed, err := marketdata.ParseSummary(raw["AAPL"])
	require.NoError(t, err)
	assert.Equal(t, summaries["AAPL"], parsed)
}

func TestReadSummariesEmptyInput(t *testing.T) {
	store, _ := newStore(t)

	raw, err := store.ReadSummaries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, raw)
}
