package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	marketdata "main/internal/domain/entity/marketdata"
)

const (
	symbolsKey  = "stock:symbols"
	pricePrefix = "stock:price:"
	tradePrefix = "stock:trade:"
	ohlcvPrefix = "stock:ohlcv:"

	opTimeout    = 3 * time.Second
	lastTradeTTL = time.Hour
	setBatchSize = 1000
)

// Store adapts the shared Redis instance that hands live market state between
// the streaming pipeline and the persister.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Symbols returns the current live symbol set.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	symbols, err := s.client.SMembers(ctx, symbolsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read symbol set: %w", err)
	}
	return symbols, nil
}

// ReplaceSymbols rewrites the symbol set from scratch, adding in batches.
func (s *Store) ReplaceSymbols(ctx context.Context, symbols []string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Del(ctx, symbolsKey)
	for start := 0; start < len(symbols); start += setBatchSize {
		end := start + setBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		pipe.SAdd(ctx, symbolsKey, toAnySlice(symbols[start:end])...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace symbol set: %w", err)
	}
	return nil
}

func (s *Store) AddSymbols(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.SAdd(ctx, symbolsKey, toAnySlice(symbols)...).Err(); err != nil {
		return fmt.Errorf("add symbols: %w", err)
	}
	return nil
}

func (s *Store) RemoveSymbols(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.SRem(ctx, symbolsKey, toAnySlice(symbols)...).Err(); err != nil {
		return fmt.Errorf("remove symbols: %w", err)
	}
	return nil
}

// WriteLastTrade records the latest trade for a symbol: the plain price key
// plus the short-lived trade hash.
func (s *Store) WriteLastTrade(ctx context.Context, ev marketdata.TradeEvent, updatedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tradeKey := tradePrefix + ev.Symbol
	pipe := s.client.Pipeline()
	pipe.Set(ctx, pricePrefix+ev.Symbol, strconv.FormatFloat(ev.Price, 'f', -1, 64), 0)
	pipe.HSet(ctx, tradeKey,
		"price", strconv.FormatFloat(ev.Price, 'f', -1, 64),
		"timestamp", strconv.FormatInt(ev.TradeTime, 10),
		"volume", strconv.FormatFloat(ev.Volume, 'f', -1, 64),
		"updated_at", updatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, tradeKey, lastTradeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write last trade for %s: %w", ev.Symbol, err)
	}
	return nil
}

// WriteSummaries overwrites the OHLCV hash for every flushed symbol and
// returns the number of symbols written.
func (s *Store) WriteSummaries(ctx context.Context, summaries map[string]marketdata.Summary) (int, error) {
	if len(summaries) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	for symbol, summary := range summaries {
		pipe.HSet(ctx, ohlcvPrefix+symbol, summary.Fields())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("write summaries: %w", err)
	}
	return len(summaries), nil
}

// ReadSummaries pipeline-reads the OHLCV hash of every requested symbol.
// Symbols without cached state are absent from the result.
func (s *Store) ReadSummaries(ctx context.Context, symbols []string) (map[string]map[string]string, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, symbol := range symbols {
		cmds[symbol] = pipe.HGetAll(ctx, ohlcvPrefix+symbol)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read summaries: %w", err)
	}

	result := make(map[string]map[string]string, len(symbols))
	for symbol, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		result[symbol] = fields
	}
	return result, nil
}

func toAnySlice(symbols []string) []any {
	out := make([]any, len(symbols))
	for i, s := range symbols {
		out[i] = s
	}
	return out
}
