package interfaces

import (
	"context"
	"time"

	marketdata "main/internal/domain/entity/marketdata"
)

// SymbolSet exposes the live symbol set held by the cache store.
type SymbolSet interface {
	Symbols(ctx context.Context) ([]string, error)
}

// SymbolSetWriter mutates the live symbol set during synchronization.
type SymbolSetWriter interface {
	SymbolSet
	ReplaceSymbols(ctx context.Context, symbols []string) error
	AddSymbols(ctx context.Context, symbols []string) error
	RemoveSymbols(ctx context.Context, symbols []string) error
}

// MarketCache is the cache-store surface used by the streaming pipeline.
type MarketCache interface {
	SymbolSet
	WriteLastTrade(ctx context.Context, ev marketdata.TradeEvent, updatedAt time.Time) error
	WriteSummaries(ctx context.Context, summaries map[string]marketdata.Summary) (int, error)
	// ReadSummaries returns the raw summary hash per symbol; symbols with no
	// cached state are absent from the result.
	ReadSummaries(ctx context.Context, symbols []string) (map[string]map[string]string, error)
}
