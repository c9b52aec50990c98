package interfaces

import (
	"context"

	marketdata "main/internal/domain/entity/marketdata"
)

// History is the durable-store surface used by the batch persister.
type History interface {
	InsertRows(ctx context.Context, rows []marketdata.HistoryRow) (int64, error)
}

// SymbolDirectory reads the authoritative symbol list from the durable store.
type SymbolDirectory interface {
	Symbols(ctx context.Context) ([]string, error)
	ListenSymbolChanges(ctx context.Context, onChange func(context.Context)) error
}

// Maintenance runs the daily truncate/vacuum pass. Any failure is reported to
// the caller as a non-fatal completion.
type Maintenance interface {
	RunMaintenance(ctx context.Context) error
}
