package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	marketdata "main/internal/domain/entity/marketdata"
	"main/internal/retry"
)

const (
	opTimeout       = 5 * time.Second
	connectAttempts = 5
	connectBackoff  = 2 * time.Second

	symbolChannel = "stock_changed"
	historyTable  = "stock_price_history"
)

// Repository adapts the durable Postgres store: the stocks directory and the
// append-only price history table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects to Postgres with a bounded number of attempts. A
// failure here is an initialization failure; the caller is expected to treat
// it as fatal.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pingWithRetries(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// LoadSymbolIDs reads the symbol→id mapping once at startup. The snapshot is
// immutable for the process lifetime.
func (r *Repository) LoadSymbolIDs(ctx context.Context) (map[string]int32, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT id, symbol FROM stocks`)
	if err != nil {
		return nil, fmt.Errorf("load symbol ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int32)
	for rows.Next() {
		var (
			id     int32
			symbol string
		)
		if err := rows.Scan(&id, &symbol); err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		ids[symbol] = id
	}
	return ids, rows.Err()
}

// Symbols returns the authoritative symbol list for cache synchronization.
func (r *Repository) Symbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT symbol FROM stocks`)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// InsertRows bulk-writes one persist cycle's price history rows.
func (r *Repository) InsertRows(ctx context.Context, rows []marketdata.HistoryRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	source := make([][]interface{}, 0, len(rows))
	for i := range rows {
		source = append(source, []interface{}{
			rows[i].StockID,
			rows[i].Symbol,
			rows[i].Open,
			rows[i].High,
			rows[i].Low,
			rows[i].Close,
			rows[i].Volume,
			rows[i].TradeTimestamp,
		})
	}
	inserted, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{historyTable},
		[]string{"stock_id", "symbol", "open", "high", "low", "close", "volume", "trade_time_stamp"},
		pgx.CopyFromRows(source),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history rows: %w", err)
	}
	return inserted, nil
}

// RunMaintenance re-checks connectivity with bounded attempts, then truncates
// and vacuums the history table. Errors are returned for logging, never
// escalated further by callers.
func (r *Repository) RunMaintenance(ctx context.Context) error {
	if err := pingWithRetries(ctx, r.pool); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, `TRUNCATE TABLE `+historyTable); err != nil {
		return fmt.Errorf("truncate %s: %w", historyTable, err)
	}
	if _, err := r.pool.Exec(ctx, `VACUUM `+historyTable); err != nil {
		return fmt.Errorf("vacuum %s: %w", historyTable, err)
	}
	return nil
}

// ListenSymbolChanges blocks on the stock_changed notification channel and
// invokes onChange for every notification. Returns when the connection breaks
// or ctx is cancelled.
func (r *Repository) ListenSymbolChanges(ctx context.Context, onChange func(context.Context)) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+symbolChannel); err != nil {
		return fmt.Errorf("listen %s: %w", symbolChannel, err)
	}
	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		onChange(ctx)
	}
}

func pingWithRetries(ctx context.Context, pool *pgxpool.Pool) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < connectAttempts {
			if sleepErr := retry.Sleep(ctx, connectBackoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return fmt.Errorf("postgres unreachable after %d attempts: %w", connectAttempts, err)
}
