package marketdata

import "time"

// HistoryRow is one append-only price-history record built from a complete
// cache summary and a known stock id.
type HistoryRow struct {
	StockID        int32
	Symbol         string
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	TradeTimestamp time.Time
}
