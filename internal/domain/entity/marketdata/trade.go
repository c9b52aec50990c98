package marketdata

import "time"

// TradeEvent models a single executed trade taken from the feed stream.
type TradeEvent struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	// TradeTime is the exchange timestamp in milliseconds.
	TradeTime int64 `json:"trade_time"`
}

// TradedAt converts the exchange millisecond timestamp to UTC time.
func (t TradeEvent) TradedAt() time.Time {
	return time.UnixMilli(t.TradeTime).UTC()
}
