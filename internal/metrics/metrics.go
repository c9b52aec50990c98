package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TradesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_ingested_total", Help: "Trade events consumed from the feed"},
		[]string{"symbol"},
	)
	TradesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trades_dropped_total", Help: "Trade events dropped on full queue"},
	)
	SummariesFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "summaries_flushed_total", Help: "OHLCV summaries written to the cache"},
	)
	RowsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "history_rows_persisted_total", Help: "Price history rows inserted"},
	)
	RecordsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "persist_records_skipped_total", Help: "Symbols skipped per persist cycle (incomplete or unmapped)"},
	)
)

func init() {
	prometheus.MustRegister(TradesIngested, TradesDropped, SummariesFlushed, RowsPersisted, RecordsSkipped)
}

// Handler exposes the default registry for mounting on the HTTP router.
func Handler() http.Handler {
	return promhttp.Handler()
}
