package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"main/internal/application/service/supervisor"
	marketdata "main/internal/domain/entity/marketdata"
	"main/internal/domain/interfaces"
	"main/internal/metrics"
)

const apiBasePath = "/api/v1"

// StatusSource exposes the supervisor snapshot to the API.
type StatusSource interface {
	Status() supervisor.Status
}

// Handler serves the operational read-only API: health, supervisor status and
// cache views. It never writes to either store.
type Handler struct {
	router  *gin.Engine
	cache   interfaces.MarketCache
	status  StatusSource
	dropped func() uint64
}

func NewHandler(cache interfaces.MarketCache, status StatusSource, dropped func() uint64) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:  router,
		cache:   cache,
		status:  status,
		dropped: dropped,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", h.health)
	h.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := h.router.Group(apiBasePath)
	{
		api.GET("/status", h.getStatus)
		api.GET("/symbols", h.getSymbols)
		api.GET("/ohlcv/:symbol", h.getSummary)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getStatus(c *gin.Context) {
	st := h.status.Status()
	c.JSON(http.StatusOK, gin.H{
		"supervisor":     st,
		"dropped_trades": h.dropped(),
	})
}

func (h *Handler) getSymbols(c *gin.Context) {
	symbols, err := h.cache.Symbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

func (h *Handler) getSummary(c *gin.Context) {
	symbol := c.Param("symbol")
	raw, err := h.cache.ReadSummaries(c.Request.Context(), []string{symbol})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	fields, ok := raw[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for symbol"})
		return
	}
	summary, err := marketdata.ParseSummary(fields)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"open":       summary.Open,
		"high":       summary.High,
		"low":        summary.Low,
		"close":      summary.Close,
		"volume":     summary.Volume,
		"updated_at": summary.UpdatedAt,
	})
}
