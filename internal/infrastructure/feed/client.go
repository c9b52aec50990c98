package feed

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	marketdata "main/internal/domain/entity/marketdata"
	"main/internal/domain/interfaces"
	"main/internal/metrics"
	"main/internal/retry"
)

const (
	backoffInitial   = 3 * time.Second
	backoffMax       = 60 * time.Second
	handshakeTimeout = 10 * time.Second
	readTimeout      = 30 * time.Second
	writeTimeout     = 5 * time.Second
	pingInterval     = 15 * time.Second
	maxMessageSize   = 1 << 20
)

type feedMessage struct {
	Type string      `json:"type"`
	Data []feedTrade `json:"data"`
}

type feedTrade struct {
	Symbol string   `json:"s"`
	Price  float64  `json:"p"`
	Volume *float64 `json:"v"`
	Time   int64    `json:"t"`
}

type subscribeMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Client maintains the long-lived websocket connection to the trade feed and
// converts inbound trade messages into the internal event stream.
type Client struct {
	endpoint string
	symbols  interfaces.SymbolSet
	logger   *logrus.Entry
	dialer   *websocket.Dialer

	dropped atomic.Uint64
}

func NewClient(endpoint string, symbols interfaces.SymbolSet, logger *logrus.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		symbols:  symbols,
		logger:   logger.WithField("component", "feed"),
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// Dropped reports how many trade events were discarded on a full queue.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Run drives the outer reconnect loop until ctx is cancelled. The backoff
// doubles from 3s to a 60s cap and resets after every successful connect.
func (c *Client) Run(ctx context.Context, out chan<- marketdata.TradeEvent) error {
	bo := retry.NewBackoff(backoffInitial, backoffMax)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.Next()
			c.logger.WithError(err).WithField("retry_in", wait.String()).Warn("feed connect failed")
			if err := retry.Sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		bo.Reset()
		c.logger.Info("feed connected")

		err = c.consume(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.Next()
		c.logger.WithError(err).WithField("retry_in", wait.String()).Warn("feed disconnected")
		if err := retry.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *Client) consume(ctx context.Context, conn *websocket.Conn, out chan<- marketdata.TradeEvent) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go c.keepAlive(pingCtx, conn)

	// Closing the connection is the only way to unblock a pending read.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	if err := c.subscribe(ctx, conn); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg feedMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type != "trade" {
			continue
		}

		for _, trade := range msg.Data {
			if trade.Symbol == "" {
				continue
			}
			ev := marketdata.TradeEvent{
				Symbol:    trade.Symbol,
				Price:     trade.Price,
				TradeTime: trade.Time,
			}
			if trade.Volume != nil {
				ev.Volume = *trade.Volume
			}
			select {
			case out <- ev:
			default:
				// The feed, not local memory, is the resource to protect:
				// never block the read loop on a full queue.
				c.dropped.Add(1)
				metrics.TradesDropped.Inc()
			}
		}
	}
}

// subscribe reads the current symbol set and sends one subscribe frame per
// symbol. Every connect re-subscribes the full set.
func (c *Client) subscribe(ctx context.Context, conn *websocket.Conn) error {
	symbols, err := c.symbols.Symbols(ctx)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		c.logger.Warn("symbol set is empty, nothing to subscribe")
		return nil
	}

	for _, symbol := range symbols {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbol: symbol}); err != nil {
			return err
		}
	}
	c.logger.WithField("symbols", len(symbols)).Info("subscriptions updated")
	return nil
}

func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
