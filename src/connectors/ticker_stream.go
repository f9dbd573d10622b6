package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// tickerMessage is one pushed quote from the exchange stream.
type tickerMessage struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last,string"`
	Bid    float64 `json:"bid,string"`
	Ask    float64 `json:"ask,string"`
	TsMs   int64   `json:"ts"`
}

// TickerSink receives streamed quotes; the price cache implements it.
type TickerSink interface {
	SetPrice(symbol string, price, bid, ask float64, ts time.Time)
}

// TickerStream keeps a websocket subscription to the exchange ticker channel
// and pushes quotes into the sink between database refresh cycles. The
// stream is a fast path only; the durable snapshots remain the source of
// truth for the cache.
type TickerStream struct {
	url     string
	symbols []string
	sink    TickerSink
}

// NewTickerStream builds a stream for the given symbols.
func NewTickerStream(url string, symbols []string, sink TickerSink) *TickerStream {
	if url == "" {
		url = GetConfig().ExchangeWSURL
	}
	return &TickerStream{url: url, symbols: symbols, sink: sink}
}

// Run maintains the subscription with reconnect-on-error until the context
// is cancelled.
func (s *TickerStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			logger.Info("ticker stream stopped")
			return
		}

		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("ticker stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			logger.Info("ticker stream stopped")
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"op":      "subscribe",
		"channel": "ticker",
		"symbols": s.symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	logger.WithField("symbols", len(s.symbols)).Info("ticker stream subscribed")

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var tick tickerMessage
		if err := json.Unmarshal(msg, &tick); err != nil {
			logger.WithError(err).Debug("skipping unparseable ticker message")
			continue
		}
		if tick.Symbol == "" || tick.Last <= 0 {
			continue
		}

		s.sink.SetPrice(tick.Symbol, tick.Last, tick.Bid, tick.Ask, time.UnixMilli(tick.TsMs))
	}
}
