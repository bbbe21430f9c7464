// Package deriv is the venue gateway: one long-lived market-data
// websocket per tracked symbol plus short-lived per-trade connections.
// Nothing outside this package speaks the venue protocol.
package deriv

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"zeenix-trading-bot/config"
	"zeenix-trading-bot/internal/ticks"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TickHandler receives every validated tick. snapshot marks ticks
// recovered from the history back-fill, delivered before any live tick.
type TickHandler func(symbol string, t ticks.Tick, snapshot bool)

// SymbolStatus is a point-in-time view of one market-data connection
type SymbolStatus struct {
	Symbol         string    `json:"symbol"`
	SubscriptionID string    `json:"subscription_id"`
	Connected      bool      `json:"connected"`
	Reconnects     int       `json:"reconnects"`
	TotalTicks     int64     `json:"total_ticks"`
	LastTickAt     time.Time `json:"last_tick_at"`
	ConnectedAt    time.Time `json:"connected_at"`
}

// Gateway owns all venue connections
type Gateway struct {
	cfg    config.DerivConfig
	logger zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*marketConn
	onTick TickHandler
	closed bool
}

// marketConn is the long-lived stream for one symbol. Only its run
// goroutine replaces ws; the recreate mutex forbids concurrent
// reconnects.
type marketConn struct {
	symbol string
	stop   chan struct{}

	recreateMu sync.Mutex // held for the whole life of one socket

	mu             sync.Mutex // guards everything below, and socket writes
	ws             *websocket.Conn
	subscriptionID string
	connected      bool
	reconnects     int
	totalTicks     int64
	lastTickAt     time.Time
	connectedAt    time.Time
}

// NewGateway creates the gateway. Call OnTick before EnsureMarketData.
func NewGateway(cfg config.DerivConfig, logger zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		logger: logger.With().Str("component", "deriv").Logger(),
		conns:  make(map[string]*marketConn),
	}
}

// OnTick registers the tick sink
func (g *Gateway) OnTick(h TickHandler) {
	g.onTick = h
}

func (g *Gateway) endpointURL() string {
	return fmt.Sprintf("%s?app_id=%s", g.cfg.Endpoint, g.cfg.AppID)
}

// EnsureMarketData idempotently establishes one market-data connection
// per symbol. Symbols already streaming are skipped.
func (g *Gateway) EnsureMarketData(symbols []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	for _, symbol := range symbols {
		if _, ok := g.conns[symbol]; ok {
			continue
		}
		mc := &marketConn{symbol: symbol, stop: make(chan struct{})}
		g.conns[symbol] = mc
		go g.runSymbol(mc)
		g.logger.Info().Str("symbol", symbol).Msg("market data stream starting")
	}
}

// Status returns the current connection state for a symbol
func (g *Gateway) Status(symbol string) (SymbolStatus, bool) {
	g.mu.Lock()
	mc, ok := g.conns[symbol]
	g.mu.Unlock()
	if !ok {
		return SymbolStatus{}, false
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	return SymbolStatus{
		Symbol:         mc.symbol,
		SubscriptionID: mc.subscriptionID,
		Connected:      mc.connected,
		Reconnects:     mc.reconnects,
		TotalTicks:     mc.totalTicks,
		LastTickAt:     mc.lastTickAt,
		ConnectedAt:    mc.connectedAt,
	}, true
}

// Close tears down every market-data connection
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true

	for symbol, mc := range g.conns {
		close(mc.stop)
		mc.mu.Lock()
		if mc.ws != nil {
			mc.ws.Close()
		}
		mc.mu.Unlock()
		g.logger.Info().Str("symbol", symbol).Msg("market data stream closed")
	}
}

// runSymbol keeps one symbol streaming until the gateway closes,
// recreating the socket with a growing delay after each failure
func (g *Gateway) runSymbol(mc *marketConn) {
	for {
		select {
		case <-mc.stop:
			return
		default:
		}

		mc.recreateMu.Lock()
		err := g.streamOnce(mc)
		mc.recreateMu.Unlock()

		select {
		case <-mc.stop:
			return
		default:
		}

		mc.mu.Lock()
		mc.reconnects++
		attempt := mc.reconnects
		mc.mu.Unlock()

		delay := time.Duration(attempt) * 2 * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		g.logger.Warn().Str("symbol", mc.symbol).Int("attempt", attempt).
			Err(err).Dur("retry_in", delay).Msg("market data stream lost")

		select {
		case <-mc.stop:
			return
		case <-time.After(delay):
		}
	}
}

// streamOnce dials, subscribes with a history back-fill, then reads until
// the socket dies or an unrecoverable protocol error arrives
func (g *Gateway) streamOnce(mc *marketConn) error {
	ws, _, err := websocket.DefaultDialer.Dial(g.endpointURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	mc.mu.Lock()
	mc.ws = ws
	mc.connected = true
	mc.connectedAt = time.Now()
	mc.subscriptionID = ""
	mc.mu.Unlock()

	defer func() {
		mc.mu.Lock()
		mc.connected = false
		mc.ws = nil
		mc.mu.Unlock()
		ws.Close()
	}()

	count := g.cfg.MaxHistory
	if count <= 0 {
		count = 100
	}
	req := ticksHistoryRequest{
		TicksHistory:    mc.symbol,
		Subscribe:       1,
		Count:           count,
		End:             "latest",
		Style:           "ticks",
		AdjustStartTime: 1,
	}
	if err := mc.writeJSON(req); err != nil {
		return fmt.Errorf("subscribe %s: %w", mc.symbol, err)
	}

	// Keep-alive pinger; the venue idles out around 120s
	pingerDone := make(chan struct{})
	defer close(pingerDone)
	go func() {
		interval := g.cfg.KeepAlive
		if interval <= 0 {
			interval = 90 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pingerDone:
				return
			case <-ticker.C:
				if err := mc.writeJSON(pingRequest{Ping: 1}); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-mc.stop:
			g.forget(mc)
			return nil
		default:
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			g.logger.Debug().Str("symbol", mc.symbol).Err(err).Msg("unparseable frame dropped")
			continue
		}

		if f.Error != nil {
			// "AlreadySubscribed" with a recoverable id keeps the stream;
			// anything else forces a full socket recreation
			if f.Error.Code == "AlreadySubscribed" && f.Subscription != nil && f.Subscription.ID != "" {
				mc.setSubscriptionID(f.Subscription.ID)
				continue
			}
			return fmt.Errorf("venue error %s: %s", f.Error.Code, f.Error.Message)
		}

		if f.Subscription != nil && f.Subscription.ID != "" {
			mc.setSubscriptionID(f.Subscription.ID)
		}

		switch f.MsgType {
		case "history", "ticks_history":
			if f.History != nil {
				g.emitHistory(mc, f.History)
			}
		case "tick":
			if f.Tick != nil {
				g.emitTick(mc, f.Tick.Quote, f.Tick.Epoch, false)
			}
		case "ping", "pong":
			// keep-alive echo
		}
	}
}

// emitHistory delivers the recovered buffer, oldest first, before any
// live tick from this socket
func (g *Gateway) emitHistory(mc *marketConn, h *historyReply) {
	n := len(h.Prices)
	if len(h.Times) < n {
		n = len(h.Times)
	}
	for i := 0; i < n; i++ {
		g.emitTick(mc, h.Prices[i], h.Times[i], true)
	}
	g.logger.Info().Str("symbol", mc.symbol).Int("ticks", n).Msg("history back-fill delivered")
}

// emitTick validates and forwards one tick. Non-finite or non-positive
// values never reach a consumer.
func (g *Gateway) emitTick(mc *marketConn, quote float64, epoch int64, snapshot bool) {
	if quote <= 0 || epoch <= 0 || math.IsNaN(quote) || math.IsInf(quote, 0) {
		return
	}

	mc.mu.Lock()
	mc.totalTicks++
	mc.lastTickAt = time.Now()
	mc.mu.Unlock()

	if g.onTick != nil {
		g.onTick(mc.symbol, ticks.NewTick(quote, epoch, g.pipDigits()), snapshot)
	}
}

// pipDigits is the quote precision used for digit derivation
func (g *Gateway) pipDigits() int {
	if g.cfg.PipDigits > 0 {
		return g.cfg.PipDigits
	}
	return 2
}

// forget cancels the tick subscription on a clean shutdown
func (g *Gateway) forget(mc *marketConn) {
	mc.mu.Lock()
	id := mc.subscriptionID
	mc.mu.Unlock()
	if id != "" {
		_ = mc.writeJSON(forgetRequest{Forget: id})
	}
}

func (mc *marketConn) setSubscriptionID(id string) {
	mc.mu.Lock()
	mc.subscriptionID = id
	mc.mu.Unlock()
}

// writeJSON serializes socket writes; gorilla allows one writer at a time
func (mc *marketConn) writeJSON(v interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.ws == nil {
		return fmt.Errorf("socket not connected")
	}
	return mc.ws.WriteJSON(v)
}
