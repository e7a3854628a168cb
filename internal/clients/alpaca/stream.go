package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/events"
)

const (
	streamPath        = "/stream"
	streamWriteWait   = 10 * time.Second
	streamDialTimeout = 30 * time.Second

	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
)

// TradeUpdateHandler receives one parsed order event from the stream
type TradeUpdateHandler func(ctx context.Context, event string, order *domain.ExecutedOrder)

// StreamConfig holds trade-updates stream configuration. BaseURL is the
// broker API base the stream endpoint hangs off; it defaults to the
// paper host.
type StreamConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// TradeUpdateStream consumes the broker's order-event stream so fills
// reach settlement without waiting for the next poll. Lost connections
// reconnect in the background with capped exponential backoff.
type TradeUpdateStream struct {
	log          zerolog.Logger
	url          string
	apiKey       string
	apiSecret    string
	handler      TradeUpdateHandler
	eventManager *events.Manager

	mu           sync.RWMutex
	conn         *websocket.Conn
	connCtx      context.Context
	cancelFunc   context.CancelFunc
	connected    bool
	reconnecting bool
	stopped      bool
	stopChan     chan struct{}
}

// NewTradeUpdateStream creates a stream client delivering parsed order
// events to handler
func NewTradeUpdateStream(cfg StreamConfig, handler TradeUpdateHandler, eventManager *events.Manager, log zerolog.Logger) *TradeUpdateStream {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paperBaseURL
	}
	return &TradeUpdateStream{
		log:          log.With().Str("client", "alpaca_stream").Logger(),
		url:          baseURL + streamPath,
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		handler:      handler,
		eventManager: eventManager,
		stopChan:     make(chan struct{}),
	}
}

// streamEnvelope is the outer wire shape of every stream message
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeUpdateData struct {
	Event string          `json:"event"`
	Order json.RawMessage `json:"order"`
}

type authResult struct {
	Status string `json:"status"`
}

// Start connects and begins delivering updates. A failed initial
// connection keeps retrying in the background.
func (s *TradeUpdateStream) Start() error {
	if err := s.connect(); err != nil {
		s.log.Warn().Err(err).Msg("Initial stream connection failed, retrying in background")
		go s.reconnectLoop()
		return err
	}

	s.mu.RLock()
	ctx := s.connCtx
	s.mu.RUnlock()
	go s.readLoop(ctx)
	return nil
}

// Stop shuts the stream down. Safe to call more than once.
func (s *TradeUpdateStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
	s.teardown()
}

// IsConnected reports the current connection state
func (s *TradeUpdateStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *TradeUpdateStream) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), streamDialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial trade-updates stream: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	if err := s.authenticate(connCtx, conn); err != nil {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "authentication failed")
		return err
	}

	s.conn = conn
	s.connCtx = connCtx
	s.cancelFunc = cancel
	s.connected = true

	if s.eventManager != nil {
		s.eventManager.Emit(events.StreamConnected, "alpaca_stream", map[string]interface{}{"url": s.url})
	}
	s.log.Info().Str("url", s.url).Msg("Trade-updates stream connected")
	return nil
}

// authenticate sends the key handshake and the trade_updates listen
// request. The server replies asynchronously; a rejected key surfaces
// through the authorization message in the read loop.
func (s *TradeUpdateStream) authenticate(ctx context.Context, conn *websocket.Conn) error {
	messages := []interface{}{
		map[string]interface{}{
			"action": "authenticate",
			"data":   map[string]string{"key_id": s.apiKey, "secret_key": s.apiSecret},
		},
		map[string]interface{}{
			"action": "listen",
			"data":   map[string][]string{"streams": {"trade_updates"}},
		},
	}

	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal stream message: %w", err)
		}

		writeCtx, cancel := context.WithTimeout(ctx, streamWriteWait)
		err = conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to send stream message: %w", err)
		}
	}
	return nil
}

// teardown cancels the read context, closes the connection and emits
// the disconnect event once per established connection
func (s *TradeUpdateStream) teardown() {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	if s.conn != nil {
		s.conn.Close(websocket.StatusNormalClosure, "")
		s.conn = nil
	}
	s.connCtx = nil
	s.mu.Unlock()

	if wasConnected && s.eventManager != nil {
		s.eventManager.Emit(events.StreamDisconnect, "alpaca_stream", map[string]interface{}{"url": s.url})
	}
}

func (s *TradeUpdateStream) readLoop(ctx context.Context) {
	defer func() {
		s.teardown()
		s.mu.RLock()
		stopped := s.stopped
		s.mu.RUnlock()
		if !stopped {
			go s.reconnectLoop()
		}
	}()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				s.log.Info().Int("status", int(status)).Msg("Stream closed by broker")
			case ctx.Err() != nil:
				s.log.Debug().Msg("Stream read cancelled")
			default:
				s.log.Error().Err(err).Msg("Stream read failed")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		if err := s.handleMessage(ctx, message); err != nil {
			s.log.Error().Err(err).Msg("Failed to handle stream message")
		}
	}
}

func (s *TradeUpdateStream) handleMessage(ctx context.Context, message []byte) error {
	var env streamEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fmt.Errorf("failed to parse stream envelope: %w", err)
	}

	switch env.Stream {
	case "authorization":
		var auth authResult
		if err := json.Unmarshal(env.Data, &auth); err != nil {
			return fmt.Errorf("failed to parse authorization reply: %w", err)
		}
		if auth.Status != "authorized" {
			s.log.Error().Str("status", auth.Status).Msg("Stream authorization rejected")
		}
		return nil
	case "listening":
		s.log.Debug().Msg("Stream subscription confirmed")
		return nil
	case "trade_updates":
	default:
		s.log.Debug().Str("stream", env.Stream).Msg("Ignoring unrecognized stream message")
		return nil
	}

	var update tradeUpdateData
	if err := json.Unmarshal(env.Data, &update); err != nil {
		return fmt.Errorf("failed to parse trade update: %w", err)
	}

	order, err := parseOrder(update.Order)
	if err != nil {
		return err
	}

	s.log.Debug().
		Str("event", update.Event).
		Str("order_id", order.OrderID).
		Str("status", string(order.Status)).
		Msg("Trade update received")

	if s.handler != nil {
		s.handler(ctx, update.Event, order)
	}
	return nil
}

func (s *TradeUpdateStream) reconnectLoop() {
	s.mu.Lock()
	if s.reconnecting || s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	for attempt := 1; ; attempt++ {
		delay := backoffDelay(attempt)
		s.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting trade-updates stream")

		select {
		case <-time.After(delay):
		case <-s.stopChan:
			return
		}

		if err := s.connect(); err != nil {
			s.log.Error().Err(err).Int("attempt", attempt).Msg("Stream reconnection failed")
			continue
		}

		s.mu.RLock()
		ctx := s.connCtx
		s.mu.RUnlock()
		go s.readLoop(ctx)
		return
	}
}

func backoffDelay(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
