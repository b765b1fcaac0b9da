package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by a closed WSClient.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// BufferSize is the notification buffer per subscription. Notifications
	// that do not fit are dropped.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        256,
	}
}

type subscription struct {
	filter LogsFilter
	ch     chan LogNotification
}

type subscribeReply struct {
	id  int64
	err error
}

// WSClient implements LogSubscriber using gorilla/websocket. It reconnects
// with exponential backoff and renews every subscription afterwards.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	// connMu guards conn and serializes writes.
	conn   *websocket.Conn
	connMu sync.Mutex

	closed    atomic.Bool
	requestID atomic.Uint64

	// subs is keyed by the server-side subscription ID, pending by request ID.
	subs    map[int64]*subscription
	pending map[uint64]chan subscribeReply
	subsMu  sync.Mutex

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger *zap.Logger) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultWSConfig().BufferSize
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = DefaultWSConfig().SubscribeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.With(zap.String("component", "solana_ws")),
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]chan subscribeReply),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to transaction logs matching the filter.
func (c *WSClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	id, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	ch := make(chan LogNotification, c.config.BufferSize)
	c.subsMu.Lock()
	c.subs[id] = &subscription{filter: filter, ch: ch}
	c.subsMu.Unlock()

	c.logger.Debug("subscribed", zap.Int64("subscription", id), zap.Strings("mentions", filter.Mentions))
	return ch, nil
}

// subscribe sends logsSubscribe and waits for the subscription ID.
func (c *WSClient) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	reply := make(chan subscribeReply, 1)
	c.subsMu.Lock()
	c.pending[reqID] = reply
	c.subsMu.Unlock()
	defer func() {
		c.subsMu.Lock()
		delete(c.pending, reqID)
		c.subsMu.Unlock()
	}()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params:  filter.params(),
	}
	if err := c.write(req); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r.id, r.err
	case <-timer.C:
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *WSClient) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close closes the WebSocket connection and every subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// Channels are closed only after the reader stopped sending.
	c.wg.Wait()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	return nil
}

// readLoop reads messages and dispatches them until the client is closed.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnecting.Swap(true) {
				c.logger.Warn("reconnecting", zap.Duration("delay", reconnectDelay))
				c.wg.Add(1)
				go c.reconnect(reconnectDelay)
				reconnectDelay = min(reconnectDelay*2, c.config.MaxReconnectDelay)
			}
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("connection lost", zap.Error(err))
			c.dropConn(conn)
			continue
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// dropConn forgets a failed connection so it is never read again.
func (c *WSClient) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	if conn != nil && c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// sleep waits d and reports false if the client was closed meanwhile.
func (c *WSClient) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case <-timer.C:
		return true
	}
}

// reconnect dials again after delay and renews all subscriptions.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	if !c.sleep(delay) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Warn("reconnect failed", zap.Error(err))
		return
	}

	c.wg.Add(1)
	go c.resubscribeAll()
}

// resubscribeAll renews every subscription on the new connection. It runs
// outside readLoop, which has to deliver the confirmations.
func (c *WSClient) resubscribeAll() {
	defer c.wg.Done()

	c.subsMu.Lock()
	old := make(map[int64]*subscription, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.subsMu.Unlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		newID, err := c.subscribe(ctx, sub.filter)
		cancel()
		if err != nil {
			c.logger.Warn("resubscribe failed",
				zap.Int64("subscription", oldID), zap.Strings("mentions", sub.filter.Mentions), zap.Error(err))
			continue
		}

		c.subsMu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = sub
		c.subsMu.Unlock()
	}
}

// handleMessage routes a subscription reply or a logs notification.
func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("unparseable message", zap.Error(err))
		return
	}

	if msg.Method == "logsNotification" {
		c.handleLogsNotification(msg.Params)
		return
	}
	if msg.ID == nil {
		return
	}

	c.subsMu.Lock()
	reply, ok := c.pending[*msg.ID]
	c.subsMu.Unlock()
	if !ok {
		return
	}

	var r subscribeReply
	switch {
	case msg.Error != nil:
		r.err = msg.Error
	default:
		if err := json.Unmarshal(msg.Result, &r.id); err != nil {
			r.err = fmt.Errorf("subscription id: %w", err)
		}
	}
	select {
	case reply <- r:
	default:
	}
}

// handleLogsNotification delivers a notification without blocking the reader.
func (c *WSClient) handleLogsNotification(params *wsNotificationParams) {
	if params == nil {
		return
	}

	notif := LogNotification{
		Signature: params.Result.Value.Signature,
		Logs:      params.Result.Value.Logs,
		Err:       params.Result.Value.Err,
	}
	if params.Result.Context != nil {
		notif.Slot = params.Result.Context.Slot
	}

	c.subsMu.Lock()
	sub, ok := c.subs[params.Subscription]
	c.subsMu.Unlock()
	if !ok {
		return
	}

	select {
	case sub.ch <- notif:
	default:
		c.logger.Warn("subscriber too slow, notification dropped",
			zap.Int64("subscription", params.Subscription), zap.String("signature", notif.Signature))
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage is any server message: a reply carries ID, a notification Method.
type wsMessage struct {
	ID     *uint64               `json:"id"`
	Method string                `json:"method"`
	Result json.RawMessage       `json:"result"`
	Error  *RPCError             `json:"error"`
	Params *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
