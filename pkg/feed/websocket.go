package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingInterval   = 30 * time.Second
	handshakeTimeout      = 10 * time.Second
)

// MessageHandler receives every frame read from the connection, in arrival order.
type MessageHandler func(message []byte) error

// ConnectHandler runs after each successful dial, typically to subscribe.
type ConnectHandler func() error

// WebSocketClient keeps a websocket connection alive, redialing after a fixed
// delay for as long as it is running.
type WebSocketClient struct {
	name           string
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	conn           *websocket.Conn
	mu             sync.Mutex
	running        atomic.Bool
	connected      atomic.Bool
	redial         atomic.Bool
	reconnects     atomic.Int64
	stopCh         chan struct{}
	stopOnce       sync.Once
	handler        MessageHandler
	onConnect      ConnectHandler
	onReconnect    func()
	logger         *logrus.Logger
}

func NewWebSocketClient(name, url string, reconnectDelay time.Duration, logger *logrus.Logger) *WebSocketClient {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &WebSocketClient{
		name:           name,
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   DefaultPingInterval,
		stopCh:         make(chan struct{}),
		logger:         logger,
	}
}

func (ws *WebSocketClient) RegisterHandler(handler MessageHandler) {
	ws.handler = handler
}

func (ws *WebSocketClient) OnConnect(handler ConnectHandler) {
	ws.onConnect = handler
}

// OnReconnect registers a callback invoked before each redial.
func (ws *WebSocketClient) OnReconnect(fn func()) {
	ws.onReconnect = fn
}

func (ws *WebSocketClient) Connected() bool {
	return ws.connected.Load()
}

func (ws *WebSocketClient) Reconnects() int64 {
	return ws.reconnects.Load()
}

// Run connects and reads until Stop is called or ctx is done. Connection
// failures are retried after the reconnect delay without limit.
func (ws *WebSocketClient) Run(ctx context.Context) {
	ws.running.Store(true)
	log := ws.logger.WithField("feed", ws.name)

	for ws.isRunning() && ctx.Err() == nil {
		err := ws.session(ctx)
		if !ws.isRunning() || ctx.Err() != nil {
			break
		}
		if ws.redial.Swap(false) {
			log.Info("Redialing websocket to resubscribe")
			continue
		}
		if err != nil {
			log.WithError(err).Error("Websocket session ended")
		}

		attempt := ws.reconnects.Add(1)
		if ws.onReconnect != nil {
			ws.onReconnect()
		}
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   ws.reconnectDelay.String(),
		}).Warn("Reconnecting websocket")

		select {
		case <-ctx.Done():
		case <-ws.stopCh:
		case <-time.After(ws.reconnectDelay):
		}
	}
	log.Info("Websocket client stopped")
}

func (ws *WebSocketClient) session(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, ws.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	ws.connected.Store(true)
	defer ws.handleDisconnect(conn)

	// Stop may have raced the dial.
	if !ws.isRunning() {
		return nil
	}

	ws.logger.WithField("feed", ws.name).Info("Websocket connected")

	if ws.onConnect != nil {
		if err := ws.onConnect(); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ws.keepAlive(sessionCtx, conn)
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	return ws.readLoop(conn)
}

func (ws *WebSocketClient) readLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read websocket message: %w", err)
		}

		if ws.handler != nil {
			if err := ws.handler(message); err != nil {
				ws.logger.WithError(err).WithField("feed", ws.name).Error("Handler error")
			}
		}
	}
}

func (ws *WebSocketClient) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(ws.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(handshakeTimeout))
			ws.mu.Unlock()
			if err != nil {
				ws.logger.WithError(err).WithField("feed", ws.name).Error("Failed to send ping")
				conn.Close()
				return
			}
		}
	}
}

// WriteJSON sends v on the current connection.
func (ws *WebSocketClient) WriteJSON(v interface{}) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn == nil || !ws.connected.Load() {
		return fmt.Errorf("websocket not connected")
	}
	return ws.conn.WriteJSON(v)
}

// Reconnect drops the current connection; Run redials after the reconnect delay.
func (ws *WebSocketClient) Reconnect() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn != nil {
		ws.conn.Close()
	}
}

// Resubscribe drops the current connection and redials at once so OnConnect
// runs again. It is not counted as a reconnect. Without a live connection the
// next dial subscribes anyway and nothing is done.
func (ws *WebSocketClient) Resubscribe() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn == nil {
		return
	}
	ws.redial.Store(true)
	ws.conn.Close()
}

// Stop halts reconnection and closes the connection.
func (ws *WebSocketClient) Stop() {
	ws.running.Store(false)
	ws.stopOnce.Do(func() { close(ws.stopCh) })
	ws.Reconnect()
}

func (ws *WebSocketClient) isRunning() bool {
	select {
	case <-ws.stopCh:
		return false
	default:
		return ws.running.Load()
	}
}

func (ws *WebSocketClient) handleDisconnect(conn *websocket.Conn) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.connected.Store(false)
	conn.Close()
	if ws.conn == conn {
		ws.conn = nil
	}
}
