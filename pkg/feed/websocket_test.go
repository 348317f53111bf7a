package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// newTestServer accepts connections, echoes a subscription acknowledgement
// followed by the given frames and then drops the connection.
func newTestServer(t *testing.T, frames ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var sessions atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		sessions.Add(1)

		var sub map[string]interface{}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &sessions
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketClient_ReconnectsAndResubscribes(t *testing.T) {
	srv, sessions := newTestServer(t, `{"n":1}`, `{"n":2}`)

	ws := NewWebSocketClient("test", wsURL(srv), 10*time.Millisecond, logrus.New())

	var mu sync.Mutex
	var received []string
	var subscribed atomic.Int32
	ws.OnConnect(func() error {
		subscribed.Add(1)
		return ws.WriteJSON(map[string]string{"type": "subscribe"})
	})
	ws.RegisterHandler(func(msg []byte) error {
		mu.Lock()
		received = append(received, string(msg))
		mu.Unlock()
		return nil
	})

	done := make(chan struct{})
	go func() {
		ws.Run(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for sessions.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ws.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if sessions.Load() < 3 {
		t.Fatalf("expected at least 3 sessions, got %d", sessions.Load())
	}
	if subscribed.Load() < 3 {
		t.Errorf("expected a subscription per session, got %d", subscribed.Load())
	}
	if ws.Reconnects() < 2 {
		t.Errorf("expected reconnects to be counted, got %d", ws.Reconnects())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) < 4 || received[0] != `{"n":1}` || received[1] != `{"n":2}` {
		t.Errorf("unexpected frames %v", received)
	}
}

func TestWebSocketClient_StopBeforeRun(t *testing.T) {
	ws := NewWebSocketClient("test", "ws://127.0.0.1:1", time.Millisecond, logrus.New())
	ws.Stop()

	done := make(chan struct{})
	go func() {
		ws.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately once stopped")
	}
}

func TestWebSocketClient_ContextCancel(t *testing.T) {
	ws := NewWebSocketClient("test", "ws://127.0.0.1:1", time.Hour, logrus.New())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		ws.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if ws.Connected() {
		t.Error("expected disconnected")
	}
}

func TestWebSocketClient_WriteWithoutConnection(t *testing.T) {
	ws := NewWebSocketClient("test", "ws://127.0.0.1:1", 0, logrus.New())
	if err := ws.WriteJSON(map[string]string{}); err == nil {
		t.Error("expected error writing without a connection")
	}
}

func TestWebSocketClient_ResubscribeRedialsWithoutReconnect(t *testing.T) {
	var sessions atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		sessions.Add(1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	// An hour-long delay fails the test if the redial waits for it.
	ws := NewWebSocketClient("test", wsURL(srv), time.Hour, logrus.New())
	var subscribed, reconnected atomic.Int32
	ws.OnConnect(func() error {
		subscribed.Add(1)
		return ws.WriteJSON(map[string]string{"type": "subscribe"})
	})
	ws.OnReconnect(func() { reconnected.Add(1) })

	done := make(chan struct{})
	go func() {
		ws.Run(context.Background())
		close(done)
	}()
	defer func() {
		ws.Stop()
		<-done
	}()

	waitFor := func(n int32) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for subscribed.Load() < n && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if subscribed.Load() < n {
			t.Fatalf("expected %d subscriptions, got %d", n, subscribed.Load())
		}
	}

	waitFor(1)
	ws.Resubscribe()
	waitFor(2)

	if sessions.Load() < 2 {
		t.Errorf("expected a second session, got %d", sessions.Load())
	}
	if ws.Reconnects() != 0 || reconnected.Load() != 0 {
		t.Errorf("resubscribe counted as reconnect: %d/%d", ws.Reconnects(), reconnected.Load())
	}
}

func TestWebSocketClient_ResubscribeWithoutConnection(t *testing.T) {
	ws := NewWebSocketClient("test", "ws://127.0.0.1:1", 0, logrus.New())
	ws.Resubscribe()
	if ws.redial.Load() {
		t.Error("redial should not be armed without a connection")
	}
}
