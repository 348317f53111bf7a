package polymarket

import (
	"context"
	"sync"
	"time"

	"github.com/gregtusar/updown/pkg/feed"
	"github.com/sirupsen/logrus"
)

const DefaultMarketStreamURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

type subscribeMessage struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// MarketStream subscribes to order-book updates for a set of outcome tokens.
type MarketStream struct {
	ws       *feed.WebSocketClient
	assetIDs []string
	mu       sync.Mutex
	logger   *logrus.Logger
}

func NewMarketStream(url string, assetIDs []string, reconnectDelay time.Duration, logger *logrus.Logger) *MarketStream {
	if url == "" {
		url = DefaultMarketStreamURL
	}
	s := &MarketStream{
		ws:       feed.NewWebSocketClient("polymarket", url, reconnectDelay, logger),
		assetIDs: assetIDs,
		logger:   logger,
	}
	s.ws.OnConnect(func() error {
		ids := s.AssetIDs()
		s.logger.WithField("assets", ids).Info("Subscribing to market channel")
		return s.ws.WriteJSON(subscribeMessage{AssetIDs: ids, Type: "market"})
	})
	return s
}

func (s *MarketStream) Client() *feed.WebSocketClient {
	return s.ws
}

// Subscribe forwards every raw frame to handler.
func (s *MarketStream) Subscribe(handler func([]byte)) {
	s.ws.RegisterHandler(func(message []byte) error {
		handler(message)
		return nil
	})
}

func (s *MarketStream) AssetIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.assetIDs))
	copy(out, s.assetIDs)
	return out
}

// SetAssets replaces the subscription. A live connection is redialed at once
// so the market channel only carries the new tokens.
func (s *MarketStream) SetAssets(assetIDs []string) {
	s.mu.Lock()
	s.assetIDs = assetIDs
	s.mu.Unlock()
	s.ws.Resubscribe()
}

func (s *MarketStream) Run(ctx context.Context) {
	s.ws.Run(ctx)
}

func (s *MarketStream) Stop() {
	s.ws.Stop()
}

func (s *MarketStream) Connected() bool {
	return s.ws.Connected()
}
