package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gregtusar/updown/pkg/feed"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultStreamURL = "wss://stream.binance.com:9443/ws"
	DefaultSymbol    = "BTCUSDT"
	DefaultInterval  = "1h"
)

// KlineStream delivers candle updates for one symbol and interval.
type KlineStream struct {
	ws     *feed.WebSocketClient
	logger *logrus.Logger
}

// StreamURL builds the raw kline stream URL, e.g. .../ws/btcusdt@kline_1h.
func StreamURL(baseURL, symbol, interval string) string {
	return fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(baseURL, "/"), strings.ToLower(symbol), interval)
}

func NewKlineStream(baseURL, symbol, interval string, reconnectDelay time.Duration, logger *logrus.Logger) *KlineStream {
	return &KlineStream{
		ws:     feed.NewWebSocketClient("binance", StreamURL(baseURL, symbol, interval), reconnectDelay, logger),
		logger: logger,
	}
}

// Client exposes the underlying websocket client.
func (k *KlineStream) Client() *feed.WebSocketClient {
	return k.ws
}

func (k *KlineStream) Run(ctx context.Context) {
	k.ws.Run(ctx)
}

func (k *KlineStream) Stop() {
	k.ws.Stop()
}

func (k *KlineStream) Connected() bool {
	return k.ws.Connected()
}

// Subscribe registers the handler for well-formed candle ticks. Malformed
// frames are dropped here.
func (k *KlineStream) Subscribe(handler func(models.CandleTick)) {
	k.ws.RegisterHandler(func(message []byte) error {
		tick, ok := ParseKline(message)
		if !ok {
			k.logger.WithField("feed", "binance").Debug("Dropping malformed kline frame")
			return nil
		}
		handler(tick)
		return nil
	})
}

// ParseKline decodes a kline event. It reports false for anything that is not
// a complete, positive candle with a valid time window.
func ParseKline(message []byte) (models.CandleTick, bool) {
	if !gjson.ValidBytes(message) {
		return models.CandleTick{}, false
	}
	k := gjson.GetBytes(message, "k")
	if !k.Exists() {
		return models.CandleTick{}, false
	}

	tick := models.CandleTick{
		Open:      k.Get("o").Float(),
		Close:     k.Get("c").Float(),
		High:      k.Get("h").Float(),
		Low:       k.Get("l").Float(),
		StartTime: time.UnixMilli(k.Get("t").Int()),
		CloseTime: time.UnixMilli(k.Get("T").Int()),
	}
	if tick.Open <= 0 || tick.Close <= 0 || tick.High <= 0 || tick.Low <= 0 {
		return models.CandleTick{}, false
	}
	if !tick.CloseTime.After(tick.StartTime) {
		return models.CandleTick{}, false
	}
	return tick, true
}
