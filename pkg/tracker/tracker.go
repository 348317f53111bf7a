package tracker

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// PriceHandler is called with every mid-price the tracker accepts.
type PriceHandler func(assetID string, mid float64)

// Tracker keeps the latest mid-price per instrument from venue order-book messages.
type Tracker struct {
	prices  map[string]float64
	onPrice PriceHandler
	logger  *logrus.Logger
	mu      sync.RWMutex
}

func New(logger *logrus.Logger) *Tracker {
	return &Tracker{
		prices: make(map[string]float64),
		logger: logger,
	}
}

// OnPrice registers a handler for accepted mid-prices.
func (t *Tracker) OnPrice(handler PriceHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPrice = handler
}

// Ingest applies one venue message and returns how many prices it updated.
// Three shapes are understood: an array of book snapshots, a price_change
// batch and a single book object. Anything else is ignored.
func (t *Tracker) Ingest(message []byte) int {
	if !gjson.ValidBytes(message) {
		t.logger.WithField("bytes", len(message)).Debug("Ignoring non-JSON venue message")
		return 0
	}
	msg := gjson.ParseBytes(message)

	switch {
	case msg.IsArray():
		applied := 0
		for _, book := range msg.Array() {
			applied += t.applyBook(book)
		}
		return applied
	case msg.Get("price_changes").IsArray():
		applied := 0
		for _, change := range msg.Get("price_changes").Array() {
			if t.set(change.Get("asset_id").String(), change.Get("best_bid").Float(), change.Get("best_ask").Float()) {
				applied++
			}
		}
		return applied
	case msg.Get("asset_id").Exists():
		if msg.Get("bids").Exists() || msg.Get("asks").Exists() {
			return t.applyBook(msg)
		}
		if t.set(msg.Get("asset_id").String(), msg.Get("best_bid").Float(), msg.Get("best_ask").Float()) {
			return 1
		}
	}
	return 0
}

func (t *Tracker) applyBook(book gjson.Result) int {
	bid := bestLevel(book.Get("bids"), true)
	ask := bestLevel(book.Get("asks"), false)
	if t.set(book.Get("asset_id").String(), bid, ask) {
		return 1
	}
	return 0
}

// bestLevel returns the highest bid or the lowest ask among the levels.
func bestLevel(levels gjson.Result, highest bool) float64 {
	var best float64
	for _, level := range levels.Array() {
		price := level.Get("price").Float()
		if price <= 0 {
			continue
		}
		if best == 0 || (highest && price > best) || (!highest && price < best) {
			best = price
		}
	}
	return best
}

func (t *Tracker) set(assetID string, bid, ask float64) bool {
	if assetID == "" || bid <= 0 || ask <= 0 {
		return false
	}
	mid := (bid + ask) / 2

	t.mu.Lock()
	t.prices[assetID] = mid
	handler := t.onPrice
	t.mu.Unlock()

	if handler != nil {
		handler(assetID, mid)
	}
	return true
}

// PriceOf returns the latest mid-price for an instrument; false when unknown.
func (t *Tracker) PriceOf(assetID string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	price, ok := t.prices[assetID]
	return price, ok && price > 0
}

// Retain drops every price except those for the given instruments.
func (t *Tracker) Retain(assetIDs ...string) {
	keep := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		keep[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.prices {
		if _, ok := keep[id]; !ok {
			delete(t.prices, id)
		}
	}
}

// Snapshot copies the price map.
func (t *Tracker) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.prices))
	for id, p := range t.prices {
		out[id] = p
	}
	return out
}
