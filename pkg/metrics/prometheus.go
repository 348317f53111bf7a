package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the trader's Prometheus metrics.
type Recorder struct {
	probability   *prometheus.GaugeVec
	marketPrice   *prometheus.GaugeVec
	volatility    prometheus.Gauge
	opportunities *prometheus.CounterVec
	orders        *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		probability: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "updown_probability",
				Help: "Oracle probability per outcome side",
			},
			[]string{"side"},
		),
		marketPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "updown_market_price",
				Help: "Latest venue mid-price per outcome side",
			},
			[]string{"side"},
		),
		volatility: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "updown_volatility",
				Help: "Realized hourly volatility used by the oracle",
			},
		),
		opportunities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updown_opportunities_total",
				Help: "Opportunities detected per outcome side",
			},
			[]string{"side"},
		),
		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updown_orders_total",
				Help: "Orders placed by kind and result",
			},
			[]string{"kind", "result"},
		),
		reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updown_feed_reconnects_total",
				Help: "Websocket reconnect attempts per feed",
			},
			[]string{"feed"},
		),
	}
}

func (r *Recorder) SetProbability(side string, p float64) {
	r.probability.WithLabelValues(side).Set(p)
}

func (r *Recorder) SetMarketPrice(side string, p float64) {
	r.marketPrice.WithLabelValues(side).Set(p)
}

func (r *Recorder) SetVolatility(v float64) {
	r.volatility.Set(v)
}

func (r *Recorder) RecordOpportunity(side string) {
	r.opportunities.WithLabelValues(side).Inc()
}

// RecordOrder counts an order attempt; kind is entry, take_profit or stop_loss.
func (r *Recorder) RecordOrder(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.orders.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordReconnect(feed string) {
	r.reconnects.WithLabelValues(feed).Inc()
}
