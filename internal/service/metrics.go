package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts order engine actions by outcome.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_orders_total",
			Help: "Total number of simulated order actions by action and result",
		},
		[]string{"action", "direction", "result"},
	)

	// LedgersActive is the number of session ledgers the desk holds.
	LedgersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "papertrade_ledgers_active",
			Help: "Session ledgers created by confirmed orders",
		},
	)

	// MarketCacheTotal counts market-data cache lookups.
	MarketCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_market_cache_total",
			Help: "Market data cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)

	// FeedTicksTotal counts feed updates written to the caches.
	FeedTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_feed_updates_total",
			Help: "Feed updates handled by kind",
		},
		[]string{"kind"},
	)
)
