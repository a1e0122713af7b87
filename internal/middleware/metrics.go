package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// CommandsTotal counts commands pushed to the runner by kind.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_commands_total",
			Help: "Total number of commands pushed to the runner",
		},
		[]string{"kind", "symbol"},
	)

	// TradesTotal counts executed trades.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Total number of trades by symbol",
		},
		[]string{"symbol"},
	)

	// TradedVolume accumulates traded quantity.
	TradedVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_traded_volume",
			Help: "Total traded quantity by symbol",
		},
		[]string{"symbol"},
	)

	// TopOfBookPrice tracks the latest best bid/ask per symbol.
	TopOfBookPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_top_of_book_price",
			Help: "Latest best price by symbol and side",
		},
		[]string{"symbol", "side"},
	)

	// RunnerQueueDepth tracks the runner's queue lengths.
	RunnerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_runner_queue_depth",
			Help: "Current runner queue depth",
		},
		[]string{"queue"},
	)
)

// PrometheusMiddleware records request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}
