package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tradecore/tradecore/internal/handler"
	"github.com/tradecore/tradecore/internal/marketdata"
	"github.com/tradecore/tradecore/internal/middleware"
	"github.com/tradecore/tradecore/internal/runner"
	"github.com/tradecore/tradecore/internal/stream"
)

const channelBufferSize = 4096

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func main() {
	log, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting tradecore")

	// --- Core components ---

	// Runner owns the engine and serializes all mutations.
	run := runner.New(log)

	if maxQty := os.Getenv("MAX_ORDER_QTY"); maxQty != "" {
		n, err := strconv.ParseInt(maxQty, 10, 64)
		if err != nil || n <= 0 {
			log.Fatal("invalid MAX_ORDER_QTY", zap.String("value", maxQty))
		}
		run.Engine().SetMaxOrderQty(n)
	}

	// Market data publisher (trade log, candlesticks)
	publisher := marketdata.NewPublisher(log, channelBufferSize)
	publisher.Start()

	// Websocket fan-out of the event stream
	hub := stream.NewHub[runner.Event]()
	ws := stream.NewServer(hub, log)

	// --- Event pump ---
	//
	// HTTP producers → [inbound queue] → Runner worker → Engine → Books
	//                                        ↓
	//        pump ← poll ← [outbound queue] ←
	//          ↓
	//   marketdata.Publisher + stream.Hub + metrics
	pumpDone := make(chan struct{})
	go func() {
		for {
			ev, ok := run.Poll()
			if !ok {
				select {
				case <-pumpDone:
					return
				case <-time.After(time.Millisecond):
				}
				continue
			}

			switch e := ev.(type) {
			case runner.TradeEvent:
				select {
				case publisher.TradeIn <- e.Trade:
				default:
					log.Warn("market data channel full, dropping trade",
						zap.String("trade_id", e.Trade.TradeID))
				}
				middleware.TradesTotal.WithLabelValues(e.Trade.Symbol).Inc()
				middleware.TradedVolume.WithLabelValues(e.Trade.Symbol).Add(float64(e.Trade.Quantity))
			case runner.TopOfBookEvent:
				middleware.TopOfBookPrice.WithLabelValues(e.Book.Symbol, "bid").Set(float64(e.Book.BidPrice))
				middleware.TopOfBookPrice.WithLabelValues(e.Book.Symbol, "ask").Set(float64(e.Book.AskPrice))
			}
			hub.Broadcast(ev)

			in, out := run.QueueDepths()
			middleware.RunnerQueueDepth.WithLabelValues("inbound").Set(float64(in))
			middleware.RunnerQueueDepth.WithLabelValues("outbound").Set(float64(out))
		}
	}()

	// --- HTTP Server ---
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	r := gin.Default()
	r.Use(middleware.PrometheusMiddleware())

	h := handler.NewHandler(run, publisher, ws)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// --- Metrics Server ---
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "9090"
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + metricsPort,
		Handler: metricsMux,
	}

	go func() {
		log.Info("metrics server listening", zap.String("port", metricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		log.Info("http server listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown error", zap.Error(err))
	}

	// Stop producers first, then the runner, then drain consumers.
	run.Stop()
	close(pumpDone)
	publisher.Stop()

	log.Info("tradecore stopped")
}
