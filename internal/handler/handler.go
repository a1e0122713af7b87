package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradecore/tradecore/internal/domain"
	"github.com/tradecore/tradecore/internal/marketdata"
	"github.com/tradecore/tradecore/internal/middleware"
	"github.com/tradecore/tradecore/internal/runner"
	"github.com/tradecore/tradecore/internal/stream"
)

// Handler exposes the engine over HTTP. Mutations go through the
// runner's command queue; queries read the engine and market data
// directly.
type Handler struct {
	runner    *runner.Runner
	publisher *marketdata.Publisher
	ws        *stream.Server
}

// NewHandler creates a new Handler.
func NewHandler(r *runner.Runner, publisher *marketdata.Publisher, ws *stream.Server) *Handler {
	return &Handler{
		runner:    r,
		publisher: publisher,
		ws:        ws,
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/order", h.PlaceOrder)
		v1.DELETE("/order/:id", h.CancelOrder)
		v1.PATCH("/order/:id", h.ModifyOrder)
		v1.GET("/trades", h.GetTrades)
		v1.GET("/marketdata/orderBook/L2", h.GetL2OrderBook)
		v1.GET("/marketdata/depth", h.GetDepth)
		v1.GET("/marketdata/top", h.GetTopOfBook)
		v1.GET("/marketdata/candles", h.GetCandles)
		v1.GET("/ws", h.ws.Handle)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "tradecore",
	})
}

// PlaceOrderRequest is the request body for placing an order.
type PlaceOrderRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Type     string `json:"type"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

func parseSide(s string) (domain.Side, bool) {
	switch domain.Side(s) {
	case domain.SideBuy, domain.SideSell:
		return domain.Side(s), true
	}
	return "", false
}

func parseOrderType(s string) (domain.OrderType, bool) {
	if s == "" {
		return domain.OrderTypeLimit, true
	}
	switch domain.OrderType(s) {
	case domain.OrderTypeLimit, domain.OrderTypeMarket, domain.OrderTypeStop:
		return domain.OrderType(s), true
	}
	return "", false
}

// PlaceOrder handles POST /v1/order. The order is validated and
// constructed here; matching happens asynchronously on the runner's
// worker, so the response confirms acceptance, not execution.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be 'buy' or 'sell'"})
		return
	}
	typ, ok := parseOrderType(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be 'limit', 'market' or 'stop'"})
		return
	}

	order, err := domain.NewOrder(req.Symbol, side, typ, req.Price, req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.runner.Push(runner.NewOrder{Order: order}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine is shut down"})
		return
	}
	middleware.CommandsTotal.WithLabelValues("new_order", order.Symbol).Inc()

	c.JSON(http.StatusAccepted, order)
}

// CancelOrder handles DELETE /v1/order/:id.
func (h *Handler) CancelOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if !h.runner.Push(runner.Cancel{OrderID: id}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine is shut down"})
		return
	}
	middleware.CommandsTotal.WithLabelValues("cancel", "").Inc()

	c.JSON(http.StatusAccepted, gin.H{"order_id": id})
}

// ModifyOrderRequest carries the optional new price and quantity.
type ModifyOrderRequest struct {
	Price    *int64 `json:"price"`
	Quantity *int64 `json:"quantity"`
}

// ModifyOrder handles PATCH /v1/order/:id.
func (h *Handler) ModifyOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req ModifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Price == nil && req.Quantity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price or quantity is required"})
		return
	}

	if !h.runner.Push(runner.Modify{OrderID: id, Price: req.Price, Quantity: req.Quantity}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine is shut down"})
		return
	}
	middleware.CommandsTotal.WithLabelValues("modify", "").Inc()

	c.JSON(http.StatusAccepted, gin.H{"order_id": id})
}

// GetTrades handles GET /v1/trades.
func (h *Handler) GetTrades(c *gin.Context) {
	symbol := c.Query("symbol")

	var orderID int64
	if idStr := c.Query("order_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order_id"})
			return
		}
		orderID = id
	}

	var since time.Time
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since format, use RFC3339"})
			return
		}
		since = parsed
	}

	trades := h.publisher.GetTrades(symbol, orderID, since)
	if trades == nil {
		trades = []domain.Trade{}
	}

	c.JSON(http.StatusOK, trades)
}

// GetL2OrderBook handles GET /v1/marketdata/orderBook/L2.
func (h *Handler) GetL2OrderBook(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	depthStr := c.DefaultQuery("depth", "10")
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = 10
	}

	snapshot := h.runner.Engine().L2Snapshot(symbol, depth)
	c.JSON(http.StatusOK, snapshot)
}

// GetDepth handles GET /v1/marketdata/depth. Unlike the L2 view this
// flattens per order: two orders at the same price produce two rows.
func (h *Handler) GetDepth(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	levelsStr := c.DefaultQuery("levels", "10")
	levels, err := strconv.Atoi(levelsStr)
	if err != nil || levels <= 0 {
		levels = 10
	}

	bids, asks := h.runner.Engine().Depth(symbol, levels)
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"bids":   bids,
		"asks":   asks,
	})
}

// GetTopOfBook handles GET /v1/marketdata/top.
func (h *Handler) GetTopOfBook(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	tob := domain.TopOfBook{Symbol: symbol}
	if book := h.runner.Engine().Book(symbol); book != nil {
		if bid := book.BestBid(); bid != nil {
			tob.BidPrice = bid.Price
			tob.BidQty = bid.RemainingQuantity
		}
		if ask := book.BestAsk(); ask != nil {
			tob.AskPrice = ask.Price
			tob.AskQty = ask.RemainingQuantity
		}
	}

	c.JSON(http.StatusOK, tob)
}

// GetCandles handles GET /v1/marketdata/candles.
func (h *Handler) GetCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		count = 100
	}

	candles := h.publisher.GetCandles(symbol, count)
	if candles == nil {
		candles = []*domain.Candlestick{}
	}

	c.JSON(http.StatusOK, candles)
}
