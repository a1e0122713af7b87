package stream

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradecore/tradecore/internal/runner"
)

const subscriberBuffer = 64

// Message is the JSON envelope written to websocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Server streams runner events to websocket clients.
type Server struct {
	hub      *Hub[runner.Event]
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewServer creates a websocket fan-out over the given event hub.
func NewServer(hub *Hub[runner.Event], log *zap.Logger) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Handle upgrades the connection and writes events until the client
// goes away.
func (s *Server) Handle(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(subscriberBuffer)
	defer s.hub.Unsubscribe(sub)

	for ev := range sub.C() {
		var msg Message
		switch e := ev.(type) {
		case runner.TradeEvent:
			msg = Message{Type: "trade", Data: e.Trade}
		case runner.TopOfBookEvent:
			msg = Message{Type: "top_of_book", Data: e.Book}
		default:
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
