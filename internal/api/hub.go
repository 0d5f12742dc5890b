package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chidori-ai/chidori/internal/cgraph"
)

// wsMessage is one event pushed to a connected client.
type wsMessage struct {
	Type               string `json:"type"`
	ChronologyID       string `json:"chronology_id,omitempty"`
	ParentChronologyID string `json:"parent_chronology_id,omitempty"`
	OperationCount     int    `json:"operation_count,omitempty"`
	Timestamp          string `json:"timestamp"`
}

// client is one connected WebSocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan wsMessage
}

// Hub fans every cgraph.Event out to connected WebSocket clients. It
// implements cgraph.Observer so registering it with a Graph is all
// that's needed to start streaming.
//
// Grounded on
// go/internal/application/observer/websocket_observer.go's
// WebSocketHub: register/unregister/broadcast channels owned by a
// single goroutine (Run), each client holding its own buffered send
// channel so one slow reader never blocks the others.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan wsMessage
	clients    map[*client]struct{}
}

// NewHub returns a Hub; call Run in its own goroutine before use.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan wsMessage, 64),
		clients:    make(map[*client]struct{}),
	}
}

// Run owns Hub.clients and must run in exactly one goroutine for the
// Hub's lifetime.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop rather than block the hub.
					log.Warn().Msg("websocket client send buffer full, dropping message")
				}
			}
		}
	}
}

// Name identifies this observer to the ExecutionGraph.
func (h *Hub) Name() string { return "websocket-hub" }

// OnEvent translates a cgraph.Event into a wsMessage and enqueues it
// for broadcast. Never blocks: the broadcast channel is buffered and
// Run drains it continuously.
func (h *Hub) OnEvent(_ context.Context, event cgraph.Event) {
	msg := wsMessage{
		Type:      string(event.Type),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if event.State != nil {
		msg.ChronologyID = event.State.ChronologyID
		msg.ParentChronologyID = event.State.ParentStateChronologyID
		msg.OperationCount = len(event.State.OperationByID)
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Warn().Msg("websocket hub broadcast channel full, dropping event")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin is not enforceable generically across deployments;
	// callers that need origin checks should front this with their own
	// reverse proxy policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleEventStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &client{conn: conn, send: make(chan wsMessage, 16)}
	s.hub.register <- cl
	defer func() {
		s.hub.unregister <- cl
		conn.Close()
	}()

	// Drain (and discard) client reads so ping/pong and close frames
	// are processed; this endpoint is write-only from the server's
	// side.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.unregister <- cl
				return
			}
		}
	}()

	for msg := range cl.send {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
