package websocket

import (
	"context"
	"sync"

	"github.com/anjiri1684/crypto_academy/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn
}

// Hub fans wallet events out to every open connection of the event's user.
// Only the Run goroutine writes to connections.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        zerolog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[Conn]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		clients:    make(map[uuid.UUID]map[Conn]struct{}),
	}
}

// Register adds a connection. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connections reports how many connections userID has open.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Run serves registrations and delivers feed until ctx ends or feed closes.
// Remaining connections are closed on the way out.
func (h *Hub) Run(ctx context.Context, feed <-chan events.Event) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.mu.Lock()
			conns, ok := h.clients[c.UserID]
			if !ok {
				conns = make(map[Conn]struct{})
				h.clients[c.UserID] = conns
			}
			conns[c.Conn] = struct{}{}
			h.mu.Unlock()
			h.log.Debug().Str("user_id", c.UserID.String()).Msg("websocket client registered")
		case c := <-h.unregister:
			h.remove(c.UserID, c.Conn)
			h.log.Debug().Str("user_id", c.UserID.String()).Msg("websocket client unregistered")
		case ev, ok := <-feed:
			if !ok {
				return nil
			}
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev events.Event) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.clients[ev.UserID]))
	for conn := range h.clients[ev.UserID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Warn().Err(err).Str("user_id", ev.UserID.String()).Msg("dropping websocket client after write error")
			conn.Close()
			h.remove(ev.UserID, conn)
		}
	}
}

func (h *Hub) remove(userID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for conn := range conns {
			conn.Close()
		}
		delete(h.clients, userID)
	}
}
