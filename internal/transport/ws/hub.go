// Package ws streams event-bus events to WebSocket clients as JSON.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/transport/wire"
)

type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	types map[domain.EventType]bool
	send  chan []byte
}

func (c *Client) wants(t domain.EventType) bool {
	return len(c.types) == 0 || c.types[t]
}

// Hub fans bus events out to connected clients. A client that cannot keep
// up is dropped.
type Hub struct {
	bus domain.EventBus
	log zerolog.Logger

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(bus domain.EventBus, log zerolog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run delivers events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	events := h.bus.Subscribe(nil)
	defer h.bus.Unsubscribe(events)
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug().Int("clients", h.ClientCount()).Msg("WebSocket client registered")

		case c := <-h.unregister:
			h.remove(c)
			h.log.Debug().Int("clients", h.ClientCount()).Msg("WebSocket client unregistered")

		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(event)
		}
	}
}

func (h *Hub) broadcast(event domain.Event) {
	ev, ok := wire.EventFromDomain(event)
	if !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
