package realtime

import (
	"context"
	"log"
	"sync"

	"derby-scoring-system/models"
)

type broadcastRequest struct {
	topic string
	event models.SyncEvent
}

// Hub maintains the set of connected terminals and fans sync events out to
// every subscriber of a game-day topic. One hub serves all game days; a
// terminal joins the topic for "today" on connect.
type Hub struct {
	// Subscribers by game-day topic
	topics   map[string]map[*Client]bool
	topicsMu sync.RWMutex

	broadcast  chan broadcastRequest
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	totalConnections int64
	totalEvents      int64
	metricsMu        sync.Mutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		broadcast:  make(chan broadcastRequest, 1000),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	log.Println("✓ Sync hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case req := <-h.broadcast:
			h.broadcastEvent(req.topic, req.event)
		}
	}
}

// Register adds a client to the hub. After shutdown it returns without
// registering so late joiners never block.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client from the hub. After shutdown the pumps'
// deferred unregisters return immediately; shutdown already released every
// client.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues an event for every subscriber of topic. Publication is
// fire-and-forget: a full broadcast buffer drops the event rather than
// blocking the caller, which is safe because every event is a full-replace
// snapshot superseded by the next one.
func (h *Hub) Publish(topic string, event models.SyncEvent) {
	select {
	case h.broadcast <- broadcastRequest{topic: topic, event: event}:
	default:
		log.Println("⚠️  Sync broadcast buffer full, dropping event")
	}
}

func (h *Hub) registerClient(c *Client) {
	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()

	subs := h.topics[c.Topic()]
	if subs == nil {
		subs = make(map[*Client]bool)
		h.topics[c.Topic()] = subs
	}
	subs[c] = true
	h.incrementConnections()

	log.Printf("terminal %s joined topic %s (subscribers: %d)", c.ID, c.Topic(), len(subs))
}

func (h *Hub) unregisterClient(c *Client) {
	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()

	if subs, ok := h.topics[c.Topic()]; ok {
		if _, ok := subs[c]; ok {
			delete(subs, c)
			close(c.Send)
			log.Printf("terminal %s left topic %s (subscribers: %d)", c.ID, c.Topic(), len(subs))
		}
		if len(subs) == 0 {
			delete(h.topics, c.Topic())
		}
	}
}

func (h *Hub) broadcastEvent(topic string, event models.SyncEvent) {
	h.topicsMu.RLock()
	clients := make([]*Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		clients = append(clients, c)
	}
	h.topicsMu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.TrySend(event) {
			sent++
		} else {
			// Buffer full — the terminal is too slow; disconnect it and let
			// it recover through reconnect + initial snapshot.
			log.Printf("⚠️  terminal %s buffer full, disconnecting", c.ID)
			go h.Unregister(c)
		}
	}

	if sent > 0 {
		h.incrementEvents()
	}
}

// SubscriberCount returns the number of terminals on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.topicsMu.RLock()
	defer h.topicsMu.RUnlock()
	return len(h.topics[topic])
}

// Metrics returns hub counters for the health endpoint.
func (h *Hub) Metrics() map[string]interface{} {
	h.topicsMu.RLock()
	active := 0
	for _, subs := range h.topics {
		active += len(subs)
	}
	topics := len(h.topics)
	h.topicsMu.RUnlock()

	h.metricsMu.Lock()
	totalConnections := h.totalConnections
	totalEvents := h.totalEvents
	h.metricsMu.Unlock()

	return map[string]interface{}{
		"active_terminals":  active,
		"active_topics":     topics,
		"total_connections": totalConnections,
		"total_events":      totalEvents,
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()

	log.Printf("🛑 Shutting down sync hub (%d topics)", len(h.topics))
	for topic, subs := range h.topics {
		for c := range subs {
			close(c.Send)
			delete(subs, c)
		}
		delete(h.topics, topic)
	}
}

func (h *Hub) incrementConnections() {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalConnections++
}

func (h *Hub) incrementEvents() {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalEvents++
}

// compile-time check: the hub is the production Publisher.
var _ Publisher = (*Hub)(nil)
