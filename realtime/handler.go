package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"derby-scoring-system/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Terminals connect from operator LAN addresses; origin is enforced
		// upstream by the terminal token, not here.
		return true
	},
}

// SnapshotFunc loads the current full state for a game-day topic so a
// freshly joined terminal starts from the authoritative ledger.
type SnapshotFunc func(gameDate string) (models.SyncMessage, error)

// Handler serves the websocket side of the sync channel on its own
// listener, beside the fiber API.
type Handler struct {
	hub      *Hub
	snapshot SnapshotFunc
	ctx      context.Context
}

// NewHandler creates the websocket handler.
func NewHandler(hub *Hub, snapshot SnapshotFunc, ctx context.Context) *Handler {
	return &Handler{hub: hub, snapshot: snapshot, ctx: ctx}
}

// HandleWebSocket upgrades the connection, waits for the join message, and
// starts the client pumps. The first event a terminal receives is a full
// ledger_updated snapshot for its topic.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket upgrade error: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var join JoinMessage
	if err := conn.ReadJSON(&join); err != nil {
		log.Printf("⚠️  terminal join failed: %v", err)
		conn.Close()
		return
	}
	if join.GameDate == "" {
		join.GameDate = models.DateKey(time.Now())
	}
	conn.SetReadDeadline(time.Time{})

	c := NewClient(uuid.NewString(), conn, h.hub, join.GameDate)

	// Initial full snapshot, queued before the client is registered and the
	// pumps start: nothing can close c.Send yet, and the snapshot is
	// guaranteed to precede any live broadcast on the topic.
	if h.snapshot != nil {
		msg, err := h.snapshot(join.GameDate)
		if err != nil {
			log.Printf("⚠️  initial snapshot for %s failed: %v", join.GameDate, err)
		} else {
			c.TrySend(models.SyncEvent{
				Type:      models.EventLedgerUpdated,
				GameDate:  join.GameDate,
				Payload:   msg,
				Timestamp: time.Now(),
			})
		}
	}

	h.hub.Register(c)

	go c.WritePump(h.ctx)
	go c.ReadPump(h.ctx)
}

// HandleHealth reports hub liveness and counters.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"service": "sync-channel",
		"hub":     h.hub.Metrics(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
