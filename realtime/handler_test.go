package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derby-scoring-system/models"
)

func dialTestHandler(t *testing.T, h *Handler) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHandler_JoinDeliversInitialSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	snapshot := func(gameDate string) (models.SyncMessage, error) {
		return models.SyncMessage{FightNumber: 11, BettingStatus: models.BettingStatusOpen}, nil
	}
	h := NewHandler(hub, snapshot, ctx)

	conn, teardown := dialTestHandler(t, h)
	defer teardown()

	require.NoError(t, conn.WriteJSON(JoinMessage{GameDate: "2026-08-28"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.SyncEvent
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, models.EventLedgerUpdated, event.Type)
	assert.Equal(t, "2026-08-28", event.GameDate)
	assert.Equal(t, 11, event.Payload.FightNumber)
}

func TestHandler_LiveBroadcastAfterJoin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	h := NewHandler(hub, nil, ctx)

	conn, teardown := dialTestHandler(t, h)
	defer teardown()

	require.NoError(t, conn.WriteJSON(JoinMessage{GameDate: "2026-08-28"}))
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("2026-08-28") == 1
	}, time.Second, 5*time.Millisecond)

	hub.Publish("2026-08-28", models.SyncEvent{
		Type:     models.EventOutcomeRecorded,
		GameDate: "2026-08-28",
		Payload:  models.SyncMessage{FightNumber: 2},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.SyncEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventOutcomeRecorded, event.Type)
	assert.Equal(t, 2, event.Payload.FightNumber)
}

func TestHandler_InitialSnapshotPrecedesLiveBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	snapshot := func(gameDate string) (models.SyncMessage, error) {
		return models.SyncMessage{FightNumber: 1}, nil
	}
	h := NewHandler(hub, snapshot, ctx)

	conn, teardown := dialTestHandler(t, h)
	defer teardown()

	require.NoError(t, conn.WriteJSON(JoinMessage{GameDate: "2026-08-28"}))

	// Broadcast the instant the subscription appears. The snapshot is queued
	// before registration, so it must still arrive first.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("2026-08-28") == 1
	}, time.Second, time.Millisecond)
	hub.Publish("2026-08-28", models.SyncEvent{
		Type:     models.EventOutcomeRecorded,
		GameDate: "2026-08-28",
		Payload:  models.SyncMessage{FightNumber: 2},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second models.SyncEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, models.EventLedgerUpdated, first.Type)
	assert.Equal(t, 1, first.Payload.FightNumber)
	assert.Equal(t, models.EventOutcomeRecorded, second.Type)
	assert.Equal(t, 2, second.Payload.FightNumber)
}

func TestHandler_Health(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	h := NewHandler(hub, nil, ctx)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "sync-channel", body["service"])
}
