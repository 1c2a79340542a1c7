package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derby-scoring-system/models"
)

func waitForSubscribers(t *testing.T, hub *Hub, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(topic) == n
	}, time.Second, 5*time.Millisecond)
}

func TestHub_PublishReachesTopicSubscribersOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	today := NewClient("t1", nil, hub, "2026-08-28")
	tomorrow := NewClient("t2", nil, hub, "2026-08-29")
	hub.Register(today)
	hub.Register(tomorrow)
	waitForSubscribers(t, hub, "2026-08-28", 1)
	waitForSubscribers(t, hub, "2026-08-29", 1)

	hub.Publish("2026-08-28", models.SyncEvent{
		Type:     models.EventLedgerUpdated,
		GameDate: "2026-08-28",
		Payload:  models.SyncMessage{FightNumber: 4},
	})

	select {
	case event := <-today.Send:
		assert.Equal(t, 4, event.Payload.FightNumber)
	case <-time.After(time.Second):
		t.Fatal("subscribed terminal never received the event")
	}

	select {
	case <-tomorrow.Send:
		t.Fatal("event leaked to another game-day topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	c := NewClient("t1", nil, hub, "2026-08-28")
	hub.Register(c)
	waitForSubscribers(t, hub, "2026-08-28", 1)

	hub.Unregister(c)
	waitForSubscribers(t, hub, "2026-08-28", 0)

	_, open := <-c.Send
	assert.False(t, open)
}

func TestHub_SlowSubscriberIsDisconnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	c := NewClient("slow", nil, hub, "2026-08-28")
	hub.Register(c)
	waitForSubscribers(t, hub, "2026-08-28", 1)

	// Nothing drains c.Send; once the buffer fills the hub must drop the
	// terminal instead of blocking the broadcast loop.
	for i := 0; i < sendBufferSize+1; i++ {
		hub.Publish("2026-08-28", models.SyncEvent{GameDate: "2026-08-28"})
	}
	waitForSubscribers(t, hub, "2026-08-28", 0)
}

func TestHub_MetricsAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := NewClient("t1", nil, hub, "2026-08-28")
	hub.Register(c)
	waitForSubscribers(t, hub, "2026-08-28", 1)

	metrics := hub.Metrics()
	assert.Equal(t, 1, metrics["active_terminals"])
	assert.Equal(t, 1, metrics["active_topics"])
	assert.Equal(t, int64(1), metrics["total_connections"])

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}
	assert.Equal(t, 0, hub.SubscriberCount("2026-08-28"))
}

func TestHub_RegisterAfterShutdownDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := NewClient("t1", nil, hub, "2026-08-28")
	hub.Register(c)
	waitForSubscribers(t, hub, "2026-08-28", 1)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	// The pumps' deferred unregister and any late joiner must return
	// instead of blocking on a loop that no longer runs.
	returned := make(chan struct{})
	go func() {
		hub.Unregister(c)
		hub.Register(NewClient("late", nil, hub, "2026-08-28"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Register/Unregister blocked after shutdown")
	}
	assert.Equal(t, 0, hub.SubscriberCount("2026-08-28"))
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()

	_, ok := rec.Last()
	assert.False(t, ok)

	rec.Publish("2026-08-28", models.SyncEvent{Type: models.EventEntriesUpdated})
	rec.Publish("2026-08-28", models.SyncEvent{Type: models.EventLedgerUpdated})

	assert.Equal(t, []string{"2026-08-28", "2026-08-28"}, rec.Topics())
	require.Len(t, rec.Events(), 2)

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, models.EventLedgerUpdated, last.Type)
}
