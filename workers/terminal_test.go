package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derby-scoring-system/models"
)

func testSnapshot(fightNumber int) models.SyncMessage {
	return models.SyncMessage{
		FightNumber: fightNumber,
		Fights: []models.FightOutcome{
			{ID: "f1", GameDate: "2026-08-28", LegNumber: fightNumber, LegBand: "101", Result: models.ResultWin},
		},
		BettingStatus: models.BettingStatusOpen,
	}
}

func TestTerminalSession_ApplySnapshotIdempotent(t *testing.T) {
	sess := NewTerminalSession(TerminalConfig{GameDate: "2026-08-28"})

	msg := testSnapshot(3)
	sess.ApplySnapshot(msg)
	first := sess.State()

	// Duplicate delivery (push and poll racing) must be harmless.
	sess.ApplySnapshot(msg)
	assert.Equal(t, first, sess.State())
	assert.Equal(t, 3, sess.State().FightNumber)
}

func TestTerminalSession_MirrorRoundTrip(t *testing.T) {
	mirror := filepath.Join(t.TempDir(), "ledger.json")

	sess := NewTerminalSession(TerminalConfig{
		GameDate:      "2026-08-28",
		MirrorPath:    mirror,
		FlushDebounce: time.Hour, // keep the flush out of this test
	})
	sess.RecordLocal(func(m *models.SyncMessage) {
		m.FightNumber = 5
		m.Fights = testSnapshot(5).Fights
	})

	// A fresh session (a reload with the server down) restores from the
	// mirror alone.
	restored := NewTerminalSession(TerminalConfig{GameDate: "2026-08-28", MirrorPath: mirror})
	require.NoError(t, restored.LoadMirror())
	assert.Equal(t, 5, restored.State().FightNumber)
	assert.Equal(t, sess.State().Fights, restored.State().Fights)
}

func TestTerminalSession_LoadMirrorWithoutPath(t *testing.T) {
	sess := NewTerminalSession(TerminalConfig{GameDate: "2026-08-28"})
	assert.NoError(t, sess.LoadMirror())
}

func TestTerminalSession_DebouncedFlushCoalesces(t *testing.T) {
	var flushes int32
	var lastFightNumber int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/game-days/today/fights", r.URL.Path)
		var body struct {
			FightNumber int `json:"fight_number"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		atomic.AddInt32(&flushes, 1)
		atomic.StoreInt32(&lastFightNumber, int32(body.FightNumber))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sess := NewTerminalSession(TerminalConfig{
		APIBaseURL:    srv.URL,
		GameDate:      "2026-08-28",
		FlushDebounce: 50 * time.Millisecond,
	})

	// Three rapid mutations coalesce into a single server write carrying the
	// final state.
	for i := 1; i <= 3; i++ {
		n := i
		sess.RecordLocal(func(m *models.SyncMessage) { m.FightNumber = n })
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&flushes) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&lastFightNumber))

	// No further writes arrive once the timer has fired.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&flushes))
}

func TestTerminalSession_PollOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/game-days/today/sync", r.URL.Path)
		assert.Equal(t, "2026-08-28", r.URL.Query().Get("game_date"))
		json.NewEncoder(w).Encode(testSnapshot(9))
	}))
	defer srv.Close()

	sess := NewTerminalSession(TerminalConfig{APIBaseURL: srv.URL, GameDate: "2026-08-28"})

	status, err := sess.pollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 9, sess.State().FightNumber)

	// Polling the same data again leaves the state untouched.
	status, err = sess.pollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 9, sess.State().FightNumber)
}

func TestTerminalSession_ReconnectBudgetResetsPerOutage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var sessions int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var join map[string]string
		require.NoError(t, conn.ReadJSON(&join))
		atomic.AddInt32(&sessions, 1)

		// One snapshot, then drop the connection: every session is healthy
		// but short-lived.
		conn.WriteJSON(models.SyncEvent{
			Type:     models.EventLedgerUpdated,
			GameDate: join["game_date"],
			Payload:  testSnapshot(int(atomic.LoadInt32(&sessions))),
		})
	}))
	defer srv.Close()

	sess := NewTerminalSession(TerminalConfig{
		APIBaseURL:   srv.URL, // unused; poll interval keeps the poller idle
		WSURL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		GameDate:     "2026-08-28",
		PollInterval: time.Hour,
	})
	sess.pushBackoff = Backoff{Base: time.Millisecond, Cap: 2 * time.Millisecond, MaxAttempts: 5}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.Start(ctx)

	// Far more reconnects than the 5-attempt cap: each completed join
	// restores the full retry budget, so ordinary drops never strand the
	// terminal on polling alone.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sessions) >= 12
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	sess.Stop()
	assert.GreaterOrEqual(t, sess.State().FightNumber, 1)
}

func TestTerminalSession_ReconnectGivesUpAfterConsecutiveFailures(t *testing.T) {
	// The endpoint never upgrades, so no join ever completes and the budget
	// is never restored.
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sess := NewTerminalSession(TerminalConfig{
		APIBaseURL:   srv.URL,
		WSURL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		GameDate:     "2026-08-28",
		PollInterval: time.Hour,
	})
	sess.pushBackoff = Backoff{Base: time.Millisecond, Cap: 2 * time.Millisecond, MaxAttempts: 5}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.Start(ctx)

	// Initial dial plus five retries, then polling only.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&dials) == 6
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(6), atomic.LoadInt32(&dials))
}

func TestTerminalSession_PollOnceSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sess := NewTerminalSession(TerminalConfig{APIBaseURL: srv.URL, GameDate: "2026-08-28"})

	status, err := sess.pollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, 0, sess.State().FightNumber)
}
