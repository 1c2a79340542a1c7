package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"derby-scoring-system/models"
)

// TerminalConfig wires one operator terminal to the scoring server.
type TerminalConfig struct {
	APIBaseURL string
	WSURL      string
	GameDate   string
	Token      string
	// MirrorPath, when set, receives a synchronous JSON copy of the local
	// state on every local mutation so a reload survives a dead server.
	MirrorPath string

	PollInterval  time.Duration // default 5s
	FlushDebounce time.Duration // default 1s
}

// TerminalSession is the terminal side of the sync channel: a websocket
// subscription with capped reconnect backoff, an independent polling
// fallback, and a debounced flush of local mutations. Both inbound paths
// apply full-replace snapshots, so duplicates and out-of-order delivery
// are harmless.
type TerminalSession struct {
	cfg    TerminalConfig
	client *http.Client

	mu    sync.Mutex
	state models.SyncMessage

	foreground  bool
	pollBackoff Backoff
	pushBackoff Backoff

	flushMu    sync.Mutex
	flushTimer *time.Timer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTerminalSession(cfg TerminalConfig) *TerminalSession {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.FlushDebounce <= 0 {
		cfg.FlushDebounce = time.Second
	}
	if cfg.GameDate == "" {
		cfg.GameDate = models.DateKey(time.Now())
	}
	return &TerminalSession{
		cfg:        cfg,
		client:     &http.Client{Timeout: 10 * time.Second},
		foreground: true,
		// 429 handling: delay = base × 2^attempt, attempt capped at 3.
		pollBackoff: Backoff{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 3},
		pushBackoff: Backoff{Base: 500 * time.Millisecond, Cap: 5 * time.Second, MaxAttempts: 5},
	}
}

// Start launches the push subscription and the polling fallback. They are
// independently scheduled and never serialize against each other.
func (t *TerminalSession) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		t.runPushLoop(ctx)
	}()
	go func() {
		defer t.wg.Done()
		t.runPollLoop(ctx)
	}()
}

// Stop tears down the subscription and halts the poll timer. In-flight
// server-side work is unaffected.
func (t *TerminalSession) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.flushMu.Lock()
	if t.flushTimer != nil {
		t.flushTimer.Stop()
	}
	t.flushMu.Unlock()
	t.wg.Wait()
}

// State returns a copy of the terminal's current view.
func (t *TerminalSession) State() models.SyncMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetForeground suspends polling entirely while the terminal page is
// backgrounded and resumes it on foregrounding. The push channel is
// unaffected.
func (t *TerminalSession) SetForeground(fg bool) {
	t.mu.Lock()
	t.foreground = fg
	t.mu.Unlock()
}

func (t *TerminalSession) isForeground() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.foreground
}

// ApplySnapshot overwrites local state wholesale. Applying the same message
// twice leaves the state identical, which is what makes the dual channels
// safe without sequencing.
func (t *TerminalSession) ApplySnapshot(msg models.SyncMessage) {
	t.mu.Lock()
	t.state = msg
	t.mu.Unlock()
}

// RecordLocal applies a local mutation, mirrors it synchronously, and arms
// the debounced flush. Several fights recorded in quick succession coalesce
// into one server write.
func (t *TerminalSession) RecordLocal(mutate func(*models.SyncMessage)) {
	t.mu.Lock()
	mutate(&t.state)
	t.state.LastUpdate = time.Now()
	snapshot := t.state
	t.mu.Unlock()

	t.writeMirror(snapshot)
	t.armFlush()
}

func (t *TerminalSession) armFlush() {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	if t.flushTimer != nil {
		t.flushTimer.Stop()
	}
	t.flushTimer = time.AfterFunc(t.cfg.FlushDebounce, t.Flush)
}

// Flush writes the full ledger and counter to the server. A failed flush is
// only logged: the mirror already holds the operator's state and the next
// mutation re-arms the timer.
func (t *TerminalSession) Flush() {
	t.mu.Lock()
	payload := struct {
		GameDate    string                `json:"game_date"`
		Fights      []models.FightOutcome `json:"fights"`
		FightNumber int                   `json:"fight_number"`
	}{t.cfg.GameDate, t.state.Fights, t.state.FightNumber}
	t.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Terminal] flush marshal failed: %v", err)
		return
	}

	req, err := http.NewRequest("POST", t.cfg.APIBaseURL+"/game-days/today/fights", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Terminal] flush request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		log.Printf("⚠️  [Terminal] flush failed, state kept in mirror: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️  [Terminal] flush returned status %d", resp.StatusCode)
	}
}

// writeMirror persists the local-storage analog. Best effort by design.
func (t *TerminalSession) writeMirror(msg models.SyncMessage) {
	if t.cfg.MirrorPath == "" {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := os.WriteFile(t.cfg.MirrorPath, data, 0o644); err != nil {
		log.Printf("[Terminal] mirror write failed: %v", err)
	}
}

// LoadMirror restores the last mirrored state, used after a reload while
// the server is unreachable.
func (t *TerminalSession) LoadMirror() error {
	if t.cfg.MirrorPath == "" {
		return nil
	}
	data, err := os.ReadFile(t.cfg.MirrorPath)
	if err != nil {
		return err
	}
	var msg models.SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	t.ApplySnapshot(msg)
	return nil
}

// runPushLoop keeps a websocket subscription alive with capped reconnect
// backoff: 5 attempts, doubling from 1s up to a 5s delay. The attempt budget
// is per outage: a completed join handshake resets it, so only 5 consecutive
// failures exhaust the cap and leave the terminal on the polling fallback
// alone.
func (t *TerminalSession) runPushLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := t.subscribeOnce(ctx, t.pushBackoff.Reset)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[Terminal] push channel dropped: %v", err)
		}

		if t.pushBackoff.Exhausted() {
			log.Println("⚠️  [Terminal] push channel gave up after 5 attempts, polling only")
			return
		}
		delay := t.pushBackoff.Next()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// subscribeOnce runs one websocket session. onJoined fires after the join
// handshake is written, marking the connection healthy.
func (t *TerminalSession) subscribeOnce(ctx context.Context, onJoined func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"game_date": t.cfg.GameDate}); err != nil {
		return err
	}
	if onJoined != nil {
		onJoined()
	}
	log.Printf("✓ [Terminal] joined topic %s", t.cfg.GameDate)

	// Close the connection when the session stops so the read below unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.SyncEvent
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		// Full replace, regardless of event type or arrival order.
		t.ApplySnapshot(event.Payload)
	}
}

// runPollLoop is the resilient fallback: a full-state fetch every
// PollInterval while foregrounded. 429 suspends the timer and backs off
// exponentially; every other failure is logged, resets the backoff, and
// polling simply continues.
func (t *TerminalSession) runPollLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.isForeground() {
				continue
			}

			status, err := t.pollOnce(ctx)
			switch {
			case err == nil && status == http.StatusOK:
				t.pollBackoff.Reset()

			case status == http.StatusTooManyRequests:
				// Suspend the timer entirely while backing off; the pending
				// debounced write is never dropped by rate limiting.
				delay := t.pollBackoff.Next()
				log.Printf("[Terminal] rate limited, backing off %s (attempt %d)", delay, t.pollBackoff.Attempts())
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				ticker.Reset(t.cfg.PollInterval)

			case status == http.StatusUnauthorized:
				log.Println("[Terminal] poll unauthorized, continuing")
				t.pollBackoff.Reset()

			case status >= http.StatusInternalServerError || err != nil:
				log.Printf("[Terminal] poll failed (status %d): %v", status, err)
				t.pollBackoff.Reset()

			default:
				t.pollBackoff.Reset()
			}
		}
	}
}

// pollOnce fetches the full snapshot and replaces local state only when the
// fight list or counter actually differ — a render optimization, not a
// correctness requirement.
func (t *TerminalSession) pollOnce(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/game-days/today/sync?game_date=%s", t.cfg.APIBaseURL, t.cfg.GameDate)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	var msg models.SyncMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return resp.StatusCode, err
	}

	t.mu.Lock()
	changed := msg.FightNumber != t.state.FightNumber ||
		!reflect.DeepEqual(msg.Fights, t.state.Fights)
	if changed {
		t.state = msg
	}
	t.mu.Unlock()

	return resp.StatusCode, nil
}
