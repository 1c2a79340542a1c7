// services/scheduler.go
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"derby-scoring-system/models"
	"derby-scoring-system/realtime"
)

// SnapshotSource supplies the authoritative game-day view the scheduler
// republishes. LedgerService implements it; tests use a stub.
type SnapshotSource interface {
	Snapshot(date string) (models.SyncMessage, error)
}

// ReconcileScheduler republishes the merged game-day view on a fixed
// interval, independent of any terminal's session: even with no local
// mutations, every tick pushes ledger + registrations + external betting
// totals to all subscribers. One instance exists per process; Start while
// already running is a documented no-op.
type ReconcileScheduler struct {
	Ledger     SnapshotSource
	Reconciler *BettingReconciler
	Publisher  realtime.Publisher
	Interval   time.Duration

	mu      sync.Mutex
	sched   gocron.Scheduler
	running bool
}

func NewReconcileScheduler(ledger SnapshotSource, reconciler *BettingReconciler, pub realtime.Publisher, interval time.Duration) *ReconcileScheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ReconcileScheduler{
		Ledger:     ledger,
		Reconciler: reconciler,
		Publisher:  pub,
		Interval:   interval,
	}
}

// Start begins ticking. Calling it while running does nothing.
func (s *ReconcileScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		log.Println("[Scheduler] already running, ignoring start")
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(s.Tick),
	); err != nil {
		return err
	}
	sched.Start()

	s.sched = sched
	s.running = true
	log.Printf("✅ [Scheduler] reconciliation every %s", s.Interval)
	return nil
}

// Stop halts the ticking. Idempotent.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if err := s.sched.Shutdown(); err != nil {
		log.Printf("[Scheduler] shutdown error: %v", err)
	}
	s.sched = nil
	s.running = false
	log.Println("[Scheduler] stopped")
}

// Running reports whether the scheduler is ticking.
func (s *ReconcileScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick performs one reconciliation pass. Every merge step failure is logged
// and the tick completes with whatever partial data is available — nothing
// here may kill the interval.
func (s *ReconcileScheduler) Tick() {
	date := models.DateKey(time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	defer cancel()

	snap := s.Reconciler.FetchSnapshot(ctx)
	if snap.Error != "" {
		log.Printf("⚠️  [Scheduler] external snapshot degraded: %s", snap.Error)
	}

	msg, err := s.Ledger.Snapshot(date)
	if err != nil {
		log.Printf("⚠️  [Scheduler] ledger load failed: %v", err)
		// Publish the external totals alone so terminals still see betting
		// status movement.
		msg = models.SyncMessage{BettingStatus: models.BettingStatusOpen, LastUpdate: time.Now()}
	}
	msg.ExternalTotals = snap
	if snap.BettingStatus != "" {
		msg.BettingStatus = snap.BettingStatus
	}
	msg.LastUpdate = time.Now()

	s.Publisher.Publish(date, models.SyncEvent{
		Type:      models.EventLedgerUpdated,
		GameDate:  date,
		Payload:   msg,
		Timestamp: time.Now(),
	})
}
