package models

import (
	"time"
)

// Sync event types pushed to subscribed terminals. Every event carries a
// full-replace payload — receivers overwrite local state wholesale.
const (
	EventLedgerUpdated        = "ledger_updated"
	EventOutcomeRecorded      = "outcome_recorded"
	EventEntriesUpdated       = "entries_updated"
	EventRegistrationsUpdated = "registrations_updated"
)

// SyncMessage is the snapshot broadcast to every terminal subscribed to a
// game day's topic. It is not a diff: applying the same message twice must
// leave a terminal in the same state, and ordering between the push channel
// and the polling fallback is irrelevant beyond LastUpdate staleness checks.
type SyncMessage struct {
	Fights         []FightOutcome          `json:"fights"`
	FightNumber    int                     `json:"fight_number"`
	Entries        []Entry                 `json:"entries"`
	Registrations  []Registration          `json:"registrations"`
	BettingStatus  string                  `json:"betting_status"`
	ExternalTotals ExternalBettingSnapshot `json:"external_totals"`
	LastUpdate     time.Time               `json:"last_update"`
}

// SyncEvent is the envelope published on a game-day topic.
type SyncEvent struct {
	Type      string      `json:"type"`
	GameDate  string      `json:"game_date"`
	Payload   SyncMessage `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// BettingStatusOpen / BettingStatusClosed are the two states the external
// source reports.
const (
	BettingStatusOpen   = "open"
	BettingStatusClosed = "closed"
)

// ExternalBettingSnapshot is the normalized view of the external betting
// source. It is recomputed every reconciliation tick and never persisted
// authoritatively; a failed fetch yields a zeroed snapshot with Error set.
type ExternalBettingSnapshot struct {
	TotalBets     int       `json:"total_bets"`
	TotalAmount   float64   `json:"total_amount"`
	BettingStatus string    `json:"betting_status"`
	SourceLabel   string    `json:"source_label"`
	FetchedAt     time.Time `json:"fetched_at"`
	IsDemo        bool      `json:"is_demo"`
	Error         string    `json:"error,omitempty"`
}

// BetRecord is one normalized row from the external betting source.
type BetRecord struct {
	Name       string  `json:"name"`
	Username   string  `json:"username"`
	BetAmount  float64 `json:"bet_amount"`
	Payout     float64 `json:"payout"`
	Commission float64 `json:"commission"`
}
