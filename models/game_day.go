package models

import (
	"time"
)

// FightResult is stored on the wire exactly as the scoring terminals expect
// it: "1" for a win, "0" for a loss, "0.5" for a draw, and the "cancelled"
// sentinel. A recorded fight always carries one of these, never an empty
// value.
type FightResult string

const (
	ResultWin       FightResult = "1"
	ResultLoss      FightResult = "0"
	ResultDraw      FightResult = "0.5"
	ResultCancelled FightResult = "cancelled"
)

// IsCancelled reports whether this row belongs to a cancelled fight.
func (r FightResult) IsCancelled() bool {
	return r == ResultCancelled
}

// Score returns the numeric value of the result. Cancelled rows score 0.
func (r FightResult) Score() float64 {
	switch r {
	case ResultWin:
		return 1
	case ResultDraw:
		return 0.5
	default:
		return 0
	}
}

// GameDay is the aggregate root for one calendar date: it owns the fight
// counter and (via FightOutcome rows keyed by GameDate) the ledger.
// A GameDay is created implicitly on first write and never deleted —
// an explicit reset clears its ledger and zeros the counter.
type GameDay struct {
	Date        string    `json:"date" gorm:"primaryKey;column:date"` // YYYY-MM-DD, local midnight
	FightNumber int       `json:"fight_number" gorm:"default:0"`
	Status      string    `json:"status" gorm:"default:'open'"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// FightOutcome is one ledger row. A fight event normally produces two rows
// (one per side) that share the same LegNumber.
type FightOutcome struct {
	ID        string      `json:"id" gorm:"primaryKey"`
	GameDate  string      `json:"game_date" gorm:"not null;index"`
	LegNumber int         `json:"leg_number" gorm:"not null"`
	EntryID   string      `json:"entry_id"`
	EntryName string      `json:"entry_name"`
	GameType  GameType    `json:"game_type"`
	LegBand   string      `json:"leg_band"` // band code, or UnknownBand
	Result    FightResult `json:"result" gorm:"not null"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

// LegResult is the per-leg view used by the merged entry-results endpoint.
type LegResult struct {
	LegNumber int         `json:"leg_number"`
	Result    FightResult `json:"result"`
}

// EntryResult groups a day's leg results by entry for the ledger read API.
type EntryResult struct {
	EntryID    string      `json:"entry_id"`
	EntryName  string      `json:"entry_name"`
	GameType   GameType    `json:"game_type"`
	LegResults []LegResult `json:"leg_results"`
}

// DateKey truncates t to its local calendar date, the key every GameDay and
// sync topic is scoped by.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
