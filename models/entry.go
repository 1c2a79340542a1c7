package models

import (
	"strings"
	"time"
)

// GameType determines how many wins an entry needs for the championship.
type GameType string

const (
	GameTypeTwoWins   GameType = "two_wins"
	GameTypeThreeWins GameType = "three_wins"
)

// WinThreshold returns the championship win threshold for the game type.
func (g GameType) WinThreshold() int {
	if g == GameTypeThreeWins {
		return 3
	}
	return 2
}

// UnknownBand is the placeholder band code accepted when one side's identity
// is not yet known at recording time. It only exists at the wire boundary;
// inside the engine the unknown side is an EntryRef with IsUnknown() true.
const UnknownBand = "000"

// Entry is one registered contestant group for a game day. Its leg bands are
// an ordered set of distinct band codes; each band fights at most once per
// day unless its fight is cancelled.
type Entry struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	GameDate  string    `json:"game_date" gorm:"not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	GameType  GameType  `json:"game_type" gorm:"not null"`
	LegBands  string    `json:"leg_bands"` // comma-separated band codes, insertion order
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Bands returns the entry's band codes in registration order.
func (e *Entry) Bands() []string {
	if e.LegBands == "" {
		return nil
	}
	parts := strings.Split(e.LegBands, ",")
	bands := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			bands = append(bands, p)
		}
	}
	return bands
}

// HasBand reports whether band belongs to this entry.
func (e *Entry) HasBand(band string) bool {
	for _, b := range e.Bands() {
		if b == band {
			return true
		}
	}
	return false
}

// EntryRef identifies one side of a fight: either a registered entry with a
// specific leg band, or the unknown placeholder.
type EntryRef struct {
	EntryID   string
	EntryName string
	GameType  GameType
	LegBand   string
	unknown   bool
}

// KnownRef builds a reference to a registered entry fighting on band.
func KnownRef(entry *Entry, band string) EntryRef {
	return EntryRef{
		EntryID:   entry.ID,
		EntryName: entry.Name,
		GameType:  entry.GameType,
		LegBand:   band,
	}
}

// UnknownRef builds the unknown-side placeholder.
func UnknownRef() EntryRef {
	return EntryRef{EntryName: "unknown", LegBand: UnknownBand, unknown: true}
}

// IsUnknown reports whether the reference is the unknown placeholder.
func (r EntryRef) IsUnknown() bool {
	return r.unknown
}
