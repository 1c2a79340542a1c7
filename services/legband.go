package services

import (
	"derby-scoring-system/models"
)

// Leg-band availability is a pure derivation over the current ledger: a band
// is used iff it appears in any non-cancelled row, an entry is exhausted iff
// every one of its bands is used. Nothing here holds state of its own.

// UsedBands returns the set of leg bands consumed by non-cancelled rows.
func UsedBands(fights []models.FightOutcome) map[string]bool {
	used := make(map[string]bool)
	for _, f := range fights {
		if f.Result.IsCancelled() || f.LegBand == "" || f.LegBand == models.UnknownBand {
			continue
		}
		used[f.LegBand] = true
	}
	return used
}

// AvailableBands returns the entry's bands not yet consumed, in
// registration order.
func AvailableBands(entry *models.Entry, used map[string]bool) []string {
	var out []string
	for _, b := range entry.Bands() {
		if !used[b] {
			out = append(out, b)
		}
	}
	return out
}

// IsExhausted reports whether every registered band of the entry is used.
// An entry with no bands is treated as exhausted; the unknown sentinel is
// never exhausted (it has no registered bands to consume).
func IsExhausted(entry *models.Entry, used map[string]bool) bool {
	bands := entry.Bands()
	if len(bands) == 0 {
		return true
	}
	for _, b := range bands {
		if !used[b] {
			return false
		}
	}
	return true
}

// EntrySelection is one entry still eligible for a new fight, with the
// bands an operator may pick from.
type EntrySelection struct {
	Entry          models.Entry `json:"entry"`
	AvailableBands []string     `json:"available_bands"`
}

// AvailableSelections lists the active, non-exhausted entries offered to
// operators when recording a new fight.
func AvailableSelections(entries []models.Entry, fights []models.FightOutcome) []EntrySelection {
	used := UsedBands(fights)
	var out []EntrySelection
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		bands := AvailableBands(&e, used)
		if len(bands) == 0 {
			continue
		}
		out = append(out, EntrySelection{Entry: e, AvailableBands: bands})
	}
	return out
}
