package services

import (
	"errors"

	"github.com/google/uuid"

	"derby-scoring-system/models"
)

// Validation failures surfaced to the initiating terminal only. Neither one
// mutates the ledger or the fight counter.
var (
	// ErrInvalidSelection: a side is missing, or both sides are unknown.
	ErrInvalidSelection = errors.New("invalid selection: at least one side must carry a real leg band")
	// ErrLegBandAlreadyUsed: the band already fought in a non-cancelled fight today.
	ErrLegBandAlreadyUsed = errors.New("leg band already used in a previous fight")
)

// Side names follow derby convention: Meron is the house side, Wala the
// challenger.
type Side string

const (
	SideMeron Side = "meron"
	SideWala  Side = "wala"
)

// Ledger is the in-memory working copy of one game day's fight ledger and
// counter. LedgerService loads it inside a transaction, applies one
// operation, and persists the delta; tests exercise it directly.
type Ledger struct {
	Date        string
	FightNumber int
	Fights      []models.FightOutcome
}

// RecordOutcome appends the two rows of a decided fight: the winner side
// gets result 1, the loser 0. Both sides must be resolved, at least one must
// carry a real leg band, and neither band may appear in a prior
// non-cancelled row. The fight counter increments exactly once.
func (l *Ledger) RecordOutcome(meron, wala models.EntryRef, winner Side) ([]models.FightOutcome, error) {
	if err := l.validatePair(meron, wala, true); err != nil {
		return nil, err
	}

	meronResult, walaResult := models.ResultLoss, models.ResultWin
	if winner == SideMeron {
		meronResult, walaResult = models.ResultWin, models.ResultLoss
	}
	return l.append(meron, wala, meronResult, walaResult), nil
}

// RecordDraw appends the two rows of a drawn fight, both with result 0.5.
func (l *Ledger) RecordDraw(meron, wala models.EntryRef) ([]models.FightOutcome, error) {
	if err := l.validatePair(meron, wala, true); err != nil {
		return nil, err
	}
	return l.append(meron, wala, models.ResultDraw, models.ResultDraw), nil
}

// CancelFight appends two cancelled rows. A cancellation is always accepted
// for any resolved pair — it deliberately skips the prior-usage check — and
// cancelled rows release the involved leg bands for reuse. It still consumes
// a fight number.
func (l *Ledger) CancelFight(meron, wala models.EntryRef) ([]models.FightOutcome, error) {
	if err := l.validatePair(meron, wala, false); err != nil {
		return nil, err
	}

	// Flip any prior rows for these bands to cancelled so the bands drop
	// out of the used set.
	for _, ref := range []models.EntryRef{meron, wala} {
		if ref.IsUnknown() {
			continue
		}
		for i := range l.Fights {
			if l.Fights[i].LegBand == ref.LegBand && !l.Fights[i].Result.IsCancelled() {
				l.Fights[i].Result = models.ResultCancelled
			}
		}
	}

	return l.append(meron, wala, models.ResultCancelled, models.ResultCancelled), nil
}

// Reset clears the ledger and zeros the fight counter. Idempotent.
func (l *Ledger) Reset() {
	l.Fights = nil
	l.FightNumber = 0
}

// UsedBands returns the set of leg bands consumed by non-cancelled rows.
// The unknown sentinel never counts as used.
func (l *Ledger) UsedBands() map[string]bool {
	return UsedBands(l.Fights)
}

func (l *Ledger) validatePair(meron, wala models.EntryRef, checkUsage bool) error {
	if meron.IsUnknown() && wala.IsUnknown() {
		return ErrInvalidSelection
	}
	if !checkUsage {
		return nil
	}
	used := l.UsedBands()
	for _, ref := range []models.EntryRef{meron, wala} {
		if !ref.IsUnknown() && used[ref.LegBand] {
			return ErrLegBandAlreadyUsed
		}
	}
	return nil
}

func (l *Ledger) append(meron, wala models.EntryRef, meronResult, walaResult models.FightResult) []models.FightOutcome {
	l.FightNumber++
	rows := []models.FightOutcome{
		l.newRow(meron, meronResult),
		l.newRow(wala, walaResult),
	}
	l.Fights = append(l.Fights, rows...)
	return rows
}

func newOutcomeID() string {
	return uuid.NewString()
}

func (l *Ledger) newRow(ref models.EntryRef, result models.FightResult) models.FightOutcome {
	return models.FightOutcome{
		ID:        newOutcomeID(),
		GameDate:  l.Date,
		LegNumber: l.FightNumber,
		EntryID:   ref.EntryID,
		EntryName: ref.EntryName,
		GameType:  ref.GameType,
		LegBand:   ref.LegBand,
		Result:    result,
	}
}

// EntryResults groups a day's rows by entry for the ledger read API.
// Unknown-side rows are grouped under the sentinel name.
func EntryResults(fights []models.FightOutcome) []models.EntryResult {
	index := make(map[string]int)
	var out []models.EntryResult
	for _, f := range fights {
		key := f.EntryID
		if key == "" {
			key = f.LegBand // unknown rows group by the sentinel band
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, models.EntryResult{
				EntryID:   f.EntryID,
				EntryName: f.EntryName,
				GameType:  f.GameType,
			})
		}
		out[i].LegResults = append(out[i].LegResults, models.LegResult{
			LegNumber: f.LegNumber,
			Result:    f.Result,
		})
	}
	return out
}
