package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derby-scoring-system/models"
)

func winsFor(entryID string, n int) []models.FightOutcome {
	out := make([]models.FightOutcome, n)
	for i := range out {
		out[i] = models.FightOutcome{EntryID: entryID, LegBand: "x", Result: models.ResultWin}
	}
	return out
}

func TestEvaluateChampions_Thresholds(t *testing.T) {
	two := testEntry("two", "Two Wins Entry", models.GameTypeTwoWins, "101,102")
	three := testEntry("three", "Three Wins Entry", models.GameTypeThreeWins, "201,202,203")

	fights := append(winsFor("two", 2), winsFor("three", 2)...)

	standings := EvaluateChampions([]models.Entry{*two, *three}, fights, nil)
	require.Len(t, standings, 2)

	assert.True(t, standings[0].IsChampion)
	assert.Equal(t, 2, standings[0].Threshold)

	// Two wins is not enough in the three-wins game.
	assert.False(t, standings[1].IsChampion)
	assert.Equal(t, 3, standings[1].Threshold)

	// One more win crosses the line.
	fights = append(fights, winsFor("three", 1)...)
	standings = EvaluateChampions([]models.Entry{*two, *three}, fights, nil)
	assert.True(t, standings[1].IsChampion)
}

func TestEvaluateChampions_DrawsAndCancellationsDontCount(t *testing.T) {
	entry := testEntry("red", "Red Team", models.GameTypeTwoWins, "101,102")

	fights := []models.FightOutcome{
		{EntryID: "red", Result: models.ResultWin},
		{EntryID: "red", Result: models.ResultDraw},
		{EntryID: "red", Result: models.ResultCancelled},
		{EntryID: "red", Result: models.ResultLoss},
	}

	standings := EvaluateChampions([]models.Entry{*entry}, fights, nil)
	require.Len(t, standings, 1)
	assert.Equal(t, 1, standings[0].Wins)
	assert.False(t, standings[0].IsChampion)
}

func TestEvaluateChampions_UnknownWinsDontCount(t *testing.T) {
	entry := testEntry("red", "Red Team", models.GameTypeTwoWins, "101,102")

	// Wins recorded against an unknown side have no entry attached.
	fights := append(winsFor("red", 2), models.FightOutcome{EntryID: "", Result: models.ResultWin})

	standings := EvaluateChampions([]models.Entry{*entry}, fights, nil)
	require.Len(t, standings, 1)
	assert.Equal(t, 2, standings[0].Wins)
}

func TestEvaluateChampions_ValidityOverride(t *testing.T) {
	entry := testEntry("red", "Red Team", models.GameTypeTwoWins, "101,102")
	fights := winsFor("red", 2)

	regs := []models.Registration{{EntryID: "red", IsValidChampion: false}}
	standings := EvaluateChampions([]models.Entry{*entry}, fights, regs)
	require.Len(t, standings, 1)
	assert.True(t, standings[0].Invalidated)
	assert.False(t, standings[0].IsChampion)

	// Flipping the override back restores the championship without touching
	// the ledger.
	regs[0].IsValidChampion = true
	standings = EvaluateChampions([]models.Entry{*entry}, fights, regs)
	assert.True(t, standings[0].IsChampion)
}

func TestSummarizePayouts(t *testing.T) {
	standings := []ChampionStanding{
		{EntryID: "a", GameType: models.GameTypeTwoWins, IsChampion: true},
		{EntryID: "b", GameType: models.GameTypeThreeWins, IsChampion: true},
		{EntryID: "c", GameType: models.GameTypeTwoWins, IsChampion: false},
	}
	regs := []models.Registration{
		{EntryID: "a", InsurancePaid: true, Fees: []models.GameTypeFee{{FeeAmount: 500, IsPaid: true}}},
		{EntryID: "b", Fees: []models.GameTypeFee{{FeeAmount: 750, IsPaid: true}, {FeeAmount: 750, IsPaid: false}}},
	}

	sum := SummarizePayouts(standings, regs, DefaultPayoutRates())
	assert.Equal(t, 2, sum.ChampionCount)
	assert.Equal(t, 7000.0, sum.ChampionPayouts) // 2000 + 5000
	assert.Equal(t, 1, sum.InsuredCount)
	assert.Equal(t, 1000.0, sum.InsurancePool)
	assert.Equal(t, 1250.0, sum.FeesCollected)
	assert.Equal(t, 1250.0-7000.0-1000.0, sum.NetCollected)
}

func TestFormatPesos(t *testing.T) {
	assert.Equal(t, "₱31,500.00", FormatPesos(31500))
	assert.Equal(t, "₱0.00", FormatPesos(0))
}
