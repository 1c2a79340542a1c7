package services

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"derby-scoring-system/models"
)

// PayoutRates are the fixed per-game-type championship payouts and the flat
// insurance payout, in pesos.
type PayoutRates struct {
	TwoWins   float64 `yaml:"two_wins"`
	ThreeWins float64 `yaml:"three_wins"`
	Insurance float64 `yaml:"insurance"`
}

// DefaultPayoutRates mirror the amounts used on past game days.
func DefaultPayoutRates() PayoutRates {
	return PayoutRates{TwoWins: 2000, ThreeWins: 5000, Insurance: 1000}
}

func (p PayoutRates) forGameType(g models.GameType) float64 {
	if g == models.GameTypeThreeWins {
		return p.ThreeWins
	}
	return p.TwoWins
}

// ChampionStanding is the derived championship state of one entry. It is
// recomputed on every read — never cached — because the validity override
// can change after fights are recorded.
type ChampionStanding struct {
	EntryID     string          `json:"entry_id"`
	EntryName   string          `json:"entry_name"`
	GameType    models.GameType `json:"game_type"`
	Wins        int             `json:"wins"`
	Threshold   int             `json:"threshold"`
	IsChampion  bool            `json:"is_champion"`
	Invalidated bool            `json:"invalidated"`
}

// EvaluateChampions tallies wins per entry from the ledger and applies the
// per-game-type threshold and the manual validity override. Draws and
// cancellations never count; multiple entries of the same game type may be
// champions at once.
func EvaluateChampions(entries []models.Entry, fights []models.FightOutcome, regs []models.Registration) []ChampionStanding {
	wins := make(map[string]int)
	for _, f := range fights {
		if f.Result == models.ResultWin && f.EntryID != "" {
			wins[f.EntryID]++
		}
	}

	invalid := make(map[string]bool)
	for _, r := range regs {
		if !r.IsValidChampion {
			invalid[r.EntryID] = true
		}
	}

	out := make([]ChampionStanding, 0, len(entries))
	for _, e := range entries {
		s := ChampionStanding{
			EntryID:     e.ID,
			EntryName:   e.Name,
			GameType:    e.GameType,
			Wins:        wins[e.ID],
			Threshold:   e.GameType.WinThreshold(),
			Invalidated: invalid[e.ID],
		}
		s.IsChampion = s.Wins >= s.Threshold && !s.Invalidated
		out = append(out, s)
	}
	return out
}

// PayoutSummary is the informational money view of a game day: these are
// presentation-layer derivations of the ledger and registrations, not
// persisted entities.
type PayoutSummary struct {
	ChampionCount   int     `json:"champion_count"`
	ChampionPayouts float64 `json:"champion_payouts"`
	InsuredCount    int     `json:"insured_count"`
	InsurancePool   float64 `json:"insurance_pool"`
	FeesCollected   float64 `json:"fees_collected"`
	NetCollected    float64 `json:"net_collected"`
}

// SummarizePayouts derives the payout pools and net take for a game day.
func SummarizePayouts(standings []ChampionStanding, regs []models.Registration, rates PayoutRates) PayoutSummary {
	var sum PayoutSummary
	for _, s := range standings {
		if s.IsChampion {
			sum.ChampionCount++
			sum.ChampionPayouts += rates.forGameType(s.GameType)
		}
	}
	for _, r := range regs {
		if r.InsurancePaid {
			sum.InsuredCount++
		}
		for _, fee := range r.Fees {
			if fee.IsPaid {
				sum.FeesCollected += fee.FeeAmount
			}
		}
	}
	sum.InsurancePool = float64(sum.InsuredCount) * rates.Insurance
	sum.NetCollected = sum.FeesCollected - sum.ChampionPayouts - sum.InsurancePool
	return sum
}

var pesoPrinter = message.NewPrinter(language.English)

// FormatPesos renders an amount with thousands separators for logs and the
// payout endpoint.
func FormatPesos(amount float64) string {
	return pesoPrinter.Sprintf("₱%.2f", amount)
}
