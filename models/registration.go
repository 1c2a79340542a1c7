package models

import (
	"time"
)

// Registration tracks payment and championship-validity state for one entry
// on one game day.
type Registration struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	GameDate        string     `json:"game_date" gorm:"not null;index"`
	EntryID         string     `json:"entry_id" gorm:"not null;index"`
	EntryName       string     `json:"entry_name"`
	InsurancePaid   bool       `json:"insurance_paid" gorm:"default:false"`
	InsurancePaidAt *time.Time `json:"insurance_paid_at,omitempty"`
	// IsValidChampion is a manual override: false excludes an otherwise
	// qualifying entry from championship payout counting without touching
	// its win tally.
	IsValidChampion bool      `json:"is_valid_champion" gorm:"default:true"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Fees []GameTypeFee `json:"fees,omitempty" gorm:"foreignKey:RegistrationID"`
}

// GameTypeFee is the per-game-type fee line of a registration.
type GameTypeFee struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	RegistrationID string     `json:"registration_id" gorm:"not null;index"`
	GameType       GameType   `json:"game_type" gorm:"not null"`
	FeeAmount      float64    `json:"fee_amount" gorm:"default:0"`
	IsPaid         bool       `json:"is_paid" gorm:"default:false"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	PaidBy         string     `json:"paid_by,omitempty"`
}

// FeeFor returns the fee line for the given game type, if any.
func (r *Registration) FeeFor(gameType GameType) *GameTypeFee {
	for i := range r.Fees {
		if r.Fees[i].GameType == gameType {
			return &r.Fees[i]
		}
	}
	return nil
}
