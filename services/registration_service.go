package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"derby-scoring-system/models"
)

// RegistrationService manages entries and their registration/payment state
// for a game day. Every mutation republishes the day's snapshot so all
// terminals converge on the same entry and payment view.
type RegistrationService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewRegistrationService(db *gorm.DB, ledger *LedgerService) *RegistrationService {
	return &RegistrationService{DB: db, Ledger: ledger}
}

// newEntryID derives a stable, readable code from the entry name, suffixed
// for uniqueness within the day.
func newEntryID(name string) string {
	return slug.Make(name) + "-" + uuid.NewString()[:8]
}

// CreateEntry handles POST /entries.
func (s *RegistrationService) CreateEntry(c *fiber.Ctx) error {
	var body struct {
		GameDate string          `json:"game_date"`
		Name     string          `json:"name"`
		GameType models.GameType `json:"game_type"`
		LegBands []string        `json:"leg_bands"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if body.Name == "" || len(body.LegBands) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "name and leg_bands are required"})
	}
	if body.GameType != models.GameTypeTwoWins && body.GameType != models.GameTypeThreeWins {
		return c.Status(400).JSON(fiber.Map{"error": "game_type must be two_wins or three_wins"})
	}
	date := body.GameDate
	if date == "" {
		date = models.DateKey(time.Now())
	}

	// Band codes must be distinct within the entry; the unknown sentinel is
	// not registrable.
	seen := make(map[string]bool)
	var bands []string
	for _, b := range body.LegBands {
		b = strings.TrimSpace(b)
		if b == "" || b == models.UnknownBand || seen[b] {
			return c.Status(400).JSON(fiber.Map{"error": "leg_bands must be distinct, non-empty, and not the reserved 000"})
		}
		seen[b] = true
		bands = append(bands, b)
	}

	entry := models.Entry{
		ID:       newEntryID(body.Name),
		GameDate: date,
		Name:     body.Name,
		GameType: body.GameType,
		LegBands: strings.Join(bands, ","),
		IsActive: true,
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}

	s.Ledger.publish(models.EventEntriesUpdated, date)
	return c.Status(201).JSON(entry)
}

// ListEntries handles GET /entries.
func (s *RegistrationService) ListEntries(c *fiber.Ctx) error {
	date := requestDate(c)
	var entries []models.Entry
	if err := s.DB.Where("game_date = ?", date).Order("name ASC").Find(&entries).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list entries"})
	}
	return c.JSON(fiber.Map{"game_date": date, "entries": entries})
}

// DeactivateEntry handles PATCH /entries/:id/deactivate. Entries referenced
// by fights are never deleted, only soft-deactivated.
func (s *RegistrationService) DeactivateEntry(c *fiber.Ctx) error {
	id := c.Params("id")
	var entry models.Entry
	if err := s.DB.First(&entry, "id = ?", id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "entry not found"})
	}
	if err := s.DB.Model(&entry).Update("is_active", false).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	s.Ledger.publish(models.EventEntriesUpdated, entry.GameDate)
	return c.JSON(entry)
}

// CreateRegistration handles POST /registrations.
func (s *RegistrationService) CreateRegistration(c *fiber.Ctx) error {
	var body struct {
		GameDate string `json:"game_date"`
		EntryID  string `json:"entry_id"`
		Fees     []struct {
			GameType  models.GameType `json:"game_type"`
			FeeAmount float64         `json:"fee_amount"`
		} `json:"fees"`
		Notes string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	date := body.GameDate
	if date == "" {
		date = models.DateKey(time.Now())
	}

	var entry models.Entry
	if err := s.DB.Where("id = ? AND game_date = ?", body.EntryID, date).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(400).JSON(fiber.Map{"error": "entry_id not found for game day"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "lookup failed"})
	}

	reg := models.Registration{
		ID:              uuid.NewString(),
		GameDate:        date,
		EntryID:         entry.ID,
		EntryName:       entry.Name,
		IsValidChampion: true,
		Notes:           body.Notes,
	}
	for _, f := range body.Fees {
		reg.Fees = append(reg.Fees, models.GameTypeFee{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			GameType:       f.GameType,
			FeeAmount:      f.FeeAmount,
		})
	}

	if err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Fees").Create(&reg).Error; err != nil {
			return err
		}
		for i := range reg.Fees {
			if err := tx.Create(&reg.Fees[i]).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}

	s.Ledger.publish(models.EventRegistrationsUpdated, date)
	return c.Status(201).JSON(reg)
}

// ListRegistrations handles GET /registrations.
func (s *RegistrationService) ListRegistrations(c *fiber.Ctx) error {
	date := requestDate(c)
	var regs []models.Registration
	if err := s.DB.Preload("Fees").Where("game_date = ?", date).Find(&regs).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list registrations"})
	}
	return c.JSON(fiber.Map{"game_date": date, "registrations": regs})
}

func (s *RegistrationService) loadRegistration(c *fiber.Ctx) (*models.Registration, error) {
	var reg models.Registration
	if err := s.DB.Preload("Fees").First(&reg, "id = ?", c.Params("id")).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// PayFee handles PATCH /registrations/:id/pay.
func (s *RegistrationService) PayFee(c *fiber.Ctx) error {
	var body struct {
		GameType models.GameType `json:"game_type"`
		PaidBy   string          `json:"paid_by"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	reg, err := s.loadRegistration(c)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "registration not found"})
	}
	fee := reg.FeeFor(body.GameType)
	if fee == nil {
		return c.Status(400).JSON(fiber.Map{"error": "no fee line for game_type"})
	}

	now := time.Now()
	if err := s.DB.Model(&models.GameTypeFee{}).Where("id = ?", fee.ID).Updates(map[string]interface{}{
		"is_paid": true,
		"paid_at": &now,
		"paid_by": body.PaidBy,
	}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}

	log.Printf("✅ [Registration] %s paid %s fee (%s)", reg.EntryName, body.GameType, body.PaidBy)
	s.Ledger.publish(models.EventRegistrationsUpdated, reg.GameDate)
	return c.JSON(fiber.Map{"registration_id": reg.ID, "game_type": body.GameType, "is_paid": true})
}

// WithdrawFee handles PATCH /registrations/:id/withdraw — reverses a
// payment marked in error.
func (s *RegistrationService) WithdrawFee(c *fiber.Ctx) error {
	var body struct {
		GameType models.GameType `json:"game_type"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	reg, err := s.loadRegistration(c)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "registration not found"})
	}
	fee := reg.FeeFor(body.GameType)
	if fee == nil {
		return c.Status(400).JSON(fiber.Map{"error": "no fee line for game_type"})
	}

	if err := s.DB.Model(&models.GameTypeFee{}).Where("id = ?", fee.ID).Updates(map[string]interface{}{
		"is_paid": false,
		"paid_at": nil,
		"paid_by": "",
	}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}

	s.Ledger.publish(models.EventRegistrationsUpdated, reg.GameDate)
	return c.JSON(fiber.Map{"registration_id": reg.ID, "game_type": body.GameType, "is_paid": false})
}

// PayInsurance handles PATCH /registrations/:id/insure.
func (s *RegistrationService) PayInsurance(c *fiber.Ctx) error {
	reg, err := s.loadRegistration(c)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "registration not found"})
	}

	now := time.Now()
	if err := s.DB.Model(reg).Updates(map[string]interface{}{
		"insurance_paid":    true,
		"insurance_paid_at": &now,
	}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}

	s.Ledger.publish(models.EventRegistrationsUpdated, reg.GameDate)
	return c.JSON(fiber.Map{"registration_id": reg.ID, "insurance_paid": true})
}

// ToggleValidity handles PATCH /registrations/:id/validity — the manual
// championship override. It never touches the win tally.
func (s *RegistrationService) ToggleValidity(c *fiber.Ctx) error {
	var body struct {
		IsValidChampion bool `json:"is_valid_champion"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	reg, err := s.loadRegistration(c)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "registration not found"})
	}

	if err := s.DB.Model(reg).Update("is_valid_champion", body.IsValidChampion).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}

	log.Printf("[Registration] %s is_valid_champion=%t", reg.EntryName, body.IsValidChampion)
	s.Ledger.publish(models.EventRegistrationsUpdated, reg.GameDate)
	return c.JSON(fiber.Map{"registration_id": reg.ID, "is_valid_champion": body.IsValidChampion})
}

// UpdateNotes handles PATCH /registrations/:id/notes.
func (s *RegistrationService) UpdateNotes(c *fiber.Ctx) error {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	reg, err := s.loadRegistration(c)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "registration not found"})
	}

	if err := s.DB.Model(reg).Update("notes", body.Notes).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}

	s.Ledger.publish(models.EventRegistrationsUpdated, reg.GameDate)
	return c.JSON(fiber.Map{"registration_id": reg.ID, "notes": body.Notes})
}
