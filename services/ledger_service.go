package services

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"derby-scoring-system/models"
	"derby-scoring-system/realtime"
	"derby-scoring-system/utils"
)

// BettingSource exposes the most recent external betting snapshot to the
// snapshot builder. The reconciler implements it; tests use a stub.
type BettingSource interface {
	Latest() models.ExternalBettingSnapshot
}

// LedgerService owns the authoritative fight ledger. All mutations for a
// game day are serialized through a row lock on its GameDay record, so two
// terminals can never consume the same leg band concurrently.
type LedgerService struct {
	DB        *gorm.DB
	Publisher realtime.Publisher
	Betting   BettingSource
	Rates     PayoutRates
}

func NewLedgerService(db *gorm.DB, pub realtime.Publisher, betting BettingSource, rates PayoutRates) *LedgerService {
	return &LedgerService{DB: db, Publisher: pub, Betting: betting, Rates: rates}
}

// SideSelection is the wire form of one side of a fight.
type SideSelection struct {
	EntryID string `json:"entry_id"`
	LegBand string `json:"leg_band"`
}

type fightRequest struct {
	GameDate string        `json:"game_date"`
	Meron    SideSelection `json:"meron"`
	Wala     SideSelection `json:"wala"`
	Winner   Side          `json:"winner"`
}

// withDay runs fn against the locked GameDay row and its loaded ledger,
// creating the day implicitly on first write.
func (s *LedgerService) withDay(date string, fn func(tx *gorm.DB, led *Ledger) error) (*Ledger, error) {
	led := &Ledger{Date: date}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var day models.GameDay
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(models.GameDay{Date: date}).
			FirstOrCreate(&day).Error; err != nil {
			return err
		}

		var fights []models.FightOutcome
		if err := tx.Where("game_date = ?", date).
			Order("leg_number ASC, created_at ASC").
			Find(&fights).Error; err != nil {
			return err
		}

		led.FightNumber = day.FightNumber
		led.Fights = fights

		if err := fn(tx, led); err != nil {
			return err
		}

		return tx.Model(&models.GameDay{}).
			Where("date = ?", date).
			Update("fight_number", led.FightNumber).Error
	})
	if err != nil {
		return nil, err
	}
	return led, nil
}

// RecordFight persists a decided fight and publishes the updated snapshot.
func (s *LedgerService) RecordFight(date string, meron, wala models.EntryRef, winner Side) ([]models.FightOutcome, error) {
	var rows []models.FightOutcome
	_, err := s.withDay(date, func(tx *gorm.DB, led *Ledger) error {
		var err error
		rows, err = led.RecordOutcome(meron, wala, winner)
		if err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish(models.EventOutcomeRecorded, date)
	return rows, nil
}

// RecordDraw persists a drawn fight and publishes the updated snapshot.
func (s *LedgerService) RecordDraw(date string, meron, wala models.EntryRef) ([]models.FightOutcome, error) {
	var rows []models.FightOutcome
	_, err := s.withDay(date, func(tx *gorm.DB, led *Ledger) error {
		var err error
		rows, err = led.RecordDraw(meron, wala)
		if err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish(models.EventOutcomeRecorded, date)
	return rows, nil
}

// CancelFight flips any persisted rows for the involved bands to cancelled,
// appends the cancellation pair, and publishes. The released bands may fight
// again afterwards.
func (s *LedgerService) CancelFight(date string, meron, wala models.EntryRef) ([]models.FightOutcome, error) {
	var rows []models.FightOutcome
	_, err := s.withDay(date, func(tx *gorm.DB, led *Ledger) error {
		var err error
		rows, err = led.CancelFight(meron, wala)
		if err != nil {
			return err
		}

		var bands []string
		for _, ref := range []models.EntryRef{meron, wala} {
			if !ref.IsUnknown() {
				bands = append(bands, ref.LegBand)
			}
		}
		if len(bands) > 0 {
			if err := tx.Model(&models.FightOutcome{}).
				Where("game_date = ? AND leg_band IN ? AND result <> ?", date, bands, models.ResultCancelled).
				Update("result", models.ResultCancelled).Error; err != nil {
				return err
			}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish(models.EventOutcomeRecorded, date)
	return rows, nil
}

// ResetGameDay clears the ledger and zeros the counter. Idempotent.
func (s *LedgerService) ResetGameDay(date string) error {
	_, err := s.withDay(date, func(tx *gorm.DB, led *Ledger) error {
		led.Reset()
		return tx.Where("game_date = ?", date).Delete(&models.FightOutcome{}).Error
	})
	if err != nil {
		return err
	}
	s.publish(models.EventLedgerUpdated, date)
	return nil
}

// MergeEntryResults merges a terminal's entry-result view into the ledger:
// leg results the server has not seen yet are appended, existing rows stay
// untouched, and the counter rises to the highest leg number seen.
func (s *LedgerService) MergeEntryResults(date string, incoming []models.EntryResult) error {
	_, err := s.withDay(date, func(tx *gorm.DB, led *Ledger) error {
		seen := make(map[string]map[int]bool)
		for _, f := range led.Fights {
			key := f.EntryID
			if key == "" {
				key = f.LegBand
			}
			if seen[key] == nil {
				seen[key] = make(map[int]bool)
			}
			seen[key][f.LegNumber] = true
		}

		var fresh []models.FightOutcome
		for _, er := range incoming {
			ref := models.EntryRef{
				EntryID:   er.EntryID,
				EntryName: er.EntryName,
				GameType:  er.GameType,
			}
			for _, lr := range er.LegResults {
				if er.EntryID != "" && seen[er.EntryID] != nil && seen[er.EntryID][lr.LegNumber] {
					continue
				}
				row := models.FightOutcome{
					ID:        newOutcomeID(),
					GameDate:  date,
					LegNumber: lr.LegNumber,
					EntryID:   ref.EntryID,
					EntryName: ref.EntryName,
					GameType:  ref.GameType,
					Result:    lr.Result,
				}
				fresh = append(fresh, row)
				if lr.LegNumber > led.FightNumber {
					led.FightNumber = lr.LegNumber
				}
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		return tx.Create(&fresh).Error
	})
	if err != nil {
		return err
	}
	s.publish(models.EventLedgerUpdated, date)
	return nil
}

// ReplaceFights is the target of the terminals' debounced flush: it replaces
// the day's fights and counter wholesale with the terminal's coalesced state.
func (s *LedgerService) ReplaceFights(date string, fights []models.FightOutcome, fightNumber int) error {
	_, err := s.withDay(date, func(tx *gorm.DB, led *Ledger) error {
		if err := tx.Where("game_date = ?", date).Delete(&models.FightOutcome{}).Error; err != nil {
			return err
		}
		for i := range fights {
			fights[i].GameDate = date
			if fights[i].ID == "" {
				fights[i].ID = newOutcomeID()
			}
		}
		led.FightNumber = fightNumber
		led.Fights = fights
		if len(fights) == 0 {
			return nil
		}
		return tx.Create(&fights).Error
	})
	if err != nil {
		return err
	}
	s.publish(models.EventLedgerUpdated, date)
	return nil
}

// Snapshot assembles the full-replace SyncMessage for a game day.
func (s *LedgerService) Snapshot(date string) (models.SyncMessage, error) {
	var msg models.SyncMessage

	var day models.GameDay
	if err := s.DB.Where(models.GameDay{Date: date}).FirstOrInit(&day).Error; err != nil {
		return msg, err
	}

	var fights []models.FightOutcome
	if err := s.DB.Where("game_date = ?", date).
		Order("leg_number ASC, created_at ASC").
		Find(&fights).Error; err != nil {
		return msg, err
	}

	var entries []models.Entry
	if err := s.DB.Where("game_date = ?", date).Order("name ASC").Find(&entries).Error; err != nil {
		return msg, err
	}

	var regs []models.Registration
	if err := s.DB.Preload("Fees").Where("game_date = ?", date).Find(&regs).Error; err != nil {
		return msg, err
	}

	msg = models.SyncMessage{
		Fights:        fights,
		FightNumber:   day.FightNumber,
		Entries:       entries,
		Registrations: regs,
		BettingStatus: models.BettingStatusOpen,
		LastUpdate:    time.Now(),
	}
	if s.Betting != nil {
		msg.ExternalTotals = s.Betting.Latest()
		if msg.ExternalTotals.BettingStatus != "" {
			msg.BettingStatus = msg.ExternalTotals.BettingStatus
		}
	}
	return msg, nil
}

// ResolveSide turns a wire selection into an EntryRef, validating that the
// band belongs to an active entry of the day. The "000" band resolves to the
// unknown sentinel without touching the store.
func (s *LedgerService) ResolveSide(date string, sel SideSelection) (models.EntryRef, error) {
	if sel.LegBand == models.UnknownBand {
		return models.UnknownRef(), nil
	}
	if sel.EntryID == "" || sel.LegBand == "" {
		return models.EntryRef{}, ErrInvalidSelection
	}

	var entry models.Entry
	if err := s.DB.Where("id = ? AND game_date = ?", sel.EntryID, date).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EntryRef{}, ErrInvalidSelection
		}
		return models.EntryRef{}, err
	}
	if !entry.IsActive || !entry.HasBand(sel.LegBand) {
		return models.EntryRef{}, ErrInvalidSelection
	}
	return models.KnownRef(&entry, sel.LegBand), nil
}

func (s *LedgerService) publish(eventType, date string) {
	if s.Publisher == nil {
		return
	}
	msg, err := s.Snapshot(date)
	if err != nil {
		log.Printf("⚠️  [Ledger] snapshot for publish failed: %v", err)
		return
	}
	s.Publisher.Publish(date, models.SyncEvent{
		Type:      eventType,
		GameDate:  date,
		Payload:   msg,
		Timestamp: time.Now(),
	})
}

// --- Fiber handlers ---

func requestDate(c *fiber.Ctx) string {
	if d := c.Query("game_date"); d != "" {
		return d
	}
	return models.DateKey(time.Now())
}

func ledgerErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrLegBandAlreadyUsed):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidSelection):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// GetToday returns the authoritative ledger view for the polling fallback.
func (s *LedgerService) GetToday(c *fiber.Ctx) error {
	date := requestDate(c)
	msg, err := s.Snapshot(date)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load ledger"})
	}
	return c.JSON(fiber.Map{
		"game_date":     date,
		"fights":        msg.Fights,
		"fight_number":  msg.FightNumber,
		"entry_results": EntryResults(msg.Fights),
	})
}

// GetSnapshot returns the full SyncMessage, the same payload the push
// channel broadcasts.
func (s *LedgerService) GetSnapshot(c *fiber.Ctx) error {
	date := requestDate(c)
	msg, err := s.Snapshot(date)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load snapshot"})
	}
	return c.JSON(msg)
}

// GetSelections lists the entries still eligible for a new fight.
func (s *LedgerService) GetSelections(c *fiber.Ctx) error {
	date := requestDate(c)
	msg, err := s.Snapshot(date)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load selections"})
	}
	return c.JSON(fiber.Map{
		"game_date":  date,
		"selections": AvailableSelections(msg.Entries, msg.Fights),
	})
}

// GetChampions returns the derived championship standings.
func (s *LedgerService) GetChampions(c *fiber.Ctx) error {
	date := requestDate(c)
	msg, err := s.Snapshot(date)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load champions"})
	}
	return c.JSON(fiber.Map{
		"game_date": date,
		"champions": EvaluateChampions(msg.Entries, msg.Fights, msg.Registrations),
	})
}

// GetPayoutSummary returns the informational money view of the day.
func (s *LedgerService) GetPayoutSummary(c *fiber.Ctx) error {
	date := requestDate(c)
	msg, err := s.Snapshot(date)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load payout summary"})
	}
	standings := EvaluateChampions(msg.Entries, msg.Fights, msg.Registrations)
	summary := SummarizePayouts(standings, msg.Registrations, s.Rates)
	return c.JSON(fiber.Map{
		"game_date":     date,
		"summary":       summary,
		"net_collected": FormatPesos(summary.NetCollected),
	})
}

func (s *LedgerService) parseFightRequest(c *fiber.Ctx) (string, models.EntryRef, models.EntryRef, Side, error) {
	var req fightRequest
	if err := c.BodyParser(&req); err != nil {
		return "", models.EntryRef{}, models.EntryRef{}, "", ErrInvalidSelection
	}
	date := req.GameDate
	if date == "" {
		date = models.DateKey(time.Now())
	}
	meron, err := s.ResolveSide(date, req.Meron)
	if err != nil {
		return "", models.EntryRef{}, models.EntryRef{}, "", err
	}
	wala, err := s.ResolveSide(date, req.Wala)
	if err != nil {
		return "", models.EntryRef{}, models.EntryRef{}, "", err
	}
	return date, meron, wala, req.Winner, nil
}

// RecordOutcomeEndpoint handles POST /game-days/today/record.
func (s *LedgerService) RecordOutcomeEndpoint(c *fiber.Ctx) error {
	date, meron, wala, winner, err := s.parseFightRequest(c)
	if err != nil {
		return c.Status(ledgerErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if winner != SideMeron && winner != SideWala {
		return c.Status(400).JSON(fiber.Map{"error": "winner must be meron or wala"})
	}
	rows, err := s.RecordFight(date, meron, wala, winner)
	if err != nil {
		return c.Status(ledgerErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(fiber.Map{"outcomes": rows})
}

// RecordDrawEndpoint handles POST /game-days/today/draw.
func (s *LedgerService) RecordDrawEndpoint(c *fiber.Ctx) error {
	date, meron, wala, _, err := s.parseFightRequest(c)
	if err != nil {
		return c.Status(ledgerErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	rows, err := s.RecordDraw(date, meron, wala)
	if err != nil {
		return c.Status(ledgerErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(fiber.Map{"outcomes": rows})
}

// CancelFightEndpoint handles POST /game-days/today/cancel.
func (s *LedgerService) CancelFightEndpoint(c *fiber.Ctx) error {
	date, meron, wala, _, err := s.parseFightRequest(c)
	if err != nil {
		return c.Status(ledgerErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	rows, err := s.CancelFight(date, meron, wala)
	if err != nil {
		return c.Status(ledgerErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(fiber.Map{"outcomes": rows})
}

// ResetEndpoint handles POST /game-days/today/reset.
func (s *LedgerService) ResetEndpoint(c *fiber.Ctx) error {
	date := requestDate(c)
	if err := s.ResetGameDay(date); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "reset failed"})
	}
	log.Printf("✅ [Ledger] game day %s reset", date)
	return c.JSON(fiber.Map{"game_date": date, "fight_number": 0})
}

// PutEntryResults handles PUT /game-days/today/results.
func (s *LedgerService) PutEntryResults(c *fiber.Ctx) error {
	var body struct {
		GameDate     string               `json:"game_date"`
		EntryResults []models.EntryResult `json:"entry_results"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	date := body.GameDate
	if date == "" {
		date = models.DateKey(time.Now())
	}
	if err := s.MergeEntryResults(date, body.EntryResults); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "merge failed"})
	}
	return c.JSON(fiber.Map{"game_date": date, "merged": len(body.EntryResults)})
}

// PostFights handles POST /game-days/today/fights, the debounced flush.
func (s *LedgerService) PostFights(c *fiber.Ctx) error {
	var body struct {
		GameDate    string                `json:"game_date"`
		Fights      []models.FightOutcome `json:"fights"`
		FightNumber int                   `json:"fight_number"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	date := body.GameDate
	if date == "" {
		date = models.DateKey(time.Now())
	}
	if err := s.ReplaceFights(date, body.Fights, body.FightNumber); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "save failed"})
	}
	return c.JSON(fiber.Map{"game_date": date, "fight_number": body.FightNumber})
}

// ArchiveEndpoint handles POST /game-days/:date/archive: it exports the
// day's full snapshot to R2 for record keeping.
func (s *LedgerService) ArchiveEndpoint(c *fiber.Ctx) error {
	if !utils.ArchiveEnabled() {
		return c.Status(503).JSON(fiber.Map{"error": "archive storage not configured"})
	}

	date := c.Params("date")
	if date == "" {
		date = models.DateKey(time.Now())
	}

	msg, err := s.Snapshot(date)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load snapshot"})
	}
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to encode snapshot"})
	}

	url, err := utils.UploadLedgerArchive(date, data)
	if err != nil {
		log.Printf("❌ [Ledger] archive upload failed for %s: %v", date, err)
		return c.Status(502).JSON(fiber.Map{"error": "archive upload failed"})
	}

	log.Printf("✅ [Ledger] archived game day %s -> %s", date, url)
	return c.JSON(fiber.Map{"game_date": date, "url": url})
}
