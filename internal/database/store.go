package database

import (
	"errors"
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRecordNotFound is matched by every RecordNotFoundError.
var ErrRecordNotFound = errors.New("record not found")

// RecordNotFoundError reports a lookup that matched no row.
type RecordNotFoundError struct {
	Table string
	Param string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record not found in %s (%s)", e.Table, e.Param)
}

func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

// StoreInterface defines the persistence the trader and the collector depend on.
type StoreInterface interface {
	SelectMarkets(pair string, since time.Time) (models.Markets, error)
	SelectMarketSummary(pair string, offsetHour int, now time.Time) (models.MarketSummary, error)
	InsertMarket(market *models.Market) error
	UpsertBotStatus(status *models.BotStatus) error
	SelectBotStatus(botName, pair, statusType string) (models.BotStatus, error)
	SelectBotStatuses(botName string) ([]models.BotStatus, error)
	InsertEvent(event *models.Event) error
	SelectEvents(limit int) ([]models.Event, error)
	CountEvents(eventType models.EventType, since time.Time) (int64, error)
}

// Store implements StoreInterface on gorm.
type Store struct {
	db *gorm.DB
}

var _ StoreInterface = (*Store)(nil)

// NewStore wraps an opened database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SelectMarkets returns the markets of pair recorded at or after since, oldest first.
func (s *Store) SelectMarkets(pair string, since time.Time) (models.Markets, error) {
	var markets models.Markets
	err := s.db.
		Where("pair = ? AND recorded_at >= ?", pair, since).
		Order("recorded_at ASC").
		Find(&markets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select markets of %s: %w", pair, err)
	}
	return markets, nil
}

// SelectMarketSummary aggregates the markets of pair in [now-24h-offset, now-offset].
func (s *Store) SelectMarketSummary(pair string, offsetHour int, now time.Time) (models.MarketSummary, error) {
	end := now.Add(-time.Duration(offsetHour) * time.Hour)
	begin := end.Add(-24 * time.Hour)

	var markets models.Markets
	err := s.db.
		Where("pair = ? AND recorded_at >= ? AND recorded_at <= ?", pair, begin, end).
		Order("recorded_at ASC").
		Find(&markets).Error
	if err != nil {
		return models.MarketSummary{}, fmt.Errorf("failed to select market summary of %s: %w", pair, err)
	}
	return summarize(markets, begin, end), nil
}

func summarize(markets models.Markets, begin, end time.Time) models.MarketSummary {
	summary := models.MarketSummary{
		Count:           int64(len(markets)),
		RecordedAtBegin: begin,
		RecordedAtEnd:   end,
	}
	if len(markets) == 0 {
		return summary
	}

	first := markets[0]
	summary.ExRateSellMax, summary.ExRateSellMin = first.ExRateSell, first.ExRateSell
	summary.ExRateBuyMax, summary.ExRateBuyMin = first.ExRateBuy, first.ExRateBuy

	traded := 0
	for _, m := range markets {
		summary.ExRateSellMax = max(summary.ExRateSellMax, m.ExRateSell)
		summary.ExRateSellMin = min(summary.ExRateSellMin, m.ExRateSell)
		summary.ExRateBuyMax = max(summary.ExRateBuyMax, m.ExRateBuy)
		summary.ExRateBuyMin = min(summary.ExRateBuyMin, m.ExRateBuy)
		summary.ExVolumeSellTotal += m.ExVolumeSell
		summary.ExVolumeBuyTotal += m.ExVolumeBuy
		if m.ExVolumeSell > 0 || m.ExVolumeBuy > 0 {
			traded++
		}
	}
	summary.TradeFrequencyRatio = float64(traded) / float64(len(markets))
	return summary
}

// InsertMarket records one market tick.
func (s *Store) InsertMarket(market *models.Market) error {
	if err := s.db.Create(market).Error; err != nil {
		return fmt.Errorf("failed to insert market of %s: %w", market.Pair, err)
	}
	return nil
}

// UpsertBotStatus inserts the status or overwrites the value and memo of the existing
// (bot_name, pair, type) row.
func (s *Store) UpsertBotStatus(status *models.BotStatus) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bot_name"}, {Name: "pair"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "memo", "updated_at"}),
	}).Create(status).Error
	if err != nil {
		return fmt.Errorf("failed to upsert bot status %s/%s: %w", status.Pair, status.Type, err)
	}
	return nil
}

// SelectBotStatus returns a *RecordNotFoundError when no row matches.
func (s *Store) SelectBotStatus(botName, pair, statusType string) (models.BotStatus, error) {
	var status models.BotStatus
	err := s.db.
		Where("bot_name = ? AND pair = ? AND type = ?", botName, pair, statusType).
		First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status, &RecordNotFoundError{
			Table: "bot_statuses",
			Param: fmt.Sprintf("bot_name=%s pair=%s type=%s", botName, pair, statusType),
		}
	}
	if err != nil {
		return status, fmt.Errorf("failed to select bot status %s/%s: %w", pair, statusType, err)
	}
	return status, nil
}

// SelectBotStatuses returns every status of the bot.
func (s *Store) SelectBotStatuses(botName string) ([]models.BotStatus, error) {
	var statuses []models.BotStatus
	err := s.db.Where("bot_name = ?", botName).Order("pair, type").Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select bot statuses of %s: %w", botName, err)
	}
	return statuses, nil
}

func (s *Store) InsertEvent(event *models.Event) error {
	if err := s.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert %s event: %w", event.EventType, err)
	}
	return nil
}

// SelectEvents returns the latest events, newest first.
func (s *Store) SelectEvents(limit int) ([]models.Event, error) {
	var events []models.Event
	if err := s.db.Order("recorded_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	return events, nil
}

// CountEvents counts the events of a type recorded at or after since.
func (s *Store) CountEvents(eventType models.EventType, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.Event{}).
		Where("event_type = ? AND recorded_at >= ?", eventType, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count %s events: %w", eventType, err)
	}
	return count, nil
}
