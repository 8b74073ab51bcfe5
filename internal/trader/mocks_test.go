package trader

import (
	"context"
	"time"

	"coincheck-trade-bot-go/internal/coincheck"
	"coincheck-trade-bot-go/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of coincheck.ClientInterface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetTickerRate(ctx context.Context, side coincheck.OrderType, pair string) (float64, error) {
	args := m.Called(ctx, side, pair)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockClient) GetBalances(ctx context.Context) (map[string]coincheck.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]coincheck.Balance), args.Error(1)
}

func (m *MockClient) GetOpenOrders(ctx context.Context) ([]coincheck.OpenOrder, error) {
	args := m.Called(ctx)
	return args.Get(0).([]coincheck.OpenOrder), args.Error(1)
}

func (m *MockClient) GetOrderBooks(ctx context.Context, pair string) (coincheck.OrderBooks, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(coincheck.OrderBooks), args.Error(1)
}

func (m *MockClient) PlaceOrder(ctx context.Context, order coincheck.NewOrder) (coincheck.Order, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(coincheck.Order), args.Error(1)
}

func (m *MockClient) CancelOrder(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockClient) GetCancelStatus(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) GetTrades(ctx context.Context, pair string) ([]coincheck.Trade, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).([]coincheck.Trade), args.Error(1)
}

// MockStore is a mock implementation of database.StoreInterface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SelectMarkets(pair string, since time.Time) (models.Markets, error) {
	args := m.Called(pair, since)
	return args.Get(0).(models.Markets), args.Error(1)
}

func (m *MockStore) SelectMarketSummary(pair string, offsetHour int, now time.Time) (models.MarketSummary, error) {
	args := m.Called(pair, offsetHour, now)
	return args.Get(0).(models.MarketSummary), args.Error(1)
}

func (m *MockStore) InsertMarket(market *models.Market) error {
	return m.Called(market).Error(0)
}

func (m *MockStore) UpsertBotStatus(status *models.BotStatus) error {
	return m.Called(status).Error(0)
}

func (m *MockStore) SelectBotStatus(botName, pair, statusType string) (models.BotStatus, error) {
	args := m.Called(botName, pair, statusType)
	return args.Get(0).(models.BotStatus), args.Error(1)
}

func (m *MockStore) SelectBotStatuses(botName string) ([]models.BotStatus, error) {
	args := m.Called(botName)
	return args.Get(0).([]models.BotStatus), args.Error(1)
}

func (m *MockStore) InsertEvent(event *models.Event) error {
	return m.Called(event).Error(0)
}

func (m *MockStore) SelectEvents(limit int) ([]models.Event, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockStore) CountEvents(eventType models.EventType, since time.Time) (int64, error) {
	args := m.Called(eventType, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotifier is a mock implementation of slack.ClientInterface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PostMessage(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

// MockLocker is a mock implementation of lock.Locker.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Hold(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) RefreshInterval() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

func (m *MockLocker) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
