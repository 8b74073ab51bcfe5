package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupHandler(t *testing.T) (http.Handler, *database.Store, time.Time) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	store := database.NewStore(db)

	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	h := NewAPIHandler(zap.NewNop(), store, "scalping")
	h.now = func() time.Time { return now }

	mux := http.NewServeMux()
	h.Routes(mux)
	return mux, store, now
}

func get(t *testing.T, handler http.Handler, target string, v any) int {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if v != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec.Code
}

func TestEventsHandler(t *testing.T) {
	handler, store, now := setupHandler(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertEvent(&models.Event{
			Pair:       "btc_jpy",
			EventType:  models.EventTypeSell,
			Memo:       "sell",
			RecordedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	var events []models.Event
	require.Equal(t, http.StatusOK, get(t, handler, "/api/events?limit=2", &events))
	require.Len(t, events, 2)
	assert.True(t, events[0].RecordedAt.After(events[1].RecordedAt), "newest first")

	assert.Equal(t, http.StatusBadRequest, get(t, handler, "/api/events?limit=abc", nil))
}

func TestMetricsHandler(t *testing.T) {
	handler, store, _ := setupHandler(t)
	require.NoError(t, store.UpsertBotStatus(&models.BotStatus{BotName: "scalping", Pair: "all", Type: "total_jpy", Value: 100000}))
	require.NoError(t, store.UpsertBotStatus(&models.BotStatus{BotName: "other", Pair: "all", Type: "total_jpy", Value: 5}))

	var statuses []models.BotStatus
	require.Equal(t, http.StatusOK, get(t, handler, "/api/metrics", &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, 100000.0, statuses[0].Value)

	require.Equal(t, http.StatusOK, get(t, handler, "/api/metrics?bot=other", &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, 5.0, statuses[0].Value)
}

func TestStatisticsHandler(t *testing.T) {
	handler, store, now := setupHandler(t)
	events := []models.Event{
		{EventType: models.EventTypeBuy, RecordedAt: now.Add(-time.Hour)},
		{EventType: models.EventTypeSell, RecordedAt: now.Add(-time.Hour)},
		{EventType: models.EventTypeBuy, RecordedAt: now.Add(-48 * time.Hour)},
	}
	for i := range events {
		events[i].Pair = "btc_jpy"
		require.NoError(t, store.InsertEvent(&events[i]))
	}

	var got StatisticsResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/api/statistics", &got))
	assert.Equal(t, StatsDetail{Buys: 1, Sells: 1}, got.Since24h)
	assert.Equal(t, StatsDetail{Buys: 2, Sells: 1}, got.AllTime)
}
