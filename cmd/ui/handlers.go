package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"coincheck-trade-bot-go/internal/database"
	"coincheck-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

const defaultEventLimit = 100

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log     *zap.Logger
	store   database.StoreInterface
	botName string
	now     func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, store database.StoreInterface, botName string) *APIHandler {
	return &APIHandler{log: log, store: store, botName: botName, now: time.Now}
}

// Routes registers the API endpoints on mux.
func (h *APIHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/events", h.EventsHandler)
	mux.HandleFunc("/api/metrics", h.MetricsHandler)
	mux.HandleFunc("/api/statistics", h.StatisticsHandler)
}

// EventsHandler returns the latest events. ?limit= caps the count.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.store.SelectEvents(limit)
	if err != nil {
		h.log.Error("Failed to get events from database", zap.Error(err))
		http.Error(w, "Failed to get events", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, events)
}

// MetricsHandler returns the metrics the bot persisted. ?bot= overrides the configured bot.
func (h *APIHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	botName := h.botName
	if v := r.URL.Query().Get("bot"); v != "" {
		botName = v
	}

	statuses, err := h.store.SelectBotStatuses(botName)
	if err != nil {
		h.log.Error("Failed to get metrics from database", zap.Error(err))
		http.Error(w, "Failed to get metrics", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, statuses)
}

// StatsDetail holds the event counts of a given period.
type StatsDetail struct {
	Buys  int64 `json:"buys"`
	Sells int64 `json:"sells"`
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler counts the buy and sell events.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	since24h, err := h.countEvents(h.now().Add(-24 * time.Hour))
	if err != nil {
		h.log.Error("Failed to count events for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}
	allTime, err := h.countEvents(time.Time{})
	if err != nil {
		h.log.Error("Failed to count events for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, StatisticsResponse{Since24h: since24h, AllTime: allTime})
}

func (h *APIHandler) countEvents(since time.Time) (StatsDetail, error) {
	buys, err := h.store.CountEvents(models.EventTypeBuy, since)
	if err != nil {
		return StatsDetail{}, err
	}
	sells, err := h.store.CountEvents(models.EventTypeSell, since)
	if err != nil {
		return StatsDetail{}, err
	}
	return StatsDetail{Buys: buys, Sells: sells}, nil
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}
