package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coincheck-trade-bot-go/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Bot       Bot       `mapstructure:"bot"`
	Exchange  Exchange  `mapstructure:"exchange"`
	Strategy  Strategy  `mapstructure:"strategy"`
	Collector Collector `mapstructure:"collector"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Slack     Slack     `mapstructure:"slack"`
	Redis     Redis     `mapstructure:"redis"`
}

// Bot holds the control loop configuration.
type Bot struct {
	Name              string `mapstructure:"name"`
	TargetPair        string `mapstructure:"target_pair"`
	Strategy          string `mapstructure:"strategy"`
	IntervalSec       int    `mapstructure:"interval_sec"`
	RatePeriodMinutes int    `mapstructure:"rate_period_minutes"`
	DemoMode          bool   `mapstructure:"demo_mode"`

	// Order fills and cancels are polled at this interval, at most
	// ExternalServiceMaxAttempts times. 0 waits forever.
	ExternalServiceWaitIntervalSec int `mapstructure:"external_service_wait_interval_sec"`
	ExternalServiceMaxAttempts     int `mapstructure:"external_service_max_attempts"`
}

// Interval returns the control loop interval.
func (b Bot) Interval() time.Duration {
	return time.Duration(b.IntervalSec) * time.Second
}

// RatePeriod returns how far back the rate history reaches.
func (b Bot) RatePeriod() time.Duration {
	return time.Duration(b.RatePeriodMinutes) * time.Minute
}

// WaitInterval returns the polling interval for order fills and cancels.
func (b Bot) WaitInterval() time.Duration {
	return time.Duration(b.ExternalServiceWaitIntervalSec) * time.Second
}

// Pair parses the target pair.
func (b Bot) Pair() (models.Pair, error) {
	return models.ParsePair(b.TargetPair)
}

// Exchange holds the configuration for the Coincheck API.
type Exchange struct {
	AccessKey      string  `mapstructure:"access_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Strategy holds the thresholds of the scalping strategy.
// Width ratios are multiplied by the current sell rate to get absolute line widths.
type Strategy struct {
	WMAPeriodShort int `mapstructure:"wma_period_short"`
	WMAPeriodLong  int `mapstructure:"wma_period_long"`

	ResistanceLinePeriod          int     `mapstructure:"resistance_line_period"`
	ResistanceLineOffset          int     `mapstructure:"resistance_line_offset"`
	ResistanceLineWidthRatioUpper float64 `mapstructure:"resistance_line_width_ratio_upper"`
	ResistanceLineWidthRatioLower float64 `mapstructure:"resistance_line_width_ratio_lower"`
	SupportLinePeriodLong         int     `mapstructure:"support_line_period_long"`
	SupportLinePeriodShort        int     `mapstructure:"support_line_period_short"`
	SupportLineOffset             int     `mapstructure:"support_line_offset"`
	SupportLineWidthRatioUpper    float64 `mapstructure:"support_line_width_ratio_upper"`
	SupportLineWidthRatioLower    float64 `mapstructure:"support_line_width_ratio_lower"`
	ReboundCheckPeriod            int     `mapstructure:"rebound_check_period"`
	VolumePeriodShort             int     `mapstructure:"volume_period_short"`
	OrderBooksSizeRatio           float64 `mapstructure:"order_books_size_ratio"`
	FundsRatioPerOrder            float64 `mapstructure:"funds_ratio_per_order"`
	ProfitRatioPerOrder           float64 `mapstructure:"profit_ratio_per_order"`
	OffsetSellRateRatio           float64 `mapstructure:"offset_sell_rate_ratio"`
	HoldLimitMinutes              int     `mapstructure:"hold_limit_minutes"`
	AvgDownRateRatio              float64 `mapstructure:"avg_down_rate_ratio"`
	LossCutRateRatio              float64 `mapstructure:"loss_cut_rate_ratio"`
	EntrySkipRateRatio            float64 `mapstructure:"entry_skip_rate_ratio"`
	OverSellVolumeRatio           float64 `mapstructure:"over_sell_volume_ratio"`
	RequiredTradeFrequencyRatio   float64 `mapstructure:"required_trade_frequency_ratio"`
	KeepLot                       float64 `mapstructure:"keep_lot"`
	UnusedCoinBorder              float64 `mapstructure:"unused_coin_border"`
	NotificationIntervalMinutes   int     `mapstructure:"notification_interval_minutes"`
	MarketSummaryOffsetHour       int     `mapstructure:"market_summary_offset_hour"`
}

// HoldLimit returns how long a sell order may rest before it is averaged down.
func (s Strategy) HoldLimit() time.Duration {
	return time.Duration(s.HoldLimitMinutes) * time.Minute
}

// Collector holds the configuration of the market recorder.
type Collector struct {
	IntervalSec int `mapstructure:"interval_sec"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the web servers.
type Server struct {
	Port       int `mapstructure:"port"`
	StatusPort int `mapstructure:"status_port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver   string `mapstructure:"driver"` // sqlite or mysql
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Slack holds the incoming webhook used for notifications.
type Slack struct {
	URL string `mapstructure:"url"`
}

// Redis holds the configuration of the single-worker lock. An empty Addr disables it.
type Redis struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	LockTTLSec int    `mapstructure:"lock_ttl_sec"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.name", "scalping")
	v.SetDefault("bot.target_pair", "btc_jpy")
	v.SetDefault("bot.strategy", "scalping")
	v.SetDefault("bot.interval_sec", 60)
	v.SetDefault("bot.rate_period_minutes", 180)
	v.SetDefault("bot.demo_mode", true)
	v.SetDefault("bot.external_service_wait_interval_sec", 3)
	v.SetDefault("bot.external_service_max_attempts", 0)

	v.SetDefault("exchange.access_key", "")
	v.SetDefault("exchange.secret_key", "")
	v.SetDefault("exchange.base_url", "https://coincheck.com")
	v.SetDefault("exchange.rate_limit", 5) // requests per second
	v.SetDefault("exchange.rate_limit_burst", 1)

	v.SetDefault("strategy.wma_period_short", 5)
	v.SetDefault("strategy.wma_period_long", 60)
	v.SetDefault("strategy.resistance_line_period", 60)
	v.SetDefault("strategy.resistance_line_offset", 1)
	v.SetDefault("strategy.resistance_line_width_ratio_upper", 0.005)
	v.SetDefault("strategy.resistance_line_width_ratio_lower", 0.0)
	v.SetDefault("strategy.support_line_period_long", 60)
	v.SetDefault("strategy.support_line_period_short", 15)
	v.SetDefault("strategy.support_line_offset", 1)
	v.SetDefault("strategy.support_line_width_ratio_upper", 0.003)
	v.SetDefault("strategy.support_line_width_ratio_lower", 0.005)
	v.SetDefault("strategy.rebound_check_period", 15)
	v.SetDefault("strategy.volume_period_short", 5)
	v.SetDefault("strategy.order_books_size_ratio", 5.0)
	v.SetDefault("strategy.funds_ratio_per_order", 0.1)
	v.SetDefault("strategy.profit_ratio_per_order", 0.0015)
	v.SetDefault("strategy.offset_sell_rate_ratio", 0.0005)
	v.SetDefault("strategy.hold_limit_minutes", 10)
	v.SetDefault("strategy.avg_down_rate_ratio", 0.97)
	v.SetDefault("strategy.loss_cut_rate_ratio", 0.80)
	v.SetDefault("strategy.entry_skip_rate_ratio", 0.96)
	v.SetDefault("strategy.over_sell_volume_ratio", 0.022)
	v.SetDefault("strategy.required_trade_frequency_ratio", 0.2)
	v.SetDefault("strategy.keep_lot", 1.0)
	v.SetDefault("strategy.unused_coin_border", 1.0)
	v.SetDefault("strategy.notification_interval_minutes", 5)
	v.SetDefault("strategy.market_summary_offset_hour", 1)

	v.SetDefault("collector.interval_sec", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.status_port", 8081)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "trade_bot.db")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")

	v.SetDefault("slack.url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl_sec", 300)
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory is loaded into the environment first.
func LoadConfig(path string) (config Config, err error) {
	if err = loadDotEnv(".env"); err != nil {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config in %s: %w", path, err)
		}
		// defaults and the environment are enough to run
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	err = config.Validate()
	return
}

func loadDotEnv(name string) error {
	path, err := filepath.Abs(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks the values that would otherwise make the bot misbehave silently.
func (c Config) Validate() error {
	if c.Bot.Name == "" {
		return errors.New("bot.name is required")
	}
	if _, err := c.Bot.Pair(); err != nil {
		return fmt.Errorf("bot.target_pair: %w", err)
	}
	if c.Bot.IntervalSec <= 0 {
		return fmt.Errorf("bot.interval_sec must be positive, got %d", c.Bot.IntervalSec)
	}
	if c.Collector.IntervalSec <= 0 {
		return fmt.Errorf("collector.interval_sec must be positive, got %d", c.Collector.IntervalSec)
	}
	if c.Bot.ExternalServiceMaxAttempts < 0 {
		return fmt.Errorf("bot.external_service_max_attempts must not be negative, got %d", c.Bot.ExternalServiceMaxAttempts)
	}
	s := c.Strategy
	if s.WMAPeriodShort <= 0 || s.WMAPeriodLong <= 0 {
		return errors.New("strategy.wma_period_short and strategy.wma_period_long must be positive")
	}
	if s.NotificationIntervalMinutes <= 0 {
		return errors.New("strategy.notification_interval_minutes must be positive")
	}
	if s.OffsetSellRateRatio <= -1 {
		return fmt.Errorf("strategy.offset_sell_rate_ratio must be greater than -1, got %f", s.OffsetSellRateRatio)
	}
	if c.Redis.Addr != "" && c.Redis.LockTTLSec <= 0 {
		return fmt.Errorf("redis.lock_ttl_sec must be positive when redis.addr is set, got %d", c.Redis.LockTTLSec)
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.Database.Driver)
	}
	return nil
}
