// Package config loads the signal server configuration once at startup.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file
// named by CONFIG_FILE, then environment variables (a local .env file is
// loaded into the environment first). Nothing reads the environment after
// Load returns.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"binarysignal/internal/feed"
	"binarysignal/internal/signalengine"
	"binarysignal/internal/strategy"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Feed sources.
const (
	FeedSim    = "sim"
	FeedRedis  = "redis"
	FeedSQLite = "sqlite"
)

// DefaultWatchSymbols is the watch list used when WATCH_SYMBOLS is unset.
const DefaultWatchSymbols = "EUR/USD,GBP/USD,USD/JPY,AUD/USD,USD/CAD,USD/CHF,NZD/USD"

// Config holds all application configuration.
type Config struct {
	// HTTP / websocket surface
	Port        string `yaml:"port"`
	OwnerName   string `yaml:"owner_name"`
	StaticDir   string `yaml:"static_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	// Orchestrator
	WatchSymbols       string `yaml:"watch_symbols"` // comma-separated, order matters
	MinBroadcastConf   int    `yaml:"min_broadcast_conf"`
	GodModeBoost       int    `yaml:"god_mode_boost"`
	ExpirySeconds      int    `yaml:"binary_expiry_seconds"`
	ScanIntervalMS     int    `yaml:"scan_interval_ms"`
	BackgroundScan     bool   `yaml:"enable_background_scan"`
	RespectMarketHours bool   `yaml:"scan_respect_market_hours"`
	FeedTimeoutMS      int    `yaml:"feed_timeout_ms"`

	// Scorer
	VolSpikeMult  float64 `yaml:"vol_spike_mult"`
	CallThreshold int     `yaml:"conf_threshold_call"`
	PutThreshold  int     `yaml:"conf_threshold_put"`

	// Candle source and signal bus
	FeedSource    string `yaml:"feed_source"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"`
	SignalBus     string `yaml:"signal_bus"` // "redis" to relay broadcasts over pub:signal

	// Alerts
	WebhookURL       string `yaml:"webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	sc := strategy.DefaultConfig()
	return &Config{
		Port:        "3000",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		WatchSymbols:     DefaultWatchSymbols,
		MinBroadcastConf: 60,
		GodModeBoost:     6,
		ExpirySeconds:    60,
		ScanIntervalMS:   5000,
		FeedTimeoutMS:    5000,

		VolSpikeMult:  sc.VolumeSpikeMultiplier,
		CallThreshold: sc.CallThreshold,
		PutThreshold:  sc.PutThreshold,

		FeedSource: FeedSim,
		RedisAddr:  "localhost:6379",
		SQLitePath: "data/candles.db",
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env: %v", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.OwnerName = getEnv("OWNER_NAME", c.OwnerName)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.WatchSymbols = getEnv("WATCH_SYMBOLS", c.WatchSymbols)
	c.FeedSource = strings.ToLower(getEnv("FEED_SOURCE", c.FeedSource))
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.SignalBus = strings.ToLower(getEnv("SIGNAL_BUS", c.SignalBus))
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)

	var errs []error
	intVar := func(key string, dst *int) {
		if err := getEnvInt(key, dst); err != nil {
			errs = append(errs, err)
		}
	}
	intVar("MIN_BROADCAST_CONF", &c.MinBroadcastConf)
	intVar("GOD_MODE_BOOST", &c.GodModeBoost)
	intVar("BINARY_EXPIRY_SECONDS", &c.ExpirySeconds)
	intVar("SCAN_INTERVAL_MS", &c.ScanIntervalMS)
	intVar("FEED_TIMEOUT_MS", &c.FeedTimeoutMS)
	intVar("CONF_THRESHOLD_CALL", &c.CallThreshold)
	intVar("CONF_THRESHOLD_PUT", &c.PutThreshold)

	if v := os.Getenv("VOL_SPIKE_MULT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: VOL_SPIKE_MULT=%q", ErrInvalid, v))
		} else {
			c.VolSpikeMult = f
		}
	}

	// Booleans follow the "true" convention: any other non-empty value is false.
	if v := os.Getenv("ENABLE_BACKGROUND_SCAN"); v != "" {
		c.BackgroundScan = v == "true"
	}
	if v := os.Getenv("SCAN_RESPECT_MARKET_HOURS"); v != "" {
		c.RespectMarketHours = v == "true"
	}

	return errors.Join(errs...)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if len(c.WatchList()) == 0 {
		problems = append(problems, "watch list is empty")
	}
	if c.PutThreshold > c.CallThreshold {
		problems = append(problems, fmt.Sprintf("put threshold %d above call threshold %d", c.PutThreshold, c.CallThreshold))
	}
	if c.ScanIntervalMS <= 0 {
		problems = append(problems, "scan interval must be positive")
	}
	if c.ExpirySeconds <= 0 {
		problems = append(problems, "expiry must be positive")
	}
	if c.FeedTimeoutMS <= 0 {
		problems = append(problems, "feed timeout must be positive")
	}
	if c.GodModeBoost < 0 {
		problems = append(problems, "god mode boost must not be negative")
	}
	if c.VolSpikeMult <= 0 {
		problems = append(problems, "volume spike multiplier must be positive")
	}
	switch c.FeedSource {
	case FeedSim, FeedRedis, FeedSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unknown feed source %q", c.FeedSource))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// WatchList returns the parsed watch list.
func (c *Config) WatchList() []string {
	return ParseWatchList(c.WatchSymbols)
}

// ParseWatchList splits a comma-separated list, trimming blanks and
// dropping duplicates while keeping first-seen order.
func ParseWatchList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// StrategyConfig returns the scorer configuration.
func (c *Config) StrategyConfig() strategy.Config {
	return strategy.Config{
		VolumeSpikeMultiplier: c.VolSpikeMult,
		CallThreshold:         c.CallThreshold,
		PutThreshold:          c.PutThreshold,
	}
}

// EngineConfig returns the orchestrator configuration.
func (c *Config) EngineConfig() signalengine.Config {
	return signalengine.Config{
		MinBroadcastConfidence: c.MinBroadcastConf,
		BoostDelta:             c.GodModeBoost,
		Expiry:                 time.Duration(c.ExpirySeconds) * time.Second,
		ScanInterval:           time.Duration(c.ScanIntervalMS) * time.Millisecond,
		WatchList:              c.WatchList(),
		WindowSize:             signalengine.DefaultWindowSize,
	}
}

// GuardConfig returns the feed breaker settings, including the per-call
// upstream timeout.
func (c *Config) GuardConfig() feed.GuardConfig {
	return feed.GuardConfig{Timeout: time.Duration(c.FeedTimeoutMS) * time.Millisecond}
}

// UseRedisBus reports whether broadcasts are relayed through Redis PubSub.
func (c *Config) UseRedisBus() bool {
	return c.SignalBus == "redis"
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}
