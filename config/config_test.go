package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var envKeys = []string{
	"CONFIG_FILE", "PORT", "OWNER_NAME", "STATIC_DIR", "METRICS_ADDR", "LOG_LEVEL",
	"WATCH_SYMBOLS", "MIN_BROADCAST_CONF", "GOD_MODE_BOOST", "BINARY_EXPIRY_SECONDS",
	"SCAN_INTERVAL_MS", "ENABLE_BACKGROUND_SCAN", "SCAN_RESPECT_MARKET_HOURS", "FEED_TIMEOUT_MS",
	"VOL_SPIKE_MULT", "CONF_THRESHOLD_CALL", "CONF_THRESHOLD_PUT", "FEED_SOURCE", "REDIS_ADDR",
	"REDIS_PASSWORD", "SQLITE_PATH", "SIGNAL_BUS", "WEBHOOK_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
}

// clearEnv blanks every key Load reads; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "3000" || cfg.FeedSource != FeedSim || cfg.BackgroundScan {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if got := len(cfg.WatchList()); got != 7 {
		t.Errorf("expected 7 default pairs, got %d", got)
	}

	ec := cfg.EngineConfig()
	if ec.MinBroadcastConfidence != 60 || ec.BoostDelta != 6 || ec.Expiry != time.Minute || ec.ScanInterval != 5*time.Second {
		t.Errorf("unexpected engine config: %+v", ec)
	}
	sc := cfg.StrategyConfig()
	if sc.VolumeSpikeMultiplier != 2.0 || sc.CallThreshold != 60 || sc.PutThreshold != 40 {
		t.Errorf("unexpected strategy config: %+v", sc)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCH_SYMBOLS", " EUR/USD , BTC/USD,,EUR/USD ")
	t.Setenv("MIN_BROADCAST_CONF", "70")
	t.Setenv("GOD_MODE_BOOST", "10")
	t.Setenv("BINARY_EXPIRY_SECONDS", "120")
	t.Setenv("SCAN_INTERVAL_MS", "2500")
	t.Setenv("ENABLE_BACKGROUND_SCAN", "true")
	t.Setenv("VOL_SPIKE_MULT", "3.5")
	t.Setenv("FEED_SOURCE", "SQLite")
	t.Setenv("FEED_TIMEOUT_MS", "750")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"EUR/USD", "BTC/USD"}; !reflect.DeepEqual(cfg.WatchList(), want) {
		t.Errorf("watch list = %v, want %v", cfg.WatchList(), want)
	}
	ec := cfg.EngineConfig()
	if ec.MinBroadcastConfidence != 70 || ec.BoostDelta != 10 || ec.Expiry != 2*time.Minute || ec.ScanInterval != 2500*time.Millisecond {
		t.Errorf("unexpected engine config: %+v", ec)
	}
	if !cfg.BackgroundScan || cfg.VolSpikeMult != 3.5 || cfg.FeedSource != FeedSQLite {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if gc := cfg.GuardConfig(); gc.Timeout != 750*time.Millisecond {
		t.Errorf("feed timeout = %v, want 750ms", gc.Timeout)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "signal.yaml")
	doc := []byte("port: \"8080\"\nowner_name: Desk\nconf_threshold_call: 65\nmin_broadcast_conf: 55\n")
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MIN_BROADCAST_CONF", "75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.OwnerName != "Desk" || cfg.CallThreshold != 65 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.MinBroadcastConf != 75 {
		t.Errorf("env should override yaml, got %d", cfg.MinBroadcastConf)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad int", map[string]string{"GOD_MODE_BOOST": "six"}},
		{"bad float", map[string]string{"VOL_SPIKE_MULT": "x"}},
		{"thresholds crossed", map[string]string{"CONF_THRESHOLD_CALL": "40", "CONF_THRESHOLD_PUT": "60"}},
		{"zero interval", map[string]string{"SCAN_INTERVAL_MS": "0"}},
		{"empty watch list", map[string]string{"WATCH_SYMBOLS": " , "}},
		{"unknown feed", map[string]string{"FEED_SOURCE": "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestParseWatchList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"EUR/USD,GBP/USD", []string{"EUR/USD", "GBP/USD"}},
		{" GBP/USD ,EUR/USD,GBP/USD", []string{"GBP/USD", "EUR/USD"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		if got := ParseWatchList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseWatchList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
