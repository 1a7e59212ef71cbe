package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string

	ChatBaseURL    string
	ChatToken      string
	ChatRatePerSec float64

	LeaseTTL      time.Duration
	SweepInterval time.Duration
	DrainInterval time.Duration
	DrainBatch    int

	KarmaMax         int
	KarmaDefault     int
	KarmaDropPenalty int
	KarmaGameBonus   int

	ReminderDelay   time.Duration
	NotificationTTL time.Duration

	MetricsAddr string
	MessagesDir string
	WorkerID    string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ChatRatePerSec:   5,
		LeaseTTL:         30 * time.Second,
		SweepInterval:    15 * time.Second,
		DrainInterval:    5 * time.Second,
		DrainBatch:       100,
		KarmaMax:         100,
		KarmaDefault:     75,
		KarmaDropPenalty: 10,
		KarmaGameBonus:   1,
		ReminderDelay:    15 * time.Minute,
		NotificationTTL:  30 * 24 * time.Hour,
		MetricsAddr:      ":9102",
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ChatBaseURL = strings.TrimSpace(os.Getenv("CHAT_BASE_URL"))
	cfg.ChatToken = strings.TrimSpace(os.Getenv("CHAT_TOKEN"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("CHAT_RATE_PER_SEC")); v != "" {
		// 0 disables the limiter
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.ChatRatePerSec = f
		}
	}

	cfg.LeaseTTL = seconds("LEASE_TTL_SEC", cfg.LeaseTTL)
	cfg.SweepInterval = seconds("SWEEP_INTERVAL_SEC", cfg.SweepInterval)
	cfg.DrainInterval = seconds("DRAIN_INTERVAL_SEC", cfg.DrainInterval)
	cfg.ReminderDelay = seconds("REMINDER_DELAY_SEC", cfg.ReminderDelay)
	if v := strings.TrimSpace(os.Getenv("NOTIFICATION_TTL_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NotificationTTL = time.Duration(n) * 24 * time.Hour
		}
	}

	cfg.DrainBatch = positive("DRAIN_BATCH", cfg.DrainBatch)
	cfg.KarmaMax = positive("KARMA_MAX", cfg.KarmaMax)
	cfg.KarmaDefault = positive("KARMA_DEFAULT", cfg.KarmaDefault)
	cfg.KarmaDropPenalty = positive("KARMA_DROP_PENALTY", cfg.KarmaDropPenalty)
	cfg.KarmaGameBonus = positive("KARMA_GAME_BONUS", cfg.KarmaGameBonus)

	if v := strings.TrimSpace(os.Getenv("METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	if strings.EqualFold(cfg.MetricsAddr, "off") {
		cfg.MetricsAddr = ""
	}

	cfg.WorkerID = strings.TrimSpace(os.Getenv("WORKER_ID"))
	if cfg.WorkerID == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.WorkerID = h
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.KarmaDefault > cfg.KarmaMax {
		return nil, errors.New("KARMA_DEFAULT must not exceed KARMA_MAX")
	}

	return cfg, nil
}

func positive(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func seconds(key string, def time.Duration) time.Duration {
	if n := positive(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
