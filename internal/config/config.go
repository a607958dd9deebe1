package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RemoteDriverPostgres = "postgres"
	RemoteDriverMemory   = "memory"
)

type Config struct {
	ServerPort string
	LogLevel   string

	RemoteDriver string
	DatabaseURL  string
	RedisURL     string

	MirrorPath       string
	MirrorSchemaFile string
	NodeID           string

	VATRate             decimal.Decimal
	ReportLocation      *time.Location
	ReportsPreferRemote bool

	SyncInterval              time.Duration
	SyncRemoteTimeout         time.Duration
	ConnectivityProbeInterval time.Duration
	BannerDuration            time.Duration
}

func LoadConfig() (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RemoteDriver:     getEnv("REMOTE_DRIVER", RemoteDriverPostgres),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		MirrorPath:       getEnv("MIRROR_PATH", "edgeledger.db"),
		MirrorSchemaFile: os.Getenv("MIRROR_SCHEMA_FILE"),
		NodeID:           getEnv("NODE_ID", hostname),
	}

	var err error
	cfg.VATRate, err = decimal.NewFromString(getEnv("VAT_RATE", "0.05"))
	if err != nil || cfg.VATRate.IsNegative() {
		return nil, errors.New("invalid VAT_RATE format")
	}

	cfg.ReportLocation, err = time.LoadLocation(getEnv("REPORT_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE: %w", err)
	}

	cfg.ReportsPreferRemote, err = strconv.ParseBool(getEnv("REPORTS_PREFER_REMOTE", "false"))
	if err != nil {
		return nil, errors.New("invalid REPORTS_PREFER_REMOTE format")
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"SYNC_INTERVAL", "30s", &cfg.SyncInterval},
		{"SYNC_REMOTE_TIMEOUT", "10s", &cfg.SyncRemoteTimeout},
		{"CONNECTIVITY_PROBE_INTERVAL", "5s", &cfg.ConnectivityProbeInterval},
		{"BANNER_DURATION", "3s", &cfg.BannerDuration},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid %s format", d.key)
		}
		*d.dest = v
	}

	// Validate required fields
	switch cfg.RemoteDriver {
	case RemoteDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case RemoteDriverMemory:
	default:
		return nil, fmt.Errorf("unknown REMOTE_DRIVER %q", cfg.RemoteDriver)
	}
	if cfg.MirrorPath == "" {
		return nil, errors.New("MIRROR_PATH is required")
	}
	if cfg.NodeID == "" {
		return nil, errors.New("NODE_ID is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
