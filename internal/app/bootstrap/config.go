package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M59.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	KafkaBrokers string
	KafkaTopic   string

	LocationsPath string

	WhatsAppBaseURL       string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppRecipients    map[string]string

	DispatchMaxAttempts int
	RetryBackoffBase    time.Duration
	ProviderTimeout     time.Duration
	DispatchBudget      time.Duration
	WebhookDedupTTL     time.Duration
	ReconcileLockTTL    time.Duration
	ReconcileInterval   time.Duration
	WebhookOrderByEvent bool

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string `yaml:"postgres_url"`
		RedisURL     string `yaml:"redis_url"`
		KafkaBrokers string `yaml:"kafka_brokers"`
		KafkaTopic   string `yaml:"kafka_topic"`
	} `yaml:"dependencies"`
	Locations struct {
		Path string `yaml:"path"`
	} `yaml:"locations"`
	WhatsApp struct {
		BaseURL       string            `yaml:"base_url"`
		AccessToken   string            `yaml:"access_token"`
		PhoneNumberID string            `yaml:"phone_number_id"`
		Recipients    map[string]string `yaml:"recipients"`
	} `yaml:"whatsapp"`
	Dispatch struct {
		MaxAttempts        int    `yaml:"max_attempts"`
		RetryBackoffMillis int    `yaml:"retry_backoff_ms"`
		ProviderTimeoutSec int    `yaml:"provider_timeout_seconds"`
		BudgetSeconds      int    `yaml:"budget_seconds"`
		WebhookOrdering    string `yaml:"webhook_ordering"`
	} `yaml:"dispatch"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:           "M59-POS-Orchestration-Service",
		HTTPPort:            8080,
		GRPCPort:            9090,
		KafkaTopic:          "pos.operational.events",
		LocationsPath:       "configs/locations.yaml",
		WhatsAppBaseURL:     "https://graph.facebook.com/v19.0",
		DispatchMaxAttempts: 3,
		RetryBackoffBase:    250 * time.Millisecond,
		ProviderTimeout:     5 * time.Second,
		DispatchBudget:      8 * time.Second,
		WebhookDedupTTL:     24 * time.Hour,
		ReconcileLockTTL:    2 * time.Minute,
		ReconcileInterval:   15 * time.Minute,
		WebhookOrderByEvent: true,
		MaxDBConns:          20,
		OutboxPollInterval:  2 * time.Second,
		OutboxBatchSize:     100,
		OutboxClaimTTL:      30 * time.Second,
		OutboxMaxRetries:    5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Dependencies.KafkaBrokers != "" {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Dependencies.KafkaTopic != "" {
			cfg.KafkaTopic = f.Dependencies.KafkaTopic
		}
		if f.Locations.Path != "" {
			cfg.LocationsPath = f.Locations.Path
		}
		if f.WhatsApp.BaseURL != "" {
			cfg.WhatsAppBaseURL = f.WhatsApp.BaseURL
		}
		if f.WhatsApp.AccessToken != "" {
			cfg.WhatsAppAccessToken = f.WhatsApp.AccessToken
		}
		if f.WhatsApp.PhoneNumberID != "" {
			cfg.WhatsAppPhoneNumberID = f.WhatsApp.PhoneNumberID
		}
		if len(f.WhatsApp.Recipients) > 0 {
			cfg.WhatsAppRecipients = f.WhatsApp.Recipients
		}
		if f.Dispatch.MaxAttempts > 0 {
			cfg.DispatchMaxAttempts = f.Dispatch.MaxAttempts
		}
		if f.Dispatch.RetryBackoffMillis > 0 {
			cfg.RetryBackoffBase = time.Duration(f.Dispatch.RetryBackoffMillis) * time.Millisecond
		}
		if f.Dispatch.ProviderTimeoutSec > 0 {
			cfg.ProviderTimeout = time.Duration(f.Dispatch.ProviderTimeoutSec) * time.Second
		}
		if f.Dispatch.BudgetSeconds > 0 {
			cfg.DispatchBudget = time.Duration(f.Dispatch.BudgetSeconds) * time.Second
		}
		if mode := strings.ToLower(strings.TrimSpace(f.Dispatch.WebhookOrdering)); mode != "" {
			cfg.WebhookOrderByEvent = mode != "ingestion-order"
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envOrDefault("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.LocationsPath = envOrDefault("LOCATIONS_PATH", cfg.LocationsPath)
	cfg.WhatsAppBaseURL = envOrDefault("WHATSAPP_BASE_URL", cfg.WhatsAppBaseURL)
	cfg.WhatsAppAccessToken = envOrDefault("WHATSAPP_ACCESS_TOKEN", cfg.WhatsAppAccessToken)
	cfg.WhatsAppPhoneNumberID = envOrDefault("WHATSAPP_PHONE_NUMBER_ID", cfg.WhatsAppPhoneNumberID)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.DispatchMaxAttempts = envInt("DISPATCH_MAX_ATTEMPTS", cfg.DispatchMaxAttempts)
	cfg.RetryBackoffBase = time.Duration(envInt("DISPATCH_RETRY_BACKOFF_MS", int(cfg.RetryBackoffBase.Milliseconds()))) * time.Millisecond
	cfg.ProviderTimeout = time.Duration(envInt("PROVIDER_TIMEOUT_SECONDS", int(cfg.ProviderTimeout.Seconds()))) * time.Second
	cfg.DispatchBudget = time.Duration(envInt("DISPATCH_BUDGET_SECONDS", int(cfg.DispatchBudget.Seconds()))) * time.Second
	cfg.WebhookDedupTTL = time.Duration(envInt("WEBHOOK_DEDUP_TTL_HOURS", int(cfg.WebhookDedupTTL.Hours()))) * time.Hour
	cfg.ReconcileLockTTL = time.Duration(envInt("RECONCILE_LOCK_TTL_SECONDS", int(cfg.ReconcileLockTTL.Seconds()))) * time.Second
	cfg.ReconcileInterval = time.Duration(envInt("RECONCILE_INTERVAL_SECONDS", int(cfg.ReconcileInterval.Seconds()))) * time.Second
	cfg.WebhookOrderByEvent = envBool("WEBHOOK_ORDER_BY_EVENT_TIMESTAMP", cfg.WebhookOrderByEvent)
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.LocationsPath == "" {
		return Config{}, fmt.Errorf("missing LOCATIONS_PATH")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
