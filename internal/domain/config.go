package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Upstream collaborator endpoints
	Upstream UpstreamConfig `json:"upstream"`

	// Risk rule thresholds
	Rules RulesConfig `json:"rules"`

	// Circuit breaker guarding the account block call
	Breaker BreakerConfig `json:"breaker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// UpstreamConfig holds the base URLs of the collaborator services.
type UpstreamConfig struct {
	AccountsURL      string        `json:"accountsUrl"`
	TransfersURL     string        `json:"transfersUrl"`
	NotificationsURL string        `json:"notificationsUrl"`
	RequestTimeout   time.Duration `json:"requestTimeout"`
}

// RulesConfig holds the fraud rule parameters. The threshold expressions are
// CEL predicates over an `amount` variable; the defaults implement the
// reference thresholds with strict comparison.
type RulesConfig struct {
	// HighAmountExpr classifies a transaction as immediately fraudulent
	// regardless of history (rule 1).
	HighAmountExpr string `json:"highAmountExpr"`

	// HighValueEntryExpr marks a history entry as high-value for the
	// pattern rule (rule 2).
	HighValueEntryExpr string `json:"highValueEntryExpr"`

	// LookbackMonths is the history window of the pattern rule.
	LookbackMonths int `json:"lookbackMonths"`

	// PatternCount is the number of qualifying history entries at which the
	// pattern rule fires.
	PatternCount int `json:"patternCount"`
}

// BreakerConfig holds circuit breaker parameters for the block call.
type BreakerConfig struct {
	// CallTimeout cuts off a slow block request.
	CallTimeout time.Duration `json:"callTimeout"`

	// ErrorThresholdPct opens the breaker when the failure rate over the
	// rolling window reaches this percentage.
	ErrorThresholdPct int `json:"errorThresholdPct"`

	// VolumeThreshold is the minimum number of calls in the rolling window
	// before the failure rate is evaluated.
	VolumeThreshold int `json:"volumeThreshold"`

	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open probe.
	ResetTimeout time.Duration `json:"resetTimeout"`

	// RollingWindow bounds the failure/volume counters.
	RollingWindow time.Duration `json:"rollingWindow"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns the reference configuration: sqlite storage, local
// cache, channel bus, and the documented rule thresholds.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			HistoryTTL:   60 * time.Second,
			DecisionTTL:  5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Upstream: UpstreamConfig{
			AccountsURL:      "http://microservice-accounts:8000",
			TransfersURL:     "http://microservice-transfers:8000",
			NotificationsURL: "http://microservice-notifications:8000",
			RequestTimeout:   10 * time.Second,
		},
		Rules: RulesConfig{
			HighAmountExpr:     "amount > 2000.0",
			HighValueEntryExpr: "amount > 1000.0",
			LookbackMonths:     2,
			PatternCount:       2,
		},
		Breaker: BreakerConfig{
			CallTimeout:       3 * time.Second,
			ErrorThresholdPct: 50,
			VolumeThreshold:   5,
			ResetTimeout:      10 * time.Second,
			RollingWindow:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// FromEnv overlays environment variables onto the default configuration.
func FromEnv() *Config {
	cfg := DefaultConfig()

	setStr(&cfg.Server.Host, "KESTREL_HOST")
	setInt(&cfg.Server.Port, "KESTREL_PORT")

	setStr(&cfg.Repository.Driver, "KESTREL_DB_DRIVER")
	setStr(&cfg.Repository.SQLitePath, "KESTREL_SQLITE_PATH")
	setStr(&cfg.Repository.PostgresHost, "KESTREL_PG_HOST")
	setInt(&cfg.Repository.PostgresPort, "KESTREL_PG_PORT")
	setStr(&cfg.Repository.PostgresUser, "KESTREL_PG_USER")
	setStr(&cfg.Repository.PostgresPassword, "KESTREL_PG_PASSWORD")
	setStr(&cfg.Repository.PostgresDB, "KESTREL_PG_DB")
	setStr(&cfg.Repository.PostgresSSLMode, "KESTREL_PG_SSLMODE")

	setStr(&cfg.Cache.Type, "KESTREL_CACHE_TYPE")
	setStr(&cfg.Cache.RedisAddr, "KESTREL_REDIS_ADDR")
	setStr(&cfg.Cache.RedisPassword, "KESTREL_REDIS_PASSWORD")
	setDur(&cfg.Cache.HistoryTTL, "KESTREL_HISTORY_TTL")
	setDur(&cfg.Cache.DecisionTTL, "KESTREL_DECISION_TTL")

	setStr(&cfg.EventBus.Type, "KESTREL_BUS_TYPE")
	setStr(&cfg.EventBus.NATSUrl, "KESTREL_NATS_URL")
	setStr(&cfg.EventBus.NATSToken, "KESTREL_NATS_TOKEN")

	setStr(&cfg.Upstream.AccountsURL, "ACCOUNTS_MS_URL")
	setStr(&cfg.Upstream.TransfersURL, "TRANSFERS_MS_URL")
	setStr(&cfg.Upstream.NotificationsURL, "NOTIFICATIONS_MS_URL")

	setStr(&cfg.Rules.HighAmountExpr, "KESTREL_RULE_HIGH_AMOUNT")
	setStr(&cfg.Rules.HighValueEntryExpr, "KESTREL_RULE_HIGH_VALUE_ENTRY")
	setInt(&cfg.Rules.LookbackMonths, "KESTREL_RULE_LOOKBACK_MONTHS")
	setInt(&cfg.Rules.PatternCount, "KESTREL_RULE_PATTERN_COUNT")

	setDur(&cfg.Breaker.CallTimeout, "ACCOUNTS_BLOCK_TIMEOUT")
	setInt(&cfg.Breaker.ErrorThresholdPct, "KESTREL_BREAKER_ERROR_PCT")
	setInt(&cfg.Breaker.VolumeThreshold, "KESTREL_BREAKER_VOLUME")
	setDur(&cfg.Breaker.ResetTimeout, "KESTREL_BREAKER_RESET")

	return cfg
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDur(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
