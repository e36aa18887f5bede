package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "AUDIT_RISK_SERVICE"

// Config holds all configuration for the audit risk service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Priority  PriorityConfig  `mapstructure:"priority"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestSize  string        `mapstructure:"max_request_size"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // memory | postgres
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis configuration for the distributed area lock
type RedisConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	Password             string        `mapstructure:"password"`
	DB                   int           `mapstructure:"db"`
	PoolSize             int           `mapstructure:"pool_size"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	LockPrefix           string        `mapstructure:"lock_prefix"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	LockRetryDelay       time.Duration `mapstructure:"lock_retry_delay"`
	LockRetryCount       int           `mapstructure:"lock_retry_count"`
	// renewal period of a held lock; zero disables renewal
	LockWatchdogInterval time.Duration `mapstructure:"lock_watchdog_interval"`
}

// KafkaConfig holds Kafka configuration for recalculation events
type KafkaConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Brokers    []string      `mapstructure:"brokers"`
	ClientID   string        `mapstructure:"client_id"`
	RiskEvents string        `mapstructure:"risk_events_topic"`
	MaxRetries int           `mapstructure:"max_retries"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the producer
type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// ScoringConfig holds the numeric inputs of the risk pipeline
type ScoringConfig struct {
	// WeightSource is "config" or "database"
	WeightSource   string               `mapstructure:"weight_source"`
	Watch          bool                 `mapstructure:"watch"`
	Factors        FactorWeights        `mapstructure:"factors"`
	CoverageBlend  CoverageBlendWeights `mapstructure:"coverage_blend"`
	ResidualBlend  ResidualBlendWeights `mapstructure:"residual_blend"`
	CoverageRatios CoverageRatios       `mapstructure:"coverage_ratios"`
	Thresholds     Thresholds           `mapstructure:"thresholds"`
}

// FactorWeights are the inherent-risk factor weights
type FactorWeights struct {
	FinancialImpact          float64 `mapstructure:"financial_impact"`
	LegalComplianceImpact    float64 `mapstructure:"legal_compliance_impact"`
	StrategicSignificance    float64 `mapstructure:"strategic_significance"`
	TechnologicalCyberImpact float64 `mapstructure:"technological_cyber_impact"`
	NewProcessSystem         float64 `mapstructure:"new_process_system"`
	StakeholderImpact        float64 `mapstructure:"stakeholder_impact"`
	CLevelConcerns           float64 `mapstructure:"c_level_concerns"`
}

// CoverageBlendWeights weight each provider's coverage ratio in the haircut
type CoverageBlendWeights struct {
	InternalAudit float64 `mapstructure:"internal_audit"`
	ThirdParty    float64 `mapstructure:"third_party"`
}

// ResidualBlendWeights weight internal-audit and enterprise residual risk
type ResidualBlendWeights struct {
	InternalAudit float64 `mapstructure:"internal_audit"`
	Enterprise    float64 `mapstructure:"enterprise"`
}

// CoverageRatios map coverage levels to haircut ratios
type CoverageRatios struct {
	Comprehensive float64 `mapstructure:"comprehensive"`
	Moderate      float64 `mapstructure:"moderate"`
	Limited       float64 `mapstructure:"limited"`
}

// Thresholds are the lower bounds of the Medium and High bands on both scales
type Thresholds struct {
	InherentHigh   float64 `mapstructure:"inherent_high"`
	InherentMedium float64 `mapstructure:"inherent_medium"`
	CombinedHigh   float64 `mapstructure:"combined_high"`
	CombinedMedium float64 `mapstructure:"combined_medium"`
}

// PriorityConfig holds audit scheduling configuration
type PriorityConfig struct {
	YearOffsetHigh   int `mapstructure:"year_offset_high"`
	YearOffsetMedium int `mapstructure:"year_offset_medium"`
	YearOffsetLow    int `mapstructure:"year_offset_low"`
}

// BatchConfig holds bulk recomputation configuration
type BatchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	Environment   string  `mapstructure:"environment"`
	OTLPEndpoint  string  `mapstructure:"otlp_endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load loads configuration from environment and config files. An empty path
// searches ./configs and /etc/audit-risk-service for config.yaml.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

// LoadAndWatch loads configuration and calls onChange with the re-read
// configuration whenever the config file changes on disk. Without a config
// file there is nothing to watch and onChange is never called.
func LoadAndWatch(path string, onChange func(*Config, error)) (*Config, error) {
	cfg, v, err := load(path)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	v.OnConfigChange(func(fsnotify.Event) {
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			onChange(nil, err)
			return
		}
		onChange(&next, nil)
	})
	v.WatchConfig()

	return cfg, nil
}

func load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional unless a path is given)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/audit-risk-service")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, nil, err
			}
			// Config file not found, use defaults + env
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_request_size", "1M")

	v.SetDefault("storage.backend", "memory")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "audit_risk_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")
	v.SetDefault("redis.lock_prefix", "audit-risk:lock:area")
	v.SetDefault("redis.lock_ttl", "30s")
	v.SetDefault("redis.lock_retry_delay", "50ms")
	v.SetDefault("redis.lock_retry_count", 100)
	v.SetDefault("redis.lock_watchdog_interval", "10s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "audit-risk-service")
	v.SetDefault("kafka.risk_events_topic", "audit.risk.recalculated")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.breaker.max_requests", 1)
	v.SetDefault("kafka.breaker.interval", "60s")
	v.SetDefault("kafka.breaker.timeout", "30s")
	v.SetDefault("kafka.breaker.consecutive_failures", 5)

	// Scoring defaults
	v.SetDefault("scoring.weight_source", "config")
	v.SetDefault("scoring.watch", false)
	v.SetDefault("scoring.factors.financial_impact", 0.15)
	v.SetDefault("scoring.factors.legal_compliance_impact", 0.15)
	v.SetDefault("scoring.factors.strategic_significance", 0.20)
	v.SetDefault("scoring.factors.technological_cyber_impact", 0.15)
	v.SetDefault("scoring.factors.new_process_system", 0.10)
	v.SetDefault("scoring.factors.stakeholder_impact", 0.10)
	v.SetDefault("scoring.factors.c_level_concerns", 0.15)
	v.SetDefault("scoring.coverage_blend.internal_audit", 0.5)
	v.SetDefault("scoring.coverage_blend.third_party", 0.5)
	v.SetDefault("scoring.residual_blend.internal_audit", 0.8)
	v.SetDefault("scoring.residual_blend.enterprise", 0.2)
	v.SetDefault("scoring.coverage_ratios.comprehensive", 0.95)
	v.SetDefault("scoring.coverage_ratios.moderate", 0.50)
	v.SetDefault("scoring.coverage_ratios.limited", 0.15)
	v.SetDefault("scoring.thresholds.inherent_high", 1.8)
	v.SetDefault("scoring.thresholds.inherent_medium", 1.0)
	v.SetDefault("scoring.thresholds.combined_high", 3.6)
	v.SetDefault("scoring.thresholds.combined_medium", 2.1)

	// Priority defaults
	v.SetDefault("priority.year_offset_high", 1)
	v.SetDefault("priority.year_offset_medium", 2)
	v.SetDefault("priority.year_offset_low", 3)

	// Batch defaults
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.timeout", "10m")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "audit-risk-service")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 0.1)

	v.SetDefault("logging.debug", false)
}
