package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	Auth       AuthConfig      `mapstructure:"auth"`
	Store      StoreConfig     `mapstructure:"store"`
	Mailbox    MailboxConfig   `mapstructure:"mailbox"`
	Redis      RedisConfig     `mapstructure:"redis"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Export     ExportConfig    `mapstructure:"export"`
	Relay      RelayConfig     `mapstructure:"relay"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Archiver   ArchiverConfig  `mapstructure:"archiver"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	BodyLimit       string        `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type AuthConfig struct {
	Token string `mapstructure:"token"` // empty = open endpoints
}

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQL    = "sql"
)

type StoreConfig struct {
	Backend string    `mapstructure:"backend"`
	Dir     string    `mapstructure:"dir"`
	SQL     SQLConfig `mapstructure:"sql"`
}

type SQLConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite3 | mysql | postgres
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	DatabaseConfig `mapstructure:",squash"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

const (
	MailboxSlot  = "slot"
	MailboxQueue = "queue"

	MailboxBackendStore = "store"
	MailboxBackendRedis = "redis"
)

type MailboxConfig struct {
	Mode     string `mapstructure:"mode"`
	Backend  string `mapstructure:"backend"`
	RedisKey string `mapstructure:"redis_key"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"` // empty = redis disabled
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type ExportConfig struct {
	Dir            string `mapstructure:"dir"`
	Prefix         string `mapstructure:"prefix"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type RelayConfig struct {
	MaxBodyRunes int `mapstructure:"max_body_runes"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	MinBytes       int           `mapstructure:"min_bytes"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	CommitInterval int           `mapstructure:"commit_interval_ms"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	// consecutive publish failures before events are dropped for BreakerOpenFor
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerOpenFor   time.Duration `mapstructure:"breaker_open_for"`
}

// Enabled reports whether at least one broker is configured.
func (k KafkaConfig) Enabled() bool {
	for _, b := range k.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

type ArchiverConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (SMSRELAY_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (SMSRELAY_STORE_BACKEND, SMSRELAY_HTTP_ADDR, ...)
	v.SetEnvPrefix("SMSRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects enum values the relay does not know how to wire.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreFile, StoreSQL:
	default:
		return fmt.Errorf("store.backend: unknown value %q", c.Store.Backend)
	}
	if c.Store.Backend == StoreSQL {
		switch c.Store.SQL.Driver {
		case "sqlite3", "mysql", "postgres":
		default:
			return fmt.Errorf("store.sql.driver: unknown value %q", c.Store.SQL.Driver)
		}
	}

	switch c.Mailbox.Mode {
	case MailboxSlot, MailboxQueue:
	default:
		return fmt.Errorf("mailbox.mode: unknown value %q", c.Mailbox.Mode)
	}
	switch c.Mailbox.Backend {
	case MailboxBackendStore:
	case MailboxBackendRedis:
		if c.Mailbox.Mode != MailboxSlot {
			return fmt.Errorf("mailbox.backend=redis requires mailbox.mode=slot")
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("mailbox.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("mailbox.backend: unknown value %q", c.Mailbox.Backend)
	}
	return nil
}
