package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// MaxNodeID is the largest node id a 10-bit snowflake node accepts.
const MaxNodeID = 1023

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Storage struct {
		Driver string `yaml:"driver" default:"postgres"` // postgres | memory
	} `yaml:"storage"`
	// NodeID must be unique per running instance; it seeds revision ids.
	NodeID int64 `yaml:"node_id"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"20"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		AutoMigrate     bool          `yaml:"auto_migrate" default:"true"`
		Debug           bool          `yaml:"debug"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size" default:"10"`
		KeyPrefix string `yaml:"key_prefix" default:"savanna"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled     bool     `yaml:"enabled"`
		Brokers     []string `yaml:"brokers"`
		EventsTopic string   `yaml:"events_topic" default:"signals.events"`
		Compression string   `yaml:"compression" default:"snappy"`
		Consumer    struct {
			Enabled       bool          `yaml:"enabled"`
			GroupID       string        `yaml:"group_id" default:"signal-billing"`
			PaymentsTopic string        `yaml:"payments_topic" default:"billing.payments"`
			PipsTopic     string        `yaml:"pips_topic" default:"billing.pips"`
			RetryMax      int           `yaml:"retry_max" default:"3"`
			BackoffMin    time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax    time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic      string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"default"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		Table        string        `yaml:"table" default:"delivery_log"`
		AsyncInsert  bool          `yaml:"async_insert" default:"true"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
	} `yaml:"clickhouse"`
	Gateway struct {
		BaseURL string        `yaml:"base_url"` // empty selects the loopback gateway
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"gateway"`
	Dispatch struct {
		Mode          string        `yaml:"mode" default:"sync"` // sync | queue
		Concurrency   int           `yaml:"concurrency" default:"16"`
		RatePerSecond float64       `yaml:"rate_per_second" default:"25"`
		Burst         int           `yaml:"burst" default:"25"`
		SendTimeout   time.Duration `yaml:"send_timeout" default:"10s"`
		QueueWorkers  int           `yaml:"queue_workers" default:"4"`
	} `yaml:"dispatch"`
	Allocator struct {
		MaxMembers  int           `yaml:"max_members" default:"200"`
		GroupPrefix string        `yaml:"group_prefix" default:"Signals"`
		LockTTL     time.Duration `yaml:"lock_ttl" default:"5m"`
	} `yaml:"allocator"`
	Scheduler struct {
		Enabled         bool   `yaml:"enabled" default:"true"`
		RefreshSpec     string `yaml:"refresh_spec" default:"0 5 0 1 * *"`
		ExpirySweepSpec string `yaml:"expiry_sweep_spec" default:"0 15 0 * * *"`
	} `yaml:"scheduler"`
	Pricing []PlanSeed `yaml:"pricing"`
}

// PlanSeed is inserted at startup when no plan of that type exists.
type PlanSeed struct {
	Type        string `yaml:"type"`
	Price       string `yaml:"price"`
	Currency    string `yaml:"currency" default:"USD"`
	Description string `yaml:"description"`
}

// Load reads a YAML file on top of the struct defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Pricing {
		if err := defaults.Set(&c.Pricing[i]); err != nil {
			return nil, fmt.Errorf("config defaults: %w", err)
		}
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("NODE_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NODE_ID: %w", err)
		}
		c.NodeID = id
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_TOKEN"); v != "" {
		c.Gateway.Token = v
	}
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for storage.driver=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be 'postgres' or 'memory', got '%s'", c.Storage.Driver)
	}
	if c.NodeID < 0 || c.NodeID > MaxNodeID {
		return fmt.Errorf("node_id must be within 0..%d, got %d", MaxNodeID, c.NodeID)
	}
	switch c.Dispatch.Mode {
	case "sync":
	case "queue":
		if !c.Redis.Enabled {
			return fmt.Errorf("dispatch.mode=queue requires redis.enabled")
		}
	default:
		return fmt.Errorf("dispatch.mode must be 'sync' or 'queue', got '%s'", c.Dispatch.Mode)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Allocator.MaxMembers <= 0 {
		return fmt.Errorf("allocator.max_members must be positive")
	}
	for _, p := range c.Pricing {
		if p.Type == "" || p.Price == "" {
			return fmt.Errorf("pricing entries need type and price")
		}
	}
	return nil
}
