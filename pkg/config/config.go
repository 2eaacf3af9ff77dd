package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FinFusion/internal/engine"
	pkgch "FinFusion/pkg/clickhouse"
	applogger "FinFusion/pkg/logger"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger applogger.Config `yaml:"logger"`
	Kafka  struct {
		Brokers        []string `yaml:"brokers" validate:"required,min=1,dive,required"`
		CandlesTopic   string   `yaml:"candles_topic" default:"finfusion.candles" validate:"required"`
		DecisionsTopic string   `yaml:"decisions_topic" default:"finfusion.decisions" validate:"required"`
		LogsTopic      string   `yaml:"logs_topic" default:"finfusion.logs"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
		Compression    string   `yaml:"compression" default:"snappy" validate:"omitempty,oneof=gzip snappy lz4 zstd none"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"finfusion-engine" validate:"required"`
			Lanes      int           `yaml:"lanes" default:"4" validate:"gte=1"`
			LaneBuffer int           `yaml:"lane_buffer" default:"64" validate:"gte=1"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"finfusion.candles.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse pkgch.Config `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Cache struct {
		DecisionTTL time.Duration `yaml:"decision_ttl" default:"10m"`
		MemoryItems int           `yaml:"memory_items" default:"10000" validate:"gte=1"`
	} `yaml:"cache"`
	Symbols    []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	Timeframes []string `yaml:"timeframes" default:"[\"1m\"]" validate:"required,min=1,dive,oneof=1s 1m 5m 15m 1h 4h 1d"`
	History    struct {
		Size    int  `yaml:"size" default:"600" validate:"gte=50"`
		Warmup  bool `yaml:"warmup" default:"true"`
		Samples int  `yaml:"samples" default:"200" validate:"gte=10"`
	} `yaml:"history"`
	Training struct {
		PerHour float64       `yaml:"per_hour" default:"4" validate:"gt=0"`
		Burst   int           `yaml:"burst" default:"1" validate:"gte=1"`
		LockTTL time.Duration `yaml:"lock_ttl" default:"10m"`
	} `yaml:"training"`
	WebSocket struct {
		WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		SendBuffer   int           `yaml:"send_buffer" default:"64" validate:"gte=1"`
	} `yaml:"websocket"`
	Engine engine.Config `yaml:"engine"`
}

var validate = validator.New()

// Parse builds a Config from YAML bytes: struct defaults first, then engine
// defaults, then the document on top.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	c.Engine = engine.DefaultConfig()

	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := getenv("TIMEFRAMES"); v != "" {
		c.Timeframes = splitList(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("KAFKA_CANDLES_TOPIC"); v != "" {
		c.Kafka.CandlesTopic = v
	}
	if v := getenv("KAFKA_DECISIONS_TOPIC"); v != "" {
		c.Kafka.DecisionsTopic = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct tags, then the engine's own invariants.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}
