/*
config.go - Server configuration

PURPOSE:
  One struct for everything the server reads at start-up. Values come from,
  in increasing priority:
    1. Defaults (DefaultConfig)
    2. A YAML config file (--config, or ./sirw.yaml if present)
    3. Environment variables with the SIRW_ prefix, "." replaced by "_"
       e.g. SIRW_DB_PATH, SIRW_POLICY_DAYS_ALLOWED, SIRW_KAFKA_BROKERS
    4. Command-line flags bound by cmd/server

  A .env file in the working directory is loaded into the environment first.

EXAMPLE FILE:
  server:
    port: 8080
    cors_origins: ["https://mobility.example.com"]
  db:
    path: ./data/sirw.db
  policy:
    days_allowed: 20
    consecutive_limit: 14
    proximity_days: 7
  policy_file: ./ops/policy.yaml   # optional, replaces the policy section
  kafka:
    brokers: ["kafka-1:9092"]
    topic: sirw.decisions

SEE ALSO:
  - cmd/server/main.go: flag binding
  - sirw/policy.go: Policy defaults
  - factory/policy.go: policy document format read from policy_file
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/sirw-engine/factory"
	"github.com/warp/sirw-engine/sirw"
)

const EnvPrefix = "SIRW"

// Config root configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Policy    sirw.Policy     `mapstructure:"policy"`
	Countries CountriesConfig `mapstructure:"countries"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// PolicyFile names a policy document; limits it leaves out come from Policy.
	PolicyFile string `mapstructure:"policy_file"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	// Path of the SQLite file; ":memory:" for a throwaway database.
	Path string `mapstructure:"path"`
}

// CountriesConfig points at a replacement for the built-in country list.
type CountriesConfig struct {
	File string `mapstructure:"file"`
}

// KafkaConfig enables the Kafka decision publisher when Brokers is set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// SchedulerConfig drives the job that completes finished trips.
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// RateLimitConfig limits submissions per employee.
type RateLimitConfig struct {
	PerMinute float64 `mapstructure:"per_minute"`
	Burst     int     `mapstructure:"burst"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		DB:     DBConfig{Path: "sirw.db"},
		Policy: sirw.DefaultPolicy(),
		Kafka:  KafkaConfig{Topic: "sirw.decisions"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		RateLimit: RateLimitConfig{PerMinute: 10, Burst: 5},
	}
}

// setDefaults mirrors DefaultConfig into v so that every key is known to
// viper and can be overridden from the environment.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("db.path", cfg.DB.Path)
	v.SetDefault("policy.days_allowed", cfg.Policy.DaysAllowed)
	v.SetDefault("policy.consecutive_limit", cfg.Policy.ConsecutiveLimit)
	v.SetDefault("policy.proximity_days", cfg.Policy.ProximityDays)
	v.SetDefault("policy_file", cfg.PolicyFile)
	v.SetDefault("countries.file", cfg.Countries.File)
	v.SetDefault("kafka.brokers", cfg.Kafka.Brokers)
	v.SetDefault("kafka.topic", cfg.Kafka.Topic)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("scheduler.enabled", cfg.Scheduler.Enabled)
	v.SetDefault("scheduler.interval", cfg.Scheduler.Interval)
	v.SetDefault("ratelimit.per_minute", cfg.RateLimit.PerMinute)
	v.SetDefault("ratelimit.burst", cfg.RateLimit.Burst)
}

// New returns a viper instance with defaults, env binding and the optional
// config file registered. cmd/server binds its flags into it before Load.
func New(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sirw")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return v
}

// LoadDotEnv loads .env from the working directory if it exists.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

// Load reads the config file (if any) and decodes everything into Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.PolicyFile != "" {
		pv, err := LoadPolicyFile(cfg.PolicyFile, cfg.Policy.WithDefaults())
		if err != nil {
			return nil, err
		}
		cfg.Policy = pv.Policy
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadPolicyFile parses a JSON or YAML policy document from disk.
func LoadPolicyFile(path string, defaults sirw.Policy) (sirw.PolicyVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sirw.PolicyVersion{}, fmt.Errorf("read policy file: %w", err)
	}
	f := factory.NewPolicyFactory()
	f.Defaults = defaults
	pv, err := f.ParsePolicy(data)
	if err != nil {
		return sirw.PolicyVersion{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return pv, nil
}

// Validate checks ranges and normalises values left empty.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}

	c.Policy = c.Policy.WithDefaults()
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "json"
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console; got %q", c.Log.Format)
	}

	if c.Kafka.Enabled() && strings.TrimSpace(c.Kafka.Topic) == "" {
		return fmt.Errorf("kafka.topic must be set when kafka.brokers is")
	}

	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler.interval must not be negative, got %s", c.Scheduler.Interval)
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Hour
	}
	if c.Scheduler.Interval < time.Minute {
		c.Scheduler.Interval = time.Minute
	}

	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	return nil
}
