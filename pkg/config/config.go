// Package config loads and validates termsearch configuration from an
// optional YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 9000
	DefaultMaxRequestBytes = 4096
	DefaultRequestIdle     = 250 * time.Millisecond
)

// Config is the top-level application configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

// IndexConfig names the two persisted files and how long to wait for the
// advisory lock that keeps them consistent.
type IndexConfig struct {
	IndexPath    string        `yaml:"indexPath"`
	ManifestPath string        `yaml:"manifestPath"`
	LockTimeout  time.Duration `yaml:"lockTimeout"`
}

// ServerConfig holds query server settings. Zero read/write timeouts leave
// connections unbounded. RequestIdle is how long a partly received request
// may sit without new bytes before it is answered as it stands.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MaxRequestBytes int           `yaml:"maxRequestBytes"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestIdle     time.Duration `yaml:"requestIdle"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	Watch           bool          `yaml:"watch"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics and health HTTP server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RedisConfig holds the optional query cache connection.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the optional analytics event sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			IndexPath:    "index.bin",
			ManifestPath: "manifest.bin",
			LockTimeout:  5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            DefaultPort,
			MaxRequestBytes: DefaultMaxRequestBytes,
			RequestIdle:     DefaultRequestIdle,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "termsearch-events",
		},
	}
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if err := ValidatePort(c.Server.Port); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("server: maxRequestBytes must be positive, got %d", c.Server.MaxRequestBytes)
	}
	if c.Index.IndexPath == "" || c.Index.ManifestPath == "" {
		return fmt.Errorf("index: indexPath and manifestPath are required")
	}
	if c.Metrics.Enabled {
		if err := ValidatePort(c.Metrics.Port); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	return nil
}

// ValidatePort enforces the 1-65535 TCP port range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// applyEnvOverrides reads TS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TS_INDEX_PATH"); v != "" {
		cfg.Index.IndexPath = v
	}
	if v := os.Getenv("TS_MANIFEST_PATH"); v != "" {
		cfg.Index.ManifestPath = v
	}
	if v := os.Getenv("TS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TS_SERVER_WATCH"); v != "" {
		if watch, err := strconv.ParseBool(v); err == nil {
			cfg.Server.Watch = watch
		}
	}
	if v := os.Getenv("TS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Enabled = true
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("TS_REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TS_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
}
