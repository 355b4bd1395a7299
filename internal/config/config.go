// Package config loads the worker configuration from an optional YAML file
// merged with environment variables (prefix SENTIMENT__, delimiter __).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/text/language"
)

const envPrefix = "SENTIMENT__"

type SeenConfig struct {
	Type     string        `koanf:"type"` // noop|memory|redis
	RedisURL string        `koanf:"redis_url"`
	Capacity int           `koanf:"capacity"`
	TTL      time.Duration `koanf:"ttl"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

type Config struct {
	// Cluster connection: either a static broker list, or an MSK cluster
	// ARN plus the Secrets Manager secret holding SCRAM credentials.
	ClusterARN string   `koanf:"cluster_arn"`
	SecretName string   `koanf:"secret_name"`
	AWSRegion  string   `koanf:"aws_region"`
	Brokers    []string `koanf:"brokers"`

	SourceTopic string `koanf:"source_topic"`
	ResultTopic string `koanf:"result_topic"`
	DLQTopic    string `koanf:"dlq_topic"`
	GroupID     string `koanf:"group_id"`

	WatchChannels []string `koanf:"watch_channels"`

	PredictURL       string `koanf:"predict_url"`
	PredictAuthToken string `koanf:"predict_auth_token"`

	TargetLanguage  string `koanf:"target_language"`
	CredentialsFile string `koanf:"credentials_file"`

	CallTimeout      time.Duration `koanf:"call_timeout"`
	RetryMaxAttempts int           `koanf:"retry_max_attempts"`
	MaxInflight      int           `koanf:"max_inflight"`
	BatchSize        int           `koanf:"batch_size"`
	FetchTimeout     time.Duration `koanf:"fetch_timeout"`
	RateLimitPerSec  float64       `koanf:"rate_limit_per_sec"`

	DLQFallbackPath string        `koanf:"dlq_fallback_path"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	ShutdownGrace   time.Duration `koanf:"shutdown_grace"`

	Seen    SeenConfig    `koanf:"seen"`
	Log     LogConfig     `koanf:"log"`
	Tracing TracingConfig `koanf:"tracing"`
}

// Load merges the YAML file at path (if any) with environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, "__", nil), nil); err != nil {
		return Config{}, fmt.Errorf("load env config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.AWSRegion == "" {
		c.AWSRegion = "ap-southeast-1"
	}
	if c.SourceTopic == "" {
		c.SourceTopic = "social-media-topic"
	}
	if c.ResultTopic == "" {
		c.ResultTopic = "user-sentiment-topic"
	}
	if c.DLQTopic == "" {
		c.DLQTopic = c.SourceTopic + ".dlq"
	}
	if c.GroupID == "" {
		c.GroupID = "bot-processor-group"
	}
	if c.TargetLanguage == "" {
		c.TargetLanguage = "en"
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 15 * time.Second
	}
	if c.Seen.Capacity <= 0 {
		c.Seen.Capacity = 10000
	}
	if c.Seen.TTL <= 0 {
		c.Seen.TTL = 7 * 24 * time.Hour
	}
}

func (c Config) Validate() error {
	if c.PredictURL == "" {
		return errors.New("config: predict_url is required")
	}
	if len(c.Brokers) == 0 && (c.ClusterARN == "" || c.SecretName == "") {
		return errors.New("config: either brokers or both cluster_arn and secret_name are required")
	}
	if len(c.WatchChannels) == 0 {
		return errors.New("config: watch_channels must name at least one channel")
	}
	if _, err := language.Parse(c.TargetLanguage); err != nil {
		return fmt.Errorf("config: target_language %q: %w", c.TargetLanguage, err)
	}
	return nil
}

// UsesMSK reports whether broker discovery goes through the MSK APIs.
func (c Config) UsesMSK() bool {
	return len(c.Brokers) == 0
}
