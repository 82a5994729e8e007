package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionflow OptionflowConfig `yaml:"optionflow"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Retry      RetryConfig      `yaml:"retry"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Writer     WriterConfig     `yaml:"writer"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	API        APIConfig        `yaml:"api"`
}

type OptionflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// UpstreamConfig describes the NSE endpoints and the browser-like session
// used to reach them.
type UpstreamConfig struct {
	BaseURL             string               `yaml:"base_url"`
	WarmupPath          string               `yaml:"warmup_path"`
	IndexChainPath      string               `yaml:"index_chain_path"`
	EquityChainPath     string               `yaml:"equity_chain_path"`
	QuoteDerivativePath string               `yaml:"quote_derivative_path"`
	Timeout             time.Duration        `yaml:"timeout"`
	Headers             map[string]string    `yaml:"headers"`
	ConnectionPool      ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	StatusCodes []int         `yaml:"status_codes"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// PipelineConfig holds the window geometry, analyzer limits and polling.
type PipelineConfig struct {
	Symbols      []string      `yaml:"symbols"`
	Interval     time.Duration `yaml:"interval"`
	Workers      int           `yaml:"workers"`
	Before       int           `yaml:"strikes_before"`
	After        int           `yaml:"strikes_after"`
	TopVolume    int           `yaml:"top_volume"`
	RangeTop     int           `yaml:"range_top"`
	LTPTolerance float64       `yaml:"ltp_tolerance"`
	Timezone     string        `yaml:"timezone"`
	RiskFreeRate float64       `yaml:"risk_free_rate"`
}

type ChannelsConfig struct {
	ResultBuffer int `yaml:"result_buffer"`
}

type WriterConfig struct {
	Archive ArchiveConfig `yaml:"archive"`
	Latest  LatestConfig  `yaml:"latest"`
	Stream  StreamConfig  `yaml:"stream"`
}

// ArchiveConfig selects where parquet files go: "s3" or "local", where
// local writes under LocalDir.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Target        string        `yaml:"target"`
	LocalDir      string        `yaml:"local_dir"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRows       int           `yaml:"max_rows"`
	Prefix        string        `yaml:"prefix"`
	Compression   string        `yaml:"compression"`
}

type LatestConfig struct {
	Enabled   bool          `yaml:"enabled"`
	KeyPrefix string        `yaml:"key_prefix"`
	Channel   string        `yaml:"channel"`
	TTL       time.Duration `yaml:"ttl"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	MaxAge         int           `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// APIConfig controls the read-only HTTP server exposing the latest results
// and Prometheus metrics.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Optionflow: OptionflowConfig{Name: "optionflow", Version: "dev"},
		Upstream: UpstreamConfig{
			BaseURL:             "https://www.nseindia.com",
			WarmupPath:          "/option-chain",
			IndexChainPath:      "/api/option-chain-indices",
			EquityChainPath:     "/api/option-chain-equities",
			QuoteDerivativePath: "/api/quote-derivative",
			Timeout:             10 * time.Second,
			Headers: map[string]string{
				"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Accept":           "application/json, text/plain, */*",
				"Accept-Language":  "en-US,en;q=0.9",
				"Referer":          "https://www.nseindia.com/get-quotes/derivatives?symbol=NIFTY",
				"X-Requested-With": "XMLHttpRequest",
			},
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    10,
				MaxConnsPerHost: 4,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelay:   time.Second,
			MaxDelay:    8 * time.Second,
			StatusCodes: []int{429, 500, 502, 503, 504},
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 3, BurstSize: 3},
		Pipeline: PipelineConfig{
			Symbols:      []string{"NIFTY"},
			Interval:     time.Minute,
			Workers:      3,
			Before:       15,
			After:        15,
			TopVolume:    20,
			RangeTop:     6,
			LTPTolerance: 1,
			Timezone:     "Asia/Kolkata",
			RiskFreeRate: 0.065,
		},
		Channels: ChannelsConfig{ResultBuffer: 16},
		Writer: WriterConfig{
			Archive: ArchiveConfig{
				Target:        "s3",
				LocalDir:      "data/archive",
				FlushInterval: 5 * time.Minute,
				MaxRows:       5000,
				Prefix:        "option_chain",
				Compression:   "snappy",
			},
			Latest: LatestConfig{
				KeyPrefix: "optionflow:latest:",
				Channel:   "optionflow:results",
				TTL:       10 * time.Minute,
			},
			Stream: StreamConfig{Topic: "optionflow.results"},
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			ReportInterval: time.Minute,
		},
		Metrics: MetricsConfig{CloudWatch: CloudWatchConfig{Namespace: "OptionFlow", Dashboard: "OptionFlow"}},
		API:     APIConfig{Address: ":8080"},
	}
}

// LoadConfig reads the YAML file at path on top of Default, applies
// environment overrides and validates the result. An empty path resolves to
// the APP_ENV specific file.
func LoadConfig(path string) (*Config, error) {
	path = ResolvePath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("NSE_BASE_URL"); v != "" {
		config.Upstream.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Storage.Redis.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		config.Storage.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				config.Storage.Kafka.Brokers = append(config.Storage.Kafka.Brokers, b)
			}
		}
	}
	if config.Writer.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	for i, s := range config.Pipeline.Symbols {
		config.Pipeline.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Optionflow.Name == "" {
		return fmt.Errorf("optionflow.name is required")
	}
	if cfg.Optionflow.Version == "" {
		return fmt.Errorf("optionflow.version is required")
	}

	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url '%s' is not an absolute URL", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be greater than 0")
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if cfg.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst_size must be greater than 0")
	}

	p := cfg.Pipeline
	if len(p.Symbols) == 0 {
		return fmt.Errorf("pipeline.symbols must not be empty")
	}
	if p.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be greater than 0")
	}
	if p.Before < 0 || p.After < 0 {
		return fmt.Errorf("pipeline.strikes_before and pipeline.strikes_after must not be negative")
	}
	if p.TopVolume <= 0 || p.RangeTop <= 0 {
		return fmt.Errorf("pipeline.top_volume and pipeline.range_top must be greater than 0")
	}
	if p.LTPTolerance < 0 {
		return fmt.Errorf("pipeline.ltp_tolerance must not be negative")
	}
	if p.Interval <= 0 {
		return fmt.Errorf("pipeline.interval must be greater than 0")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("pipeline.timezone '%s' is invalid: %w", p.Timezone, err)
	}

	if cfg.Channels.ResultBuffer <= 0 {
		return fmt.Errorf("channels.result_buffer must be greater than 0")
	}

	if a := cfg.Writer.Archive; a.Enabled {
		if a.FlushInterval <= 0 {
			return fmt.Errorf("writer.archive.flush_interval must be greater than 0")
		}
		switch a.Compression {
		case "snappy", "gzip", "none", "":
		default:
			return fmt.Errorf("writer.archive.compression '%s' is not supported", a.Compression)
		}
		switch a.Target {
		case "local":
			if a.LocalDir == "" {
				return fmt.Errorf("writer.archive.local_dir is required for the local target")
			}
		case "s3":
			if err := validateS3(cfg.Storage.S3); err != nil {
				return err
			}
		default:
			return fmt.Errorf("writer.archive.target '%s' must be s3 or local", a.Target)
		}
	}

	if cfg.Writer.Latest.Enabled && cfg.Storage.Redis.URL == "" {
		return fmt.Errorf("storage.redis.url is required when the latest writer is enabled")
	}

	if cfg.Writer.Stream.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when the stream writer is enabled")
		}
		if cfg.Writer.Stream.Topic == "" {
			return fmt.Errorf("writer.stream.topic is required when the stream writer is enabled")
		}
	}

	if cfg.API.Enabled && cfg.API.Address == "" {
		return fmt.Errorf("api.address is required when the api is enabled")
	}

	return nil
}

func validateS3(s3 S3Config) error {
	if s3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when the archive writer is enabled")
	}
	if s3.Region == "" {
		return fmt.Errorf("storage.s3.region is required when the archive writer is enabled")
	}
	if !isValidS3Bucket(s3.Bucket) {
		return fmt.Errorf("storage.s3.bucket '%s' is invalid", s3.Bucket)
	}
	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
