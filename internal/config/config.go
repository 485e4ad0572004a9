package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the faultlens agent.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Signals       SignalsConfig       `yaml:"signals"`
	Reasoner      ReasonerConfig      `yaml:"reasoner"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Investigation InvestigationConfig `yaml:"investigation"`
	Remediation   RemediationConfig   `yaml:"remediation"`
	Storage       StorageConfig       `yaml:"storage"`
	Playbook      PlaybookConfig      `yaml:"playbook"`
	Logging       LoggingConfig       `yaml:"logging"`
	Cache         CacheConfig         `yaml:"cache"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// SignalsConfig configures access to the upstream signal aggregation API.
type SignalsConfig struct {
	BaseURL         string        `yaml:"baseURL"`
	LogsPath        string        `yaml:"logsPath"`
	MetricsPath     string        `yaml:"metricsPath"`
	DeploymentsPath string        `yaml:"deploymentsPath"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ReasonerConfig configures the external reasoning service client.
type ReasonerConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RateLimitConfig controls the token bucket shared by all reasoner callers.
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	Burst             int           `yaml:"burst"`
	MaxWait           time.Duration `yaml:"maxWait"`
}

// InvestigationConfig tunes the reasoning graph.
type InvestigationConfig struct {
	Lookback            time.Duration `yaml:"lookback"`
	AnalyzerTimeout     time.Duration `yaml:"analyzerTimeout"`
	ConfidenceThreshold float64       `yaml:"confidenceThreshold"`
	Aggregation         string        `yaml:"aggregation"`
}

// RemediationConfig configures the rollback workflow dispatcher.
type RemediationConfig struct {
	BaseURL  string        `yaml:"baseURL"`
	Token    string        `yaml:"token"`
	Repo     string        `yaml:"repo"`
	Workflow string        `yaml:"workflow"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig controls the investigation record store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// PlaybookConfig controls remediation playbook loading.
type PlaybookConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed caching of signal lookups.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	TLS            bool          `yaml:"tls"`
	DeploymentsTTL time.Duration `yaml:"deploymentsTTL"`
}

// Aggregation modes for combining finding confidences into a decision.
const (
	AggregationMean = "mean"
	AggregationMin  = "min"
)

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FAULTLENS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Investigation.Aggregation != AggregationMean && cfg.Investigation.Aggregation != AggregationMin {
		return nil, fmt.Errorf("invalid aggregation %q: must be %q or %q", cfg.Investigation.Aggregation, AggregationMean, AggregationMin)
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Signals: SignalsConfig{
			LogsPath:        "/api/v1/signals/logs",
			MetricsPath:     "/api/v1/signals/metrics",
			DeploymentsPath: "/api/v1/signals/deployments",
			Timeout:         5 * time.Second,
		},
		Reasoner: ReasonerConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   2048,
			Timeout:     30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			Burst:             5,
			MaxWait:           10 * time.Second,
		},
		Investigation: InvestigationConfig{
			Lookback:            30 * time.Minute,
			AnalyzerTimeout:     20 * time.Second,
			ConfidenceThreshold: 0.7,
			Aggregation:         AggregationMean,
		},
		Remediation: RemediationConfig{
			Workflow: "rollback.yml",
			Timeout:  10 * time.Second,
		},
		Storage:  StorageConfig{Path: "faultlens.db"},
		Playbook: PlaybookConfig{Path: "configs/playbooks/default.yaml"},
		Logging:  LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:        false,
			DialTimeout:    2 * time.Second,
			ReadTimeout:    500 * time.Millisecond,
			WriteTimeout:   500 * time.Millisecond,
			DeploymentsTTL: 2 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAULTLENS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FAULTLENS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FAULTLENS_SIGNALS_BASE_URL"); v != "" {
		cfg.Signals.BaseURL = v
	}
	if v := os.Getenv("FAULTLENS_REASONER_BASE_URL"); v != "" {
		cfg.Reasoner.BaseURL = v
	}
	if v := os.Getenv("FAULTLENS_REASONER_API_KEY"); v != "" {
		cfg.Reasoner.APIKey = v
	}
	if v := os.Getenv("FAULTLENS_REASONER_MODEL"); v != "" {
		cfg.Reasoner.Model = v
	}
	if v := os.Getenv("FAULTLENS_RATE_LIMIT_RPM"); v != "" {
		if rpm, err := strconv.Atoi(v); err == nil && rpm > 0 {
			cfg.RateLimit.RequestsPerMinute = rpm
		}
	}
	if v := os.Getenv("FAULTLENS_RATE_LIMIT_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil && burst > 0 {
			cfg.RateLimit.Burst = burst
		}
	}
	if v := os.Getenv("FAULTLENS_RATE_LIMIT_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.MaxWait = d
		}
	}
	if v := os.Getenv("FAULTLENS_LOOKBACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Investigation.Lookback = d
		}
	}
	if v := os.Getenv("FAULTLENS_ANALYZER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Investigation.AnalyzerTimeout = d
		}
	}
	if v := os.Getenv("FAULTLENS_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Investigation.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("FAULTLENS_AGGREGATION"); v != "" {
		cfg.Investigation.Aggregation = strings.ToLower(v)
	}
	if v := os.Getenv("FAULTLENS_REMEDIATION_BASE_URL"); v != "" {
		cfg.Remediation.BaseURL = v
	}
	if v := os.Getenv("FAULTLENS_REMEDIATION_TOKEN"); v != "" {
		cfg.Remediation.Token = v
	}
	if v := os.Getenv("FAULTLENS_REMEDIATION_REPO"); v != "" {
		cfg.Remediation.Repo = v
	}
	if v := os.Getenv("FAULTLENS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FAULTLENS_PLAYBOOK_PATH"); v != "" {
		cfg.Playbook.Path = v
	}
	if v := os.Getenv("FAULTLENS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FAULTLENS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FAULTLENS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("FAULTLENS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("FAULTLENS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FAULTLENS_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("FAULTLENS_CACHE_DEPLOYMENTS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DeploymentsTTL = d
		}
	}
}
