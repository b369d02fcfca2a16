package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/pagestate/pkg/utils"
)

// Eviction policy names.
const (
	EvictionPolicyCount = "count"
	EvictionPolicySize  = "size"
)

// Data store types.
const (
	DataStoreNone   = "none"
	DataStoreMemory = "memory"
	DataStoreBolt   = "bolt"
	DataStoreS3     = "s3"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	PageStore  PageStoreConfig  `yaml:"page_store"`
	DataStore  DataStoreConfig  `yaml:"data_store"`
	Versioning VersioningConfig `yaml:"versioning"`
	Render     RenderConfig     `yaml:"render"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogFile       string `yaml:"log_file"`
	LogMaxSize    string `yaml:"log_max_size"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogCompress   bool   `yaml:"log_compress"`
	MetricsPort   int    `yaml:"metrics_port"`
	APIAddress    string `yaml:"api_address"`
}

// PageStoreConfig bounds the per-session page table
type PageStoreConfig struct {
	EvictionPolicy  string        `yaml:"eviction_policy"`
	MaxPages        int           `yaml:"max_pages"`
	MaxBytes        string        `yaml:"max_bytes"`
	Compression     bool          `yaml:"compression"`
	PageTTL         time.Duration `yaml:"page_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DataStoreConfig represents second-level page storage settings
type DataStoreConfig struct {
	Type           string               `yaml:"type"`
	Path           string               `yaml:"path"`
	Bucket         string               `yaml:"bucket"`
	Prefix         string               `yaml:"prefix"`
	Region         string               `yaml:"region"`
	Endpoint       string               `yaml:"endpoint"`
	ForcePathStyle bool                 `yaml:"force_path_style"`
	AccessKeyID    string               `yaml:"access_key_id"`
	SecretKey      string               `yaml:"secret_access_key"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig represents data store circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// RetryConfig represents retry settings
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// VersioningConfig represents undo history settings
type VersioningConfig struct {
	MaxVersions int `yaml:"max_versions"`
}

// RenderConfig represents render strategy settings
type RenderConfig struct {
	RedirectPolicy                 string `yaml:"redirect_policy"`
	RenderStrategy                 string `yaml:"render_strategy"`
	EnableRedirectForStatelessPage bool   `yaml:"enable_redirect_for_stateless_page"`
	BufferCapacity                 int    `yaml:"buffer_capacity"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFormat:     "text",
			LogMaxSize:    "100MB",
			LogMaxBackups: 3,
			MetricsPort:   9090,
			APIAddress:    "localhost:8080",
		},
		PageStore: PageStoreConfig{
			EvictionPolicy:  EvictionPolicyCount,
			MaxPages:        10,
			MaxBytes:        "10MB",
			Compression:     false,
			PageTTL:         30 * time.Minute,
			CleanupInterval: time.Minute,
		},
		DataStore: DataStoreConfig{
			Type:   DataStoreNone,
			Path:   "/var/lib/pagestate/pages.db",
			Prefix: "pagestate",
			Region: "us-east-1",
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     2 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Versioning: VersioningConfig{
			MaxVersions: 20,
		},
		Render: RenderConfig{
			RedirectPolicy:                 "auto",
			RenderStrategy:                 "redirect_to_buffer",
			EnableRedirectForStatelessPage: true,
			BufferCapacity:                 1000,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "pagestate",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("PAGESTATE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("PAGESTATE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("PAGESTATE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("PAGESTATE_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid PAGESTATE_METRICS_PORT: %w", err)
		}
		c.Global.MetricsPort = port
	}
	if val := os.Getenv("PAGESTATE_API_ADDRESS"); val != "" {
		c.Global.APIAddress = val
	}

	// Page store settings
	if val := os.Getenv("PAGESTATE_EVICTION_POLICY"); val != "" {
		c.PageStore.EvictionPolicy = strings.ToLower(val)
	}
	if val := os.Getenv("PAGESTATE_MAX_PAGES"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid PAGESTATE_MAX_PAGES: %w", err)
		}
		c.PageStore.MaxPages = n
	}
	if val := os.Getenv("PAGESTATE_MAX_BYTES"); val != "" {
		c.PageStore.MaxBytes = val
	}
	if val := os.Getenv("PAGESTATE_PAGE_TTL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid PAGESTATE_PAGE_TTL: %w", err)
		}
		c.PageStore.PageTTL = d
	}

	// Data store settings
	if val := os.Getenv("PAGESTATE_DATA_STORE"); val != "" {
		c.DataStore.Type = strings.ToLower(val)
	}
	if val := os.Getenv("PAGESTATE_DATA_STORE_PATH"); val != "" {
		c.DataStore.Path = val
	}
	if val := os.Getenv("PAGESTATE_S3_BUCKET"); val != "" {
		c.DataStore.Bucket = val
	}
	if val := os.Getenv("PAGESTATE_S3_ENDPOINT"); val != "" {
		c.DataStore.Endpoint = val
	}
	if val := os.Getenv("PAGESTATE_S3_ACCESS_KEY_ID"); val != "" {
		c.DataStore.AccessKeyID = val
	}
	if val := os.Getenv("PAGESTATE_S3_SECRET_ACCESS_KEY"); val != "" {
		c.DataStore.SecretKey = val
	}
	if val := os.Getenv("PAGESTATE_DATA_STORE_BREAKER"); val != "" {
		c.DataStore.CircuitBreaker.Enabled = strings.ToLower(val) == "true"
	}

	// Versioning and render settings
	if val := os.Getenv("PAGESTATE_MAX_VERSIONS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid PAGESTATE_MAX_VERSIONS: %w", err)
		}
		c.Versioning.MaxVersions = n
	}
	if val := os.Getenv("PAGESTATE_REDIRECT_POLICY"); val != "" {
		c.Render.RedirectPolicy = strings.ToLower(val)
	}
	if val := os.Getenv("PAGESTATE_RENDER_STRATEGY"); val != "" {
		c.Render.RenderStrategy = strings.ToLower(val)
	}
	if val := os.Getenv("PAGESTATE_REDIRECT_STATELESS"); val != "" {
		c.Render.EnableRedirectForStatelessPage = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("PAGESTATE_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MaxBytesValue returns the parsed page_store.max_bytes value.
func (c *Configuration) MaxBytesValue() (int64, error) {
	return utils.ParseBytes(c.PageStore.MaxBytes)
}

// LogMaxSizeValue returns the parsed global.log_max_size value. An empty
// value disables rotation.
func (c *Configuration) LogMaxSizeValue() (int64, error) {
	if c.Global.LogMaxSize == "" {
		return 0, nil
	}
	return utils.ParseBytes(c.Global.LogMaxSize)
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %s (must be one of: TRACE, DEBUG, INFO, WARN, ERROR)", c.Global.LogLevel)
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}
	if c.Global.LogFile != "" {
		if _, err := c.LogMaxSizeValue(); err != nil {
			return fmt.Errorf("invalid log_max_size: %w", err)
		}
	}

	switch c.PageStore.EvictionPolicy {
	case EvictionPolicyCount:
		if c.PageStore.MaxPages <= 0 {
			return fmt.Errorf("max_pages must be greater than 0")
		}
	case EvictionPolicySize:
		maxBytes, err := c.MaxBytesValue()
		if err != nil {
			return fmt.Errorf("invalid max_bytes: %w", err)
		}
		if maxBytes <= 0 {
			return fmt.Errorf("max_bytes must be greater than 0")
		}
	default:
		return fmt.Errorf("invalid eviction_policy: %s (must be one of: %s, %s)",
			c.PageStore.EvictionPolicy, EvictionPolicyCount, EvictionPolicySize)
	}
	if c.PageStore.PageTTL < 0 {
		return fmt.Errorf("page_ttl cannot be negative")
	}

	switch c.DataStore.Type {
	case "", DataStoreNone, DataStoreMemory:
	case DataStoreBolt:
		if c.DataStore.Path == "" {
			return fmt.Errorf("data_store.path is required for bolt data store")
		}
	case DataStoreS3:
		if c.DataStore.Bucket == "" {
			return fmt.Errorf("data_store.bucket is required for s3 data store")
		}
		if (c.DataStore.AccessKeyID == "") != (c.DataStore.SecretKey == "") {
			return fmt.Errorf("data_store.access_key_id and data_store.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("invalid data_store.type: %s", c.DataStore.Type)
	}
	if c.DataStore.CircuitBreaker.OpenTimeout < 0 {
		return fmt.Errorf("data_store.circuit_breaker.open_timeout cannot be negative")
	}

	if c.Versioning.MaxVersions <= 0 {
		return fmt.Errorf("max_versions must be greater than 0")
	}

	if !contains(validRedirectPolicies, c.Render.RedirectPolicy) {
		return fmt.Errorf("invalid redirect_policy: %s (must be one of: %s)",
			c.Render.RedirectPolicy, strings.Join(validRedirectPolicies, ", "))
	}
	if !contains(validRenderStrategies, c.Render.RenderStrategy) {
		return fmt.Errorf("invalid render_strategy: %s (must be one of: %s)",
			c.Render.RenderStrategy, strings.Join(validRenderStrategies, ", "))
	}
	if c.Render.BufferCapacity <= 0 {
		return fmt.Errorf("buffer_capacity must be greater than 0")
	}

	return nil
}

var (
	validRedirectPolicies = []string{"auto", "never", "always"}
	validRenderStrategies = []string{"one_pass_render", "redirect_to_render", "redirect_to_buffer"}
)

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
