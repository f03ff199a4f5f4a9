package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent is sent with every request to the asset library
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/91.0.4472.124 Safari/537.36"

// Config represents the entire application configuration
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Prefetch PrefetchConfig `mapstructure:"prefetch"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

// SourceConfig describes the remote asset library
type SourceConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	UserAgent           string `mapstructure:"user_agent"`
	Thumbnails          int    `mapstructure:"thumbnails"`
	Sort                string `mapstructure:"sort"`
	PageSize            int    `mapstructure:"page_size"`
	ListingRateInterval string `mapstructure:"listing_rate_interval"`

	// Hosts thumbnails may be fetched from, besides the base_url host
	ThumbnailHosts []string `mapstructure:"thumbnail_hosts"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	RootDir             string `mapstructure:"root_dir"`
	MaxSizeGB           int    `mapstructure:"max_size_gb"`            // 0 means unlimited
	MaxDiskUsagePercent int    `mapstructure:"max_disk_usage_percent"` // 0 disables the check
	BufferSizeKB        int    `mapstructure:"buffer_size_kb"`
	DownloadTimeout     string `mapstructure:"download_timeout"`
	TempMaxAge          string `mapstructure:"temp_max_age"`
	CleanupInterval     string `mapstructure:"cleanup_interval"`
	HistoryMaxAge       string `mapstructure:"history_max_age"`
}

// PrefetchConfig controls background thumbnail downloads
type PrefetchConfig struct {
	Interval  string `mapstructure:"interval"`
	QueueSize int    `mapstructure:"queue_size"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`

	// Basic auth for the API; both empty disables it
	AuthUsername string `mapstructure:"auth_username"`
	AuthPassword string `mapstructure:"auth_password"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// DefaultRootDir returns ~/.cache/ambientcg
func DefaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "ambientcg")
	}
	return filepath.Join(home, ".cache", "ambientcg")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://ambientcg.com")
	v.SetDefault("source.user_agent", DefaultUserAgent)
	v.SetDefault("source.thumbnails", 200)
	v.SetDefault("source.sort", "popular")
	v.SetDefault("source.page_size", 24)
	v.SetDefault("source.listing_rate_interval", "1s")
	v.SetDefault("source.thumbnail_hosts", []string{"acg-media.struffelproductions.com"})
	v.SetDefault("cache.root_dir", DefaultRootDir())
	v.SetDefault("cache.max_size_gb", 0)
	v.SetDefault("cache.max_disk_usage_percent", 95)
	v.SetDefault("cache.buffer_size_kb", 64)
	v.SetDefault("cache.download_timeout", "0s")
	v.SetDefault("cache.temp_max_age", "24h")
	v.SetDefault("cache.cleanup_interval", "1h")
	v.SetDefault("cache.history_max_age", "720h")
	v.SetDefault("prefetch.interval", "250ms")
	v.SetDefault("prefetch.queue_size", 256)
	v.SetDefault("http.bind_addr", "127.0.0.1:8787")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", "")
	v.SetDefault("database.busy_timeout_ms", 5000)
}

// Load loads configuration from the specified file path.
// An empty path or a missing file falls back to defaults and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	v.SetEnvPrefix("TEXTURE_CACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Cache.RootDir = expandHome(config.Cache.RootDir)
	config.Database.Path = expandHome(config.Database.Path)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute http(s) URL: %q", c.Source.BaseURL)
	}
	if c.Source.PageSize < 1 || c.Source.PageSize > 200 {
		return fmt.Errorf("source.page_size must be between 1 and 200")
	}
	if c.Cache.RootDir == "" {
		return fmt.Errorf("cache.root_dir is required")
	}
	if c.Cache.MaxSizeGB < 0 {
		return fmt.Errorf("cache.max_size_gb must not be negative")
	}
	if c.Cache.MaxDiskUsagePercent < 0 || c.Cache.MaxDiskUsagePercent > 100 {
		return fmt.Errorf("cache.max_disk_usage_percent must be between 0 and 100")
	}
	if c.Prefetch.QueueSize < 1 {
		return fmt.Errorf("prefetch.queue_size must be positive")
	}
	if (c.HTTP.AuthUsername == "") != (c.HTTP.AuthPassword == "") {
		return fmt.Errorf("http.auth_username and http.auth_password must be set together")
	}

	durations := map[string]string{
		"source.listing_rate_interval": c.Source.ListingRateInterval,
		"cache.download_timeout":      c.Cache.DownloadTimeout,
		"cache.temp_max_age":          c.Cache.TempMaxAge,
		"cache.cleanup_interval":      c.Cache.CleanupInterval,
		"cache.history_max_age":       c.Cache.HistoryMaxAge,
		"prefetch.interval":           c.Prefetch.Interval,
		"http.read_timeout":           c.HTTP.ReadTimeout,
		"http.write_timeout":          c.HTTP.WriteTimeout,
		"http.idle_timeout":           c.HTTP.IdleTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func parseOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}

// GetListingRateInterval returns the minimum spacing between listing requests
func (c *SourceConfig) GetListingRateInterval() time.Duration {
	return parseOr(c.ListingRateInterval, time.Second)
}

// GetThumbnailHosts returns the base_url host followed by thumbnail_hosts
func (c *SourceConfig) GetThumbnailHosts() []string {
	var hosts []string
	if u, err := url.Parse(c.BaseURL); err == nil && u.Host != "" {
		hosts = append(hosts, u.Host)
	}
	for _, h := range c.ThumbnailHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// GetBufferSize returns the copy buffer size in bytes
func (c *CacheConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 64 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetMaxSize returns the cache size limit in bytes; 0 means unlimited
func (c *CacheConfig) GetMaxSize() int64 {
	if c.MaxSizeGB <= 0 {
		return 0
	}
	return int64(c.MaxSizeGB) * 1024 * 1024 * 1024
}

// GetDownloadTimeout returns the archive download timeout; 0 means none
func (c *CacheConfig) GetDownloadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.DownloadTimeout)
	return d
}

// GetTempMaxAge returns the age after which leftover archives are removed
func (c *CacheConfig) GetTempMaxAge() time.Duration {
	return parseOr(c.TempMaxAge, 24*time.Hour)
}

// GetCleanupInterval returns the maintenance interval
func (c *CacheConfig) GetCleanupInterval() time.Duration {
	return parseOr(c.CleanupInterval, time.Hour)
}

// GetHistoryMaxAge returns how long acquisition records are kept
func (c *CacheConfig) GetHistoryMaxAge() time.Duration {
	return parseOr(c.HistoryMaxAge, 30*24*time.Hour)
}

// GetInterval returns the pause between thumbnail fetches
func (c *PrefetchConfig) GetInterval() time.Duration {
	return parseOr(c.Interval, 250*time.Millisecond)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseOr(c.IdleTimeout, 60*time.Second)
}

// GetDatabasePath returns the database path, defaulting to <root_dir>/.catalog.db.
// Thumbnail names never start with a dot, so the two cannot collide.
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Cache.RootDir, ".catalog.db")
}
