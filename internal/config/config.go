package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/browser"
	"github.com/maltedev/ad-product-extractor/internal/database"
	"github.com/maltedev/ad-product-extractor/internal/fetcher"
	"github.com/maltedev/ad-product-extractor/internal/imaging"
	"github.com/maltedev/ad-product-extractor/internal/vision"
	"github.com/spf13/viper"
)

const EnvPrefix = "EXTRACTOR"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Images   ImagesConfig   `mapstructure:"images"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type FetcherConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgents  []string      `mapstructure:"user_agents"`
}

type BrowserConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Headless       bool          `mapstructure:"headless"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	Locale         string        `mapstructure:"locale"`
	TimezoneID     string        `mapstructure:"timezone_id"`
	ProxyServer    string        `mapstructure:"proxy_server"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type ImagesConfig struct {
	MinWidth            int           `mapstructure:"min_width"`
	MinHeight           int           `mapstructure:"min_height"`
	MinStdDev           float64       `mapstructure:"min_std_dev"`
	MaxCompressionRatio float64       `mapstructure:"max_compression_ratio"`
	MinPixelationDiff   float64       `mapstructure:"min_pixelation_diff"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	DuplicateThreshold  float64       `mapstructure:"duplicate_threshold"`
	FingerprintSize     int           `mapstructure:"fingerprint_size"`
}

type VisionConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	LowThreshold  int  `mapstructure:"low_threshold"`
	HighThreshold int  `mapstructure:"high_threshold"`
	MinWidth      int  `mapstructure:"min_width"`
	MinHeight     int  `mapstructure:"min_height"`
	MaxRegions    int  `mapstructure:"max_regions"`
	MaxHeight     int  `mapstructure:"max_height"`
}

// ExtractConfig toggles site-specific strategies that the default cascade
// leaves out.
type ExtractConfig struct {
	Amazon bool `mapstructure:"amazon"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type JobsConfig struct {
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CheckImages  bool          `mapstructure:"check_images"`
}

type BatchConfig struct {
	RateLimitMin time.Duration `mapstructure:"rate_limit_min"`
	RateLimitMax time.Duration `mapstructure:"rate_limit_max"`
	StateFile    string        `mapstructure:"state_file"`
	QueueSize    int           `mapstructure:"queue_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config.yaml from the usual locations when present, then
// applies EXTRACTOR_* environment overrides (EXTRACTOR_FETCHER_TIMEOUT=...).
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ad-extractor/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads an explicit config file plus environment overrides.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("fetcher.max_attempts", fetcher.DefaultMaxAttempts)
	v.SetDefault("fetcher.retry_delay", fetcher.DefaultRetryDelay.String())
	v.SetDefault("fetcher.timeout", fetcher.DefaultTimeout.String())
	v.SetDefault("fetcher.user_agents", fetcher.DefaultUserAgents())

	bo := browser.DefaultOptions()
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", bo.Headless)
	v.SetDefault("browser.timeout", bo.Timeout.String())
	v.SetDefault("browser.viewport_width", bo.ViewportWidth)
	v.SetDefault("browser.viewport_height", bo.ViewportHeight)
	v.SetDefault("browser.locale", bo.Locale)
	v.SetDefault("browser.timezone_id", bo.TimezoneID)
	v.SetDefault("browser.proxy_server", "")
	v.SetDefault("browser.max_retries", bo.MaxRetries)

	th := imaging.DefaultThresholds()
	v.SetDefault("images.min_width", th.MinWidth)
	v.SetDefault("images.min_height", th.MinHeight)
	v.SetDefault("images.min_std_dev", th.MinStdDev)
	v.SetDefault("images.max_compression_ratio", th.MaxCompressionRatio)
	v.SetDefault("images.min_pixelation_diff", th.MinPixelationDiff)
	v.SetDefault("images.fetch_timeout", imaging.DefaultFetchTimeout.String())
	v.SetDefault("images.duplicate_threshold", imaging.DefaultDuplicateThreshold)
	v.SetDefault("images.fingerprint_size", imaging.DefaultFingerprintSize)

	vo := vision.DefaultOptions()
	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.low_threshold", vo.LowThreshold)
	v.SetDefault("vision.high_threshold", vo.HighThreshold)
	v.SetDefault("vision.min_width", vo.MinWidth)
	v.SetDefault("vision.min_height", vo.MinHeight)
	v.SetDefault("vision.max_regions", vo.MaxRegions)
	v.SetDefault("vision.max_height", vo.MaxHeight)

	v.SetDefault("extract.amazon", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "ad_extractor")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", database.DefaultTargetStream)
	v.SetDefault("redis.max_len", 100000)

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.poll_interval", "5s")
	v.SetDefault("jobs.check_images", false)

	v.SetDefault("batch.rate_limit_min", "1s")
	v.SetDefault("batch.rate_limit_max", "3s")
	v.SetDefault("batch.state_file", "")
	v.SetDefault("batch.queue_size", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	if c.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("fetcher.max_attempts must be at least 1")
	}
	if c.Images.MinWidth < 1 || c.Images.MinHeight < 1 {
		return fmt.Errorf("images.min_width and images.min_height must be positive")
	}
	if c.Images.DuplicateThreshold <= 0 || c.Images.DuplicateThreshold > 1 {
		return fmt.Errorf("images.duplicate_threshold must be in (0, 1], got %v", c.Images.DuplicateThreshold)
	}
	if c.Vision.LowThreshold > c.Vision.HighThreshold {
		return fmt.Errorf("vision.low_threshold cannot be greater than vision.high_threshold")
	}
	if c.Vision.Enabled && !c.Browser.Enabled {
		return fmt.Errorf("vision.enabled requires browser.enabled for screenshots")
	}
	if c.Batch.RateLimitMin > c.Batch.RateLimitMax {
		return fmt.Errorf("batch.rate_limit_min cannot be greater than batch.rate_limit_max")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'text', got: %s", c.Logging.Format)
	}
	return nil
}

func (c FetcherConfig) Options() fetcher.Options {
	return fetcher.Options{
		MaxAttempts: c.MaxAttempts,
		RetryDelay:  c.RetryDelay,
		Timeout:     c.Timeout,
		UserAgents:  c.UserAgents,
	}
}

func (c BrowserConfig) Options() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Headless
	opts.Timeout = c.Timeout
	opts.ViewportWidth = c.ViewportWidth
	opts.ViewportHeight = c.ViewportHeight
	opts.Locale = c.Locale
	opts.TimezoneID = c.TimezoneID
	opts.ProxyServer = c.ProxyServer
	opts.MaxRetries = c.MaxRetries
	return opts
}

func (c ImagesConfig) Thresholds() imaging.Thresholds {
	return imaging.Thresholds{
		MinWidth:            c.MinWidth,
		MinHeight:           c.MinHeight,
		MinStdDev:           c.MinStdDev,
		MaxCompressionRatio: c.MaxCompressionRatio,
		MinPixelationDiff:   c.MinPixelationDiff,
	}
}

func (c VisionConfig) Options() vision.Options {
	return vision.Options{
		LowThreshold:  c.LowThreshold,
		HighThreshold: c.HighThreshold,
		MinWidth:      c.MinWidth,
		MinHeight:     c.MinHeight,
		MaxRegions:    c.MaxRegions,
		MaxHeight:     c.MaxHeight,
	}
}

func (c DatabaseConfig) DB() database.Config {
	return database.Config{
		Host:        c.Host,
		Port:        c.Port,
		User:        c.User,
		Password:    c.Password,
		Database:    c.Name,
		MaxConns:    c.MaxConns,
		MinConns:    c.MinConns,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
	}
}
