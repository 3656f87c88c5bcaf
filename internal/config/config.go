package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pharmacy-forecast/internal/chartdata"
	"pharmacy-forecast/internal/logging"
	"pharmacy-forecast/internal/synth"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	ForecastAPI ForecastAPIConfig `mapstructure:"forecast_api"`
	Synth       SynthConfig       `mapstructure:"synth"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Retrain     RetrainConfig     `mapstructure:"retrain"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Notices     NoticesConfig     `mapstructure:"notices"`
	Export      ExportConfig      `mapstructure:"export"`
	Server      ServerConfig      `mapstructure:"server"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ForecastAPIConfig points at the external forecasting service.
type ForecastAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RetryMax       int           `mapstructure:"retry_max"`
	RetryWaitMin   time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax   time.Duration `mapstructure:"retry_wait_max"`
}

// SynthConfig tunes series generation and chart assembly.
type SynthConfig struct {
	DefaultTimeframe string  `mapstructure:"default_timeframe"`
	RecentDays       int     `mapstructure:"recent_days"`
	BandRatio        float64 `mapstructure:"band_ratio"`
}

// CacheConfig configures the optional shared tier behind the in-process cache.
type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig describes Redis connectivity.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RefreshConfig governs forecast refresh cadence.
type RefreshConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	Interval              time.Duration `mapstructure:"interval"`
	AlignToStart          bool          `mapstructure:"align_to_start"`
	StartupDelay          time.Duration `mapstructure:"startup_delay"`
	ManualMinInterval     time.Duration `mapstructure:"manual_min_interval"`
	BackgroundMinInterval time.Duration `mapstructure:"background_min_interval"`
	HorizonDays           int           `mapstructure:"horizon_days"`
}

// RetrainConfig drives model training requests.
type RetrainConfig struct {
	Models          []string `mapstructure:"models"`
	AdvisoryLockKey int64    `mapstructure:"advisory_lock_key"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables snapshots.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// NoticesConfig bounds the notice board and routes copies to Telegram.
type NoticesConfig struct {
	Capacity int            `mapstructure:"capacity"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	Theme         string `mapstructure:"theme"`
	Width         int    `mapstructure:"width"`
	Height        int    `mapstructure:"height"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PHARMAFORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pharmaforecast")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("forecast_api.base_url", "http://localhost:5000/api")
	v.SetDefault("forecast_api.request_timeout", "30s")
	v.SetDefault("forecast_api.user_agent", "pharmaforecast/1.0")
	v.SetDefault("forecast_api.retry_max", 2)
	v.SetDefault("forecast_api.retry_wait_min", "200ms")
	v.SetDefault("forecast_api.retry_wait_max", "2s")

	v.SetDefault("synth.default_timeframe", string(synth.Day1))
	v.SetDefault("synth.recent_days", chartdata.DefaultRecentDays)
	v.SetDefault("synth.band_ratio", chartdata.DefaultBandRatio)

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.prefix", "pharmaforecast:series")

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", "5m")
	v.SetDefault("refresh.align_to_start", true)
	v.SetDefault("refresh.startup_delay", "0s")
	v.SetDefault("refresh.manual_min_interval", "1500ms")
	v.SetDefault("refresh.background_min_interval", "60s")
	v.SetDefault("refresh.horizon_days", 30)

	v.SetDefault("retrain.models", []string{"sarimax", "prophet", "exponential_smoothing"})
	v.SetDefault("retrain.advisory_lock_key", int64(0x70686172))

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("notices.capacity", 50)
	v.SetDefault("notices.telegram.enabled", false)
	v.SetDefault("notices.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 2000)
	v.SetDefault("export.theme", chartdata.ThemeLight)
	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 640)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if _, err := synth.ParseTimeframe(c.Synth.DefaultTimeframe); err != nil {
		return fmt.Errorf("synth.default_timeframe: %w", err)
	}
	if c.Synth.BandRatio < 0 || c.Synth.BandRatio >= 1 {
		return fmt.Errorf("synth.band_ratio must be within [0, 1)")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be greater than zero")
	}
	if c.Refresh.ManualMinInterval <= 0 || c.Refresh.BackgroundMinInterval <= 0 {
		return fmt.Errorf("refresh min intervals must be greater than zero")
	}
	if c.Refresh.HorizonDays <= 0 {
		return fmt.Errorf("refresh.horizon_days must be greater than zero")
	}
	if len(c.Retrain.Models) == 0 {
		return fmt.Errorf("retrain.models cannot be empty")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if _, ok := chartdata.Palettes[c.Export.Theme]; !ok {
		return fmt.Errorf("export.theme %q is not a known theme", c.Export.Theme)
	}
	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr 必须配置")
	}
	if c.Notices.Telegram.Enabled {
		if c.Notices.Telegram.BotToken == "" {
			return fmt.Errorf("notices.telegram.bot_token 必须配置")
		}
		if c.Notices.Telegram.ChatID == "" {
			return fmt.Errorf("notices.telegram.chat_id 必须配置")
		}
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// DefaultTimeframe returns the parsed startup timeframe.
func (c *Config) DefaultTimeframe() synth.Timeframe {
	tf, err := synth.ParseTimeframe(c.Synth.DefaultTimeframe)
	if err != nil {
		return synth.Day1
	}
	return tf
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
