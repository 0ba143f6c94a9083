package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"basis-monitor/internal/basis"
	"basis-monitor/internal/logging"
)

// Config materialises application configuration. Every threshold and policy
// the pipeline depends on lives here; there is no module-level tunable.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Deribit   DeribitConfig   `mapstructure:"deribit"`
	Chainlink ChainlinkConfig `mapstructure:"chainlink"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Benchmark BenchmarkConfig `mapstructure:"benchmark"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// DeribitConfig covers the venue REST API.
type DeribitConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ChainlinkConfig covers the optional on-chain settlement reference.
type ChainlinkConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RPCURL            string        `mapstructure:"rpc_url"`
	AggregatorAddress string        `mapstructure:"aggregator_address"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// PipelineConfig enumerates the per-deployment scoring parameters. One
// instance is shared by every currency the monitor tracks.
type PipelineConfig struct {
	Currencies       []string          `mapstructure:"currencies"`
	SpotInstruments  map[string]string `mapstructure:"spot_instruments"`
	ReferenceSource  string            `mapstructure:"reference_source"`
	NearExpiryPolicy string            `mapstructure:"near_expiry_policy"`
	MinTenorDays     float64           `mapstructure:"min_tenor_days"`
	MaxTenorDays     float64           `mapstructure:"max_tenor_days"`
	RichThreshold    float64           `mapstructure:"rich_threshold"`
	CheapThreshold   float64           `mapstructure:"cheap_threshold"`
	FitMethods       []string          `mapstructure:"fit_methods"`
	HistoryWindow    time.Duration     `mapstructure:"history_window"`
	Spread           SpreadConfig      `mapstructure:"spread"`
}

// SpreadConfig enables the cross-currency spread join.
type SpreadConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseCurrency  string `mapstructure:"base_currency"`
	QuoteCurrency string `mapstructure:"quote_currency"`
}

// BenchmarkConfig locates the static fair-value table.
type BenchmarkConfig struct {
	Path string `mapstructure:"path"`
}

// AlertingConfig defines signal alert thresholds and routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BASISWATCH")
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
	v.SetDefault("app.name", "basiswatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x62617369))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("deribit.base_url", "https://www.deribit.com/api/v2")
	v.SetDefault("deribit.request_timeout", "10s")
	v.SetDefault("deribit.user_agent", "basiswatch/1.0")

	v.SetDefault("chainlink.enabled", false)
	v.SetDefault("chainlink.request_timeout", "10s")

	v.SetDefault("pipeline.currencies", []string{"BTC"})
	v.SetDefault("pipeline.reference_source", "spot")
	v.SetDefault("pipeline.near_expiry_policy", string(basis.PolicyExclude))
	v.SetDefault("pipeline.min_tenor_days", 2.0)
	v.SetDefault("pipeline.max_tenor_days", 180.0)
	v.SetDefault("pipeline.rich_threshold", 2.0)
	v.SetDefault("pipeline.cheap_threshold", -2.0)
	v.SetDefault("pipeline.fit_methods", []string{string(basis.FitLogLinear), string(basis.FitQuadratic)})
	v.SetDefault("pipeline.history_window", "720h")
	v.SetDefault("pipeline.spread.enabled", false)

	v.SetDefault("benchmark.path", "benchmark.csv")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if len(c.Pipeline.Currencies) == 0 {
		return fmt.Errorf("pipeline.currencies must list at least one currency")
	}
	if !basis.NearExpiryPolicy(c.Pipeline.NearExpiryPolicy).Valid() {
		return fmt.Errorf("pipeline.near_expiry_policy must be %q or %q", basis.PolicyExclude, basis.PolicyClamp)
	}
	if c.Pipeline.MinTenorDays < 0 {
		return fmt.Errorf("pipeline.min_tenor_days cannot be negative")
	}
	if c.Pipeline.MaxTenorDays <= 0 || c.Pipeline.MaxTenorDays <= c.Pipeline.MinTenorDays {
		return fmt.Errorf("pipeline.max_tenor_days must exceed pipeline.min_tenor_days")
	}
	if c.Pipeline.RichThreshold <= c.Pipeline.CheapThreshold {
		return fmt.Errorf("pipeline.rich_threshold must exceed pipeline.cheap_threshold")
	}
	switch c.Pipeline.ReferenceSource {
	case "spot", "index", "chainlink":
	default:
		return fmt.Errorf("pipeline.reference_source must be spot, index, or chainlink")
	}
	if c.Pipeline.ReferenceSource == "chainlink" && !c.Chainlink.Enabled {
		return fmt.Errorf("pipeline.reference_source is chainlink but chainlink.enabled is false")
	}
	for _, method := range c.Pipeline.FitMethods {
		switch basis.FitMethod(method) {
		case basis.FitLogLinear, basis.FitQuadratic:
		default:
			return fmt.Errorf("pipeline.fit_methods contains unknown method %q", method)
		}
	}
	if c.Pipeline.Spread.Enabled {
		if c.Pipeline.Spread.BaseCurrency == "" || c.Pipeline.Spread.QuoteCurrency == "" {
			return fmt.Errorf("pipeline.spread requires base_currency and quote_currency")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// SpotInstrument resolves the tradable spot instrument used as the reference
// for a currency, defaulting to the USDC pair the venue lists.
func (c *Config) SpotInstrument(currency string) string {
	if name, ok := c.Pipeline.SpotInstruments[strings.ToUpper(currency)]; ok && name != "" {
		return name
	}
	return strings.ToUpper(currency) + "_USDC"
}

// IndexName resolves the venue index name for a currency, e.g. btc_usd.
func (c *Config) IndexName(currency string) string {
	return strings.ToLower(currency) + "_usd"
}

// PipelineSettings converts the stored pipeline values into the core
// configuration object.
func (c *Config) PipelineSettings() basis.PipelineConfig {
	methods := make([]basis.FitMethod, 0, len(c.Pipeline.FitMethods))
	for _, m := range c.Pipeline.FitMethods {
		methods = append(methods, basis.FitMethod(m))
	}
	return basis.PipelineConfig{
		NearExpiryPolicy: basis.NearExpiryPolicy(c.Pipeline.NearExpiryPolicy),
		MinTenorDays:     c.Pipeline.MinTenorDays,
		MaxTenorDays:     c.Pipeline.MaxTenorDays,
		RichThreshold:    c.Pipeline.RichThreshold,
		CheapThreshold:   c.Pipeline.CheapThreshold,
		FitMethods:       methods,
	}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
