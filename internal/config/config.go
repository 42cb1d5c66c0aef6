package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig     `yaml:"store" mapstructure:"store"`
	Data         DataConfig      `yaml:"data" mapstructure:"data"`
	Registry     RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Fetch        FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Discovery    DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	QA           QAConfig        `yaml:"qa" mapstructure:"qa"`
	FX           FXConfig        `yaml:"fx" mapstructure:"fx"`
	OCR          OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Resolve      ResolveConfig   `yaml:"resolve" mapstructure:"resolve"`
	Redis        RedisConfig     `yaml:"redis" mapstructure:"redis"`
	FMP          ServiceConfig   `yaml:"fmp" mapstructure:"fmp"`
	AlphaVantage ServiceConfig   `yaml:"alphavantage" mapstructure:"alphavantage"`
	Ingest       IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Server       ServerConfig    `yaml:"server" mapstructure:"server"`
	Monitoring   MonitorConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig       `yaml:"log" mapstructure:"log"`
}

// DiscoveryConfig holds the base URLs of the filing portals.
type DiscoveryConfig struct {
	SECDataURL        string `yaml:"sec_data_url" mapstructure:"sec_data_url"`
	SECArchiveURL     string `yaml:"sec_archive_url" mapstructure:"sec_archive_url"`
	LuxSEURL          string `yaml:"luxse_url" mapstructure:"luxse_url"`
	BundesanzeigerURL string `yaml:"bundesanzeiger_url" mapstructure:"bundesanzeiger_url"`
	AMFURL            string `yaml:"amf_url" mapstructure:"amf_url"`
	AMFDataset        string `yaml:"amf_dataset" mapstructure:"amf_dataset"`
}

// StoreConfig selects the run ledger and persistent cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DataConfig locates the raw, silver, gold and qa trees.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	ReferenceCSV string `yaml:"reference_csv" mapstructure:"reference_csv"`
}

type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// FetchConfig tunes the downloader. MinIntervalMs is keyed by source tag.
type FetchConfig struct {
	UserAgent        string         `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int            `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int            `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MinIntervalMs    map[string]int `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
}

// QAThresholdConfig holds the quality gate limits for one source.
type QAThresholdConfig struct {
	WeightMin        float64 `yaml:"weight_min" mapstructure:"weight_min"`
	WeightMax        float64 `yaml:"weight_max" mapstructure:"weight_max"`
	MinIDCoverage    float64 `yaml:"min_id_coverage" mapstructure:"min_id_coverage"`
	MinValueCoverage float64 `yaml:"min_value_coverage" mapstructure:"min_value_coverage"`
	MinRows          int     `yaml:"min_rows" mapstructure:"min_rows"`
}

type QAConfig struct {
	Thresholds map[string]QAThresholdConfig `yaml:"thresholds" mapstructure:"thresholds"`
}

// FXConfig configures the static rate table used to convert market values.
// Rates are units of reporting currency per unit of the keyed currency.
type FXConfig struct {
	ReportingCurrency string             `yaml:"reporting_currency" mapstructure:"reporting_currency"`
	RatesAsOf         string             `yaml:"rates_as_of" mapstructure:"rates_as_of"`
	Rates             map[string]float64 `yaml:"rates" mapstructure:"rates"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

type ResolveConfig struct {
	TimeoutSecs            int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheBackend           string   `yaml:"cache_backend" mapstructure:"cache_backend"`
	CacheTTLHours          int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	TimeBucketHours        int      `yaml:"time_bucket_hours" mapstructure:"time_bucket_hours"`
	Sources                []string `yaml:"sources" mapstructure:"sources"`
	ExcludeKeywords        []string `yaml:"exclude_keywords" mapstructure:"exclude_keywords"`
	MaxPositions           int      `yaml:"max_positions" mapstructure:"max_positions"`
	Concurrency            int      `yaml:"concurrency" mapstructure:"concurrency"`
	CredentialCooldownSecs int      `yaml:"credential_cooldown_secs" mapstructure:"credential_cooldown_secs"`
}

type RedisConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	PoolSize int    `yaml:"pool_size" mapstructure:"pool_size"`
}

// ServiceConfig configures one remote holdings service.
type ServiceConfig struct {
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Keys    []string `yaml:"keys" mapstructure:"keys"`
}

type IngestConfig struct {
	MaxConcurrentFunds int `yaml:"max_concurrent_funds" mapstructure:"max_concurrent_funds"`
}

type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitorConfig configures the ingestion health checker run by serve.
// Rates are fractions of finished runs in the lookback window.
type MonitorConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	RejectRateThreshold  float64 `yaml:"reject_rate_threshold" mapstructure:"reject_rate_threshold"`
	MaxStaleFunds        int     `yaml:"max_stale_funds" mapstructure:"max_stale_funds"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultExcludeKeywords mark money-market and bond-style funds that are not looked through.
var DefaultExcludeKeywords = []string{"money", "cash", "treasury", "bond", "govt", "government", "term", "ibonds"}

// Load reads config.yaml (optional), HOLDINGS_* environment overrides and
// service credentials from the process environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HOLDINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "data/holdings.db")
	v.SetDefault("data.dir", "data")
	v.SetDefault("registry.path", "fund_registry.yaml")
	v.SetDefault("fetch.user_agent", "holdings-cli/1.0 (research; ops@sellsadvisors.com)")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 1000)
	v.SetDefault("fetch.min_interval_ms", map[string]int{
		"sec_nport":      150,
		"luxse_oam":      500,
		"bundesanzeiger": 500,
		"amf_bdif":       1000,
	})
	v.SetDefault("discovery.sec_data_url", "https://data.sec.gov")
	v.SetDefault("discovery.sec_archive_url", "https://www.sec.gov")
	v.SetDefault("discovery.luxse_url", "https://www.bourse.lu")
	v.SetDefault("discovery.bundesanzeiger_url", "https://www.bundesanzeiger.de")
	v.SetDefault("discovery.amf_url", "https://info-financiere.gouv.fr")
	v.SetDefault("discovery.amf_dataset", "flux-amf-new-prod")
	v.SetDefault("fx.reporting_currency", "USD")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("resolve.timeout_secs", 20)
	v.SetDefault("resolve.cache_backend", "memory")
	v.SetDefault("resolve.cache_ttl_hours", 24)
	v.SetDefault("resolve.time_bucket_hours", 24)
	v.SetDefault("resolve.sources", []string{"gold", "fmp", "alphavantage", "static"})
	v.SetDefault("resolve.exclude_keywords", DefaultExcludeKeywords)
	v.SetDefault("resolve.concurrency", 4)
	v.SetDefault("resolve.credential_cooldown_secs", 60)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("fmp.base_url", "https://financialmodelingprep.com")
	v.SetDefault("alphavantage.base_url", "https://www.alphavantage.co")
	v.SetDefault("ingest.max_concurrent_funds", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.reject_rate_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// viper lower-cases map keys; currency codes are upper-case everywhere else.
	rates := make(map[string]float64, len(cfg.FX.Rates))
	for ccy, r := range cfg.FX.Rates {
		rates[strings.ToUpper(ccy)] = r
	}
	cfg.FX.Rates = rates

	env := os.Environ()
	cfg.FMP.Keys = DiscoverKeys(cfg.FMP.Keys, env, "FMP")
	cfg.AlphaVantage.Keys = DiscoverKeys(cfg.AlphaVantage.Keys, env, "ALPHAVANTAGE", "ALPHA_VANTAGE")

	return &cfg, nil
}

// DiscoverKeys merges configured credentials with <PREFIX>_API_KEYS (comma or
// semicolon separated), <PREFIX>_API_KEY and <PREFIX>_API_KEY_* variables.
// Order is preserved and duplicates are dropped.
func DiscoverKeys(configured []string, environ []string, prefixes ...string) []string {
	keys := append([]string(nil), configured...)

	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, val, ok := strings.Cut(kv, "=")
		if ok {
			vars[k] = val
		}
	}

	for _, prefix := range prefixes {
		multi := strings.ReplaceAll(vars[prefix+"_API_KEYS"], ";", ",")
		keys = append(keys, strings.Split(multi, ",")...)
		keys = append(keys, vars[prefix+"_API_KEY"])

		var numbered []string
		for k := range vars {
			if strings.HasPrefix(k, prefix+"_API_KEY_") {
				numbered = append(numbered, k)
			}
		}
		sort.Strings(numbered)
		for _, k := range numbered {
			keys = append(keys, vars[k])
		}
	}

	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DSN == "" {
			return eris.New("config: store.dsn is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if c.Data.Dir == "" {
		return eris.New("config: data.dir is required")
	}

	switch c.Resolve.CacheBackend {
	case "memory", "store":
	case "redis":
		if c.Redis.URL == "" {
			return eris.New("config: redis.url is required for the redis cache backend")
		}
	default:
		return eris.Errorf("config: unknown resolve.cache_backend %q", c.Resolve.CacheBackend)
	}

	for source, th := range c.QA.Thresholds {
		if th.WeightMin != 0 && th.WeightMax != 0 && th.WeightMin > th.WeightMax {
			return eris.Errorf("config: qa.thresholds.%s weight_min exceeds weight_max", source)
		}
		if th.MinIDCoverage < 0 || th.MinIDCoverage > 100 {
			return eris.Errorf("config: qa.thresholds.%s min_id_coverage must be within [0, 100]", source)
		}
	}
	return nil
}

// MinInterval returns the politeness delay for a source tag.
func (f FetchConfig) MinInterval(source string) time.Duration {
	return time.Duration(f.MinIntervalMs[source]) * time.Millisecond
}

// InitLogger configures the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
