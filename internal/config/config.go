// Package config handles configuration loading for marketdash.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	API           APIConfig           `mapstructure:"api"           yaml:"api"`
	Loader        LoaderConfig        `mapstructure:"loader"        yaml:"loader"`
	Markets       MarketsConfig       `mapstructure:"markets"       yaml:"markets"`
	Sources       SourcesConfig       `mapstructure:"sources"       yaml:"sources"`
	News          NewsConfig          `mapstructure:"news"          yaml:"news"`
	IR            IRConfig            `mapstructure:"ir"            yaml:"ir"`
	Institutional InstitutionalConfig `mapstructure:"institutional" yaml:"institutional"`
	Logging       LoggingConfig       `mapstructure:"logging"       yaml:"logging"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Addr returns the host:port the server listens on.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoaderConfig holds the staged loader and section sequencer tuning knobs.
// The original deployment's values are defaults, not contracts: they were
// tuned for a low-resource host and can be overridden per environment.
type LoaderConfig struct {
	BaseURL           string `mapstructure:"base_url"            yaml:"base_url"`
	Stage1TimeoutSec  int    `mapstructure:"stage1_timeout_sec"  yaml:"stage1_timeout_sec"`
	Stage2TimeoutSec  int    `mapstructure:"stage2_timeout_sec"  yaml:"stage2_timeout_sec"`
	TaskPauseMS       int    `mapstructure:"task_pause_ms"       yaml:"task_pause_ms"`
	InitialDelayMS    int    `mapstructure:"initial_delay_ms"    yaml:"initial_delay_ms"`
	SectionTimeoutSec int    `mapstructure:"section_timeout_sec" yaml:"section_timeout_sec"`
}

// RatioDefinition declares one cross-asset ratio computed from two symbols.
type RatioDefinition struct {
	ID          string `mapstructure:"id"          yaml:"id"`
	Name        string `mapstructure:"name"        yaml:"name"`
	Numerator   string `mapstructure:"numerator"   yaml:"numerator"`
	Denominator string `mapstructure:"denominator" yaml:"denominator"`
	Period      string `mapstructure:"period"      yaml:"period"` // "20y" or "max"
	Unit        string `mapstructure:"unit"        yaml:"unit"`
	Description string `mapstructure:"description" yaml:"description"`
}

// MarketsConfig holds the symbol tables per dashboard section.
type MarketsConfig struct {
	USIndices     map[string]string `mapstructure:"us_indices"            yaml:"us_indices"`
	USStocks      map[string]string `mapstructure:"us_stocks"             yaml:"us_stocks"`
	TWMarkets     map[string]string `mapstructure:"tw_markets"            yaml:"tw_markets"`
	International map[string]string `mapstructure:"international_markets" yaml:"international_markets"`
	MetalsFutures map[string]string `mapstructure:"metals_futures"        yaml:"metals_futures"`
	Crypto        map[string]string `mapstructure:"crypto"                yaml:"crypto"`
	Ratios        []RatioDefinition `mapstructure:"ratios"                yaml:"ratios"`
	CacheTTLSec   int               `mapstructure:"cache_ttl_sec"         yaml:"cache_ttl_sec"`
}

// SectionSymbols returns the configured symbol table for a section key,
// or nil for unknown sections.
func (m MarketsConfig) SectionSymbols(section string) map[string]string {
	switch section {
	case "us_indices":
		return m.USIndices
	case "us_stocks":
		return m.USStocks
	case "tw_markets":
		return m.TWMarkets
	case "international_markets":
		return m.International
	case "metals_futures":
		return m.MetalsFutures
	case "crypto":
		return m.Crypto
	}
	return nil
}

// SourcesConfig holds upstream data source settings and credentials.
type SourcesConfig struct {
	FinnhubKey    string `mapstructure:"finnhub_key"     yaml:"finnhub_key"`
	FREDKey       string `mapstructure:"fred_key"        yaml:"fred_key"`
	SECUserAgent  string `mapstructure:"sec_user_agent"  yaml:"sec_user_agent"`
	UseBinance    bool   `mapstructure:"use_binance"     yaml:"use_binance"`
	UseDeribit    bool   `mapstructure:"use_deribit"     yaml:"use_deribit"`
}

// NewsConfig holds RSS news fetching settings.
type NewsConfig struct {
	Keywords      []string `mapstructure:"keywords"        yaml:"keywords"`
	FeedURLs      []string `mapstructure:"feed_urls"       yaml:"feed_urls"`
	WindowHours   int      `mapstructure:"window_hours"    yaml:"window_hours"`
	TopCompanies  int      `mapstructure:"top_companies"   yaml:"top_companies"`
	MaxPerCompany int      `mapstructure:"max_per_company" yaml:"max_per_company"`
}

// IRConfig holds investor-relations meeting CSV settings.
type IRConfig struct {
	CSVDir      string `mapstructure:"csv_dir"      yaml:"csv_dir"`
	MonthsAhead int    `mapstructure:"months_ahead" yaml:"months_ahead"`
}

// InstitutionalConfig holds TWSE institutional net-flow settings.
type InstitutionalConfig struct {
	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
	File   string `mapstructure:"file"   yaml:"file"`   // optional rotating log file
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.marketdash/config.yaml (home directory)
//  3. /etc/marketdash/config.yaml (system)
//
// Environment variables override config file values.
// Format: MARKETDASH_<SECTION>_<KEY>, e.g., MARKETDASH_SOURCES_FINNHUB_KEY
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".marketdash"))
	v.AddConfigPath("/etc/marketdash")

	v.SetEnvPrefix("MARKETDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("MARKETDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 5000)
	v.SetDefault("api.cors_origins", []string{"*"})

	// Loader defaults, tuned for a slow free-tier backend.
	v.SetDefault("loader.base_url", "http://localhost:5000")
	v.SetDefault("loader.stage1_timeout_sec", 90)
	v.SetDefault("loader.stage2_timeout_sec", 120)
	v.SetDefault("loader.task_pause_ms", 400)
	v.SetDefault("loader.initial_delay_ms", 2000)
	v.SetDefault("loader.section_timeout_sec", 60)

	// Market symbol tables
	v.SetDefault("markets.cache_ttl_sec", 120)
	v.SetDefault("markets.us_indices", map[string]string{
		"^GSPC": "S&P 500",
		"^DJI":  "Dow Jones",
		"^IXIC": "NASDAQ",
		"QQQ":   "NASDAQ 100",
		"VOO":   "S&P 500 ETF",
		"IWM":   "Russell 2000",
	})
	v.SetDefault("markets.us_stocks", map[string]string{
		"AAPL": "Apple", "MSFT": "Microsoft", "GOOGL": "Alphabet",
		"AMZN": "Amazon", "NVDA": "NVIDIA", "META": "Meta", "TSLA": "Tesla",
		"AVGO": "Broadcom", "ORCL": "Oracle", "TSM": "TSMC (ADR)",
		"AMD": "AMD", "UMC": "UMC (ADR)", "PLTR": "Palantir", "ASML": "ASML",
		"LRCX": "Lam Research", "AMAT": "Applied Materials", "KLAC": "KLA",
		"SNPS": "Synopsys", "CDNS": "Cadence", "MRVL": "Marvell",
		"QCOM": "Qualcomm", "TER": "Teradyne", "ON": "ON Semiconductor",
		"MU": "Micron", "INTC": "Intel", "NFLX": "Netflix", "CRM": "Salesforce",
		"ADBE": "Adobe", "CSCO": "Cisco",
	})
	v.SetDefault("markets.tw_markets", map[string]string{
		"^TWII":   "TAIEX",
		"2330.TW": "TSMC", "2317.TW": "Hon Hai", "2454.TW": "MediaTek",
		"2303.TW": "UMC", "8150.TW": "ChipMOS",
		"2408.TW": "Nanya Tech", "2344.TW": "Winbond", "2337.TW": "Macronix",
		"3006.TW": "Elite Semiconductor",
		"3037.TW": "Unimicron", "2313.TW": "Compeq", "8046.TW": "Nan Ya PCB",
		"2383.TW": "EMC", "6213.TW": "ITEQ", "2367.TW": "Unitech", "4958.TW": "Zhen Ding",
	})
	v.SetDefault("markets.international_markets", map[string]string{
		"^GSPC": "S&P 500", "^DJI": "Dow Jones", "^IXIC": "NASDAQ",
		"^N225": "Nikkei 225", "^HSI": "Hang Seng", "^FTSE": "FTSE 100",
		"^GDAXI": "DAX", "^FCHI": "CAC 40",
	})
	v.SetDefault("markets.metals_futures", map[string]string{
		"GC=F": "Gold Futures", "SI=F": "Silver Futures", "HG=F": "Copper Futures",
		"PL=F": "Platinum Futures", "PA=F": "Palladium Futures",
	})
	v.SetDefault("markets.crypto", map[string]string{
		"BTC-USD": "Bitcoin", "ETH-USD": "Ethereum", "BNB-USD": "BNB",
		"XRP-USD": "XRP", "SOL-USD": "Solana", "USDT-USD": "Tether",
		"DOGE-USD": "Dogecoin", "ADA-USD": "Cardano", "AVAX-USD": "Avalanche",
		"LINK-USD": "Chainlink",
	})
	v.SetDefault("markets.ratios", []map[string]string{
		{"id": "gold_silver", "name": "Gold/Silver", "numerator": "GC=F", "denominator": "SI=F", "period": "20y", "unit": "x", "description": "gold priced in silver"},
		{"id": "silver_copper", "name": "Silver/Copper", "numerator": "SI=F", "denominator": "HG=F", "period": "20y", "unit": "x", "description": "silver priced in copper"},
		{"id": "gold_copper", "name": "Gold/Copper", "numerator": "GC=F", "denominator": "HG=F", "period": "20y", "unit": "x", "description": "gold priced in copper"},
		{"id": "platinum_gold", "name": "Platinum/Gold", "numerator": "PL=F", "denominator": "GC=F", "period": "20y", "unit": "x", "description": "platinum priced in gold"},
		{"id": "palladium_gold", "name": "Palladium/Gold", "numerator": "PA=F", "denominator": "GC=F", "period": "20y", "unit": "x", "description": "palladium priced in gold"},
		{"id": "eth_btc", "name": "ETH/BTC", "numerator": "ETH-USD", "denominator": "BTC-USD", "period": "max", "unit": "x", "description": "ether priced in bitcoin"},
		{"id": "btc_gold", "name": "BTC/Gold", "numerator": "BTC-USD", "denominator": "GC=F", "period": "max", "unit": "oz", "description": "ounces of gold per bitcoin"},
	})

	// Source defaults
	v.SetDefault("sources.sec_user_agent", "marketdash (contact@example.com)")
	v.SetDefault("sources.use_binance", true)
	v.SetDefault("sources.use_deribit", true)

	// News defaults
	v.SetDefault("news.keywords", []string{"stocks", "semiconductor", "earnings"})
	v.SetDefault("news.feed_urls", []string{})
	v.SetDefault("news.window_hours", 24)
	v.SetDefault("news.top_companies", 20)
	v.SetDefault("news.max_per_company", 50)

	// IR defaults
	v.SetDefault("ir.csv_dir", "./ir_csv")
	v.SetDefault("ir.months_ahead", 3)

	// Institutional defaults
	v.SetDefault("institutional.upload_dir", "./institutional_csv")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("MARKETDASH_SOURCES_FINNHUB_KEY"); key != "" {
		cfg.Sources.FinnhubKey = key
	}
	if key := os.Getenv("MARKETDASH_SOURCES_FRED_KEY"); key != "" {
		cfg.Sources.FREDKey = key
	} else if key := os.Getenv("FRED_API_KEY"); key != "" {
		cfg.Sources.FREDKey = key
	}
	if ua := os.Getenv("MARKETDASH_SOURCES_SEC_USER_AGENT"); ua != "" {
		cfg.Sources.SECUserAgent = ua
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
