package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"swapScope/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	APIKey         string
	APIBaseURL     string
	APIRPS         float64
	APITimeout     time.Duration
	MetadataSource string
	RPC            map[string]string
	TokenAddresses map[string]map[string]string

	PriceStale        time.Duration
	PriceEvict        time.Duration
	MetaStale         time.Duration
	MetaEvict         time.Duration
	RefreshInterval   time.Duration
	PageSize          int
	InitialTokenCount int

	Amount string
	From   string
	To     string

	Listen         string
	AllowedOrigins []string
	RatePerMinute  int

	PGDSN     string
	Out       string
	StateFile string

	LogLevel string
	LogFile  string

	Catalog Catalog
}

type chainEntry struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	NativeSymbol string `mapstructure:"native_symbol"`
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("EXPLORER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api-rps", 5.0)
	v.SetDefault("api-timeout", 10*time.Second)
	v.SetDefault("metadata-source", "api")
	v.SetDefault("price-stale", 60*time.Second)
	v.SetDefault("price-evict", 5*time.Minute)
	v.SetDefault("meta-stale", 5*time.Minute)
	v.SetDefault("meta-evict", 15*time.Minute)
	v.SetDefault("refresh-interval", 60*time.Second)
	v.SetDefault("page-size", 3)
	v.SetDefault("initial-token-count", 3)
	v.SetDefault("listen", ":8080")
	v.SetDefault("rate-per-minute", 100)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	catalog, err := loadCatalog(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIKey:            v.GetString("api-key"),
		APIBaseURL:        v.GetString("api-base-url"),
		APIRPS:            v.GetFloat64("api-rps"),
		APITimeout:        v.GetDuration("api-timeout"),
		MetadataSource:    strings.ToLower(v.GetString("metadata-source")),
		RPC:               v.GetStringMapString("rpc"),
		TokenAddresses:    getNestedStringMap(v, "token-addresses"),
		PriceStale:        v.GetDuration("price-stale"),
		PriceEvict:        v.GetDuration("price-evict"),
		MetaStale:         v.GetDuration("meta-stale"),
		MetaEvict:         v.GetDuration("meta-evict"),
		RefreshInterval:   v.GetDuration("refresh-interval"),
		PageSize:          v.GetInt("page-size"),
		InitialTokenCount: v.GetInt("initial-token-count"),
		Amount:            v.GetString("amount"),
		From:              v.GetString("from"),
		To:                v.GetString("to"),
		Listen:            v.GetString("listen"),
		AllowedOrigins:    getStringSlice(v, "allowed-origins"),
		RatePerMinute:     v.GetInt("rate-per-minute"),
		PGDSN:             v.GetString("pg-dsn"),
		Out:               v.GetString("out"),
		StateFile:         v.GetString("state-file"),
		LogLevel:          v.GetString("log-level"),
		LogFile:           v.GetString("log-file"),
		Catalog:           catalog,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page-size must be greater than zero")
	}
	if c.InitialTokenCount < 0 {
		return fmt.Errorf("initial-token-count must not be negative")
	}
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("refresh-interval must be at least 1s")
	}
	switch c.MetadataSource {
	case "api", "onchain":
	default:
		return fmt.Errorf("unknown metadata-source %q (want api or onchain)", c.MetadataSource)
	}
	if len(c.Catalog.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	return nil
}

// RefreshSeconds returns the countdown length in whole seconds.
func (c Config) RefreshSeconds() int {
	return int(c.RefreshInterval / time.Second)
}

func loadCatalog(v *viper.Viper) (Catalog, error) {
	catalog := DefaultCatalog()

	if v.IsSet("chains") {
		var entries []chainEntry
		if err := v.UnmarshalKey("chains", &entries); err != nil {
			return Catalog{}, fmt.Errorf("parse chains: %w", err)
		}
		chains := make([]model.Chain, 0, len(entries))
		for _, entry := range entries {
			if _, err := strconv.ParseUint(entry.ID, 10, 64); err != nil {
				return Catalog{}, fmt.Errorf("invalid chain id %q", entry.ID)
			}
			chains = append(chains, model.Chain{
				ID:           entry.ID,
				Name:         entry.Name,
				NativeSymbol: strings.ToUpper(entry.NativeSymbol),
			})
		}
		catalog.Chains = chains
	}

	if v.IsSet("tokens") {
		raw := v.GetStringMap("tokens")
		symbols := make(map[string][]string, len(raw))
		for chainID := range raw {
			items := getStringSlice(v, "tokens."+chainID)
			for i := range items {
				items[i] = strings.ToUpper(items[i])
			}
			symbols[chainID] = items
		}
		catalog.Symbols = symbols
	}

	if v.IsSet("icons") {
		icons := make(map[string]string)
		for symbol, url := range v.GetStringMapString("icons") {
			icons[strings.ToUpper(symbol)] = url
		}
		catalog.Icons = icons
	}

	return catalog, nil
}

func getNestedStringMap(v *viper.Viper, key string) map[string]map[string]string {
	out := make(map[string]map[string]string)
	if !v.IsSet(key) {
		return out
	}
	for outer := range v.GetStringMap(key) {
		inner := v.GetStringMapString(key + "." + outer)
		entries := make(map[string]string, len(inner))
		for k, val := range inner {
			entries[strings.ToUpper(k)] = val
		}
		out[outer] = entries
	}
	return out
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
