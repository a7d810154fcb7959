package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"swapScope/internal/chain"
	"swapScope/internal/config"
	"swapScope/internal/metacache"
	"swapScope/internal/pricecache"
	"swapScope/internal/source"
	"swapScope/internal/storage"
	"swapScope/internal/storage/postgres"
	"swapScope/internal/swap"
)

func main() {
	root := &cobra.Command{
		Use:          "explorer",
		Short:        "Cross-chain token swap explorer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("api-key", "", "pricing API key")
	root.PersistentFlags().String("api-base-url", "", "pricing API base URL")
	root.PersistentFlags().String("metadata-source", "api", "token metadata source (api, onchain)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "optional rotating log file")

	root.AddCommand(newQuoteCmd(), newCatalogCmd(), newWatchCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil || file == "" {
		return logger, err
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxAge:     14,
		MaxBackups: 5,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.AddSync(rotator), cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

// app holds the shared components every command builds on.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	prices  *pricecache.Cache
	meta    *metacache.Cache
	quoter  *swap.Quoter
	journal *storage.Journal
	history *postgres.Store
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	priceAPI, err := source.NewAPIClient(source.APIConfig{
		BaseURL:           cfg.APIBaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.APITimeout,
		RequestsPerSecond: cfg.APIRPS,
	}, nil, logger)
	if err != nil {
		return nil, err
	}

	var metaSource source.MetadataSource = priceAPI
	if cfg.MetadataSource == "onchain" {
		clients, err := chain.DialAll(ctx, cfg.RPC)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, clients.Close)

		callers := make(map[string]source.ContractCaller, len(clients))
		for id, client := range clients {
			callers[id] = client
		}
		onchain, err := source.NewOnchainMetadata(callers, cfg.TokenAddresses, cfg.Catalog.NativeSymbols(), logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		metaSource = onchain
	}

	priceCfg := pricecache.DefaultConfig()
	priceCfg.StaleAfter = cfg.PriceStale
	priceCfg.EvictAfter = cfg.PriceEvict
	a.prices = pricecache.New(priceAPI, priceCfg, logger)

	metaCfg := metacache.DefaultConfig()
	metaCfg.StaleAfter = cfg.MetaStale
	metaCfg.EvictAfter = cfg.MetaEvict
	a.meta = metacache.New(metaSource, metaCfg, logger)

	a.quoter = swap.NewQuoter(a.prices, logger)

	if err := a.openJournal(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("explorer ready",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("metadata_source", cfg.MetadataSource),
		zap.Int("chains", len(cfg.Catalog.Chains)),
		zap.Duration("price_stale", cfg.PriceStale),
		zap.Duration("meta_stale", cfg.MetaStale),
		zap.Bool("journal", cfg.PGDSN != "" || cfg.Out != ""),
	)
	return a, nil
}

func (a *app) openJournal(ctx context.Context) error {
	switch {
	case a.cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.history = store
		a.journal = storage.NewJournal(store, a.logger)
	case a.cfg.Out != "":
		a.journal = storage.NewJournal(storage.NewJsonlStorage(a.cfg.Out), a.logger)
	}
	return nil
}

// runJanitors sweeps both caches until ctx is done.
func (a *app) runJanitors(ctx context.Context) {
	go a.prices.RunJanitor(ctx, time.Minute)
	go a.meta.RunJanitor(ctx, time.Minute)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
