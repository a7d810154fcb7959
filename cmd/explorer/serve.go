package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"swapScope/internal/api"
	"swapScope/internal/metrics"
	"swapScope/internal/refresh"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve quotes, the token catalog and explorer sessions over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "listen address")
	cmd.Flags().StringSlice("allowed-origins", nil, "CORS allowed origins")
	cmd.Flags().Int("rate-per-minute", 100, "requests per minute per client IP; 0 disables")
	cmd.Flags().Duration("refresh-interval", 60*time.Second, "session auto-refresh interval")
	cmd.Flags().Int("page-size", 3, "catalog page size")
	cmd.Flags().Int("initial-token-count", 3, "tokens enriched before the selector is opened")
	cmd.Flags().String("out", "", "append quotes to a jsonl file")
	cmd.Flags().String("pg-dsn", "", "record quotes in postgres")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register(nil)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.runJanitors(ctx)

	rc := refresh.DefaultConfig()
	rc.Interval = cfg.RefreshSeconds()

	deps := api.Deps{
		Quoter:            a.quoter,
		Metadata:          a.meta,
		Catalog:           cfg.Catalog,
		PageSize:          cfg.PageSize,
		InitialTokenCount: cfg.InitialTokenCount,
		Refresh:           rc,
		Journal:           a.journal,
		Logger:            logger,
	}
	if a.history != nil {
		deps.History = a.history
	}

	server, err := api.NewServer(api.ServerConfig{
		Address:        cfg.Listen,
		AllowedOrigins: cfg.AllowedOrigins,
		RatePerMinute:  cfg.RatePerMinute,
	}, deps)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}
