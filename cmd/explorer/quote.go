package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapScope/internal/format"
	"swapScope/internal/model"
	"swapScope/internal/urlstate"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a USD amount as source and target token amounts",
		RunE:  runQuote,
	}
	cmd.Flags().String("amount", "", "USD amount")
	cmd.Flags().String("from", "", "source token (symbol or symbol:chainId)")
	cmd.Flags().String("to", "", "target token (symbol or symbol:chainId)")
	cmd.Flags().String("out", "", "append quotes to a jsonl file")
	cmd.Flags().String("pg-dsn", "", "record quotes in postgres")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	amount := urlstate.ValidateAmount(cfg.Amount)
	if amount == "" {
		return fmt.Errorf("invalid --amount %q", cfg.Amount)
	}
	usd, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	source, ok := urlstate.DecodeToken(cfg.Catalog, cfg.From)
	if !ok {
		return fmt.Errorf("unknown source token %q", cfg.From)
	}
	target, ok := urlstate.DecodeToken(cfg.Catalog, cfg.To)
	if !ok {
		return fmt.Errorf("unknown target token %q", cfg.To)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	source = a.meta.FetchOne(ctx, source)
	target = a.meta.FetchOne(ctx, target)

	quote, err := a.quoter.Quote(ctx, usd, &source, &target)
	if err != nil {
		return err
	}
	if quote == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "no quote available")
		return nil
	}

	printQuote(cmd.OutOrStdout(), *quote)
	if err := a.journal.Append(ctx, *quote); err != nil {
		logger.Warn("journal quote failed", zap.Error(err))
	}
	return nil
}

func printQuote(out io.Writer, q model.Quote) {
	calc := q.Calculation
	fmt.Fprintf(out, "%s USD\n", format.USD(calc.USDAmount))
	fmt.Fprintf(out, "  %s %s on %s (@ $%s)\n",
		format.TokenAmountFor(calc.SourceAmount, calc.SourceToken), calc.SourceToken.Symbol,
		chainLabel(calc.SourceToken), format.USD(q.SourcePrice.UnitPriceUSD))
	fmt.Fprintf(out, "  %s %s on %s (@ $%s)\n",
		format.TokenAmountFor(calc.TargetAmount, calc.TargetToken), calc.TargetToken.Symbol,
		chainLabel(calc.TargetToken), format.USD(q.TargetPrice.UnitPriceUSD))
}

func chainLabel(t model.Token) string {
	if t.ChainDisplayName != "" {
		return t.ChainDisplayName
	}
	return t.ChainID
}
