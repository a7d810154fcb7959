package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapScope/internal/catalog"
	"swapScope/internal/model"
	"swapScope/internal/urlstate"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Page through the selectable token catalog",
		RunE:  runCatalog,
	}
	cmd.Flags().String("chain", "", "only list tokens on this chain id")
	cmd.Flags().String("exclude", "", "hide this token (symbol or symbol:chainId)")
	cmd.Flags().Int("pages", 0, "pages to load; 0 loads all")
	cmd.Flags().Bool("open", false, "enrich every candidate, not only the first few")
	cmd.Flags().Duration("wait", 10*time.Second, "how long to wait for lazy enrichment")
	return cmd
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	chainID, _ := cmd.Flags().GetString("chain")
	excludeRaw, _ := cmd.Flags().GetString("exclude")
	pages, _ := cmd.Flags().GetInt("pages")
	open, _ := cmd.Flags().GetBool("open")
	wait, _ := cmd.Flags().GetDuration("wait")

	if chainID != "" {
		if _, ok := cfg.Catalog.Chain(chainID); !ok {
			return fmt.Errorf("unknown chain %q", chainID)
		}
	}
	var exclude *model.Token
	if excludeRaw != "" {
		tok, ok := urlstate.DecodeToken(cfg.Catalog, excludeRaw)
		if !ok {
			return fmt.Errorf("unknown token %q", excludeRaw)
		}
		exclude = &tok
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	pager, err := catalog.NewPager(cfg.Catalog, a.meta, cfg.PageSize, logger)
	if err != nil {
		return err
	}
	window := catalog.NewWindowTracker(pager, cfg.PageSize)
	window.SetFilter(chainID, exclude)

	if _, _, err := pager.FetchNextPage(ctx); err != nil {
		return err
	}
	// Scroll the window to the end of what is loaded until the page budget runs out.
	for pages <= 0 || pager.PagesLoaded() < pages {
		end := max(len(window.Filtered())-1, 0)
		fetched, err := window.OnScroll(ctx, 0, end)
		if err != nil {
			return err
		}
		if !fetched {
			break
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "loaded %d of %d candidates in %d pages\n",
		pager.TotalLoaded(), pager.TotalCandidates(), pager.PagesLoaded())
	printTokens(out, window.Filtered())

	lazy := catalog.NewLazyList(cfg.Catalog, a.meta, cfg.InitialTokenCount)
	if open {
		lazy.Expand()
	}
	entries := awaitEntries(ctx, lazy, wait, logger)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "selector:")
	printEntries(out, entries)
	return nil
}

// awaitEntries polls the lazy list until no entry is loading or the wait elapses.
func awaitEntries(ctx context.Context, lazy *catalog.LazyList, wait time.Duration, logger *zap.Logger) []catalog.Entry {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		entries := lazy.Entries(ctx)
		loading := 0
		for _, e := range entries {
			if e.Loading {
				loading++
			}
		}
		if loading == 0 || time.Now().After(deadline) {
			if loading > 0 {
				logger.Warn("metadata still loading", zap.Int("entries", loading))
			}
			return entries
		}
		select {
		case <-ctx.Done():
			return entries
		case <-ticker.C:
		}
	}
}

func printTokens(out io.Writer, tokens []model.Token) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tCHAIN\tDECIMALS\tADDRESS")
	for _, t := range tokens {
		address := t.Address
		if address == "" {
			address = "native"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Symbol, chainLabel(t), t.DecimalsOrDefault(), address)
	}
	w.Flush()
}

func printEntries(out io.Writer, entries []catalog.Entry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tCHAIN\tNAME\tSTATUS")
	for _, e := range entries {
		status := "basic"
		switch {
		case e.Enriched:
			status = "enriched"
		case e.Loading:
			status = "loading"
		case e.Failed:
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Token.Symbol, chainLabel(e.Token), e.Token.DisplayName, status)
	}
	w.Flush()
}
