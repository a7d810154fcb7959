package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapScope/internal/refresh"
	"swapScope/internal/swap"
	"swapScope/internal/urlstate"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a quote up to date with the auto-refresh countdown",
		Long: "Keep a quote up to date with the auto-refresh countdown.\n\n" +
			"Commands read from stdin: r refreshes now, s swaps source and target, q quits.",
		RunE: runWatch,
	}
	cmd.Flags().String("amount", "", "USD amount")
	cmd.Flags().String("from", "", "source token (symbol or symbol:chainId)")
	cmd.Flags().String("to", "", "target token (symbol or symbol:chainId)")
	cmd.Flags().Duration("refresh-interval", 60*time.Second, "auto-refresh interval")
	cmd.Flags().String("state-file", "", "persist the selection between runs")
	cmd.Flags().String("out", "", "append quotes to a jsonl file")
	cmd.Flags().String("pg-dsn", "", "record quotes in postgres")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.runJanitors(ctx)

	var store *urlstate.FileStore
	if cfg.StateFile != "" {
		store = urlstate.NewFileStore(cfg.StateFile)
	}
	query, err := initialQuery(cmd, store)
	if err != nil {
		return err
	}

	rc := refresh.DefaultConfig()
	rc.Interval = cfg.RefreshSeconds()
	session := swap.NewSession(a.quoter, cfg.Catalog, rc, logger)
	defer session.Close()

	updates := make(chan swap.Snapshot, 1)
	cancel := session.Subscribe(func(snap swap.Snapshot) {
		// Keep only the latest snapshot; the printer catches up on the next one.
		select {
		case updates <- snap:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- snap:
			default:
			}
		}
	})
	defer cancel()

	session.Restore(ctx, query, a.meta)

	commands := make(chan string)
	go readCommands(cmd.InOrStdin(), commands)

	p := &watchPrinter{out: cmd.OutOrStdout()}
	p.print(session.Snapshot())
	lastMirror := ""

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case line, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			switch line {
			case "r":
				if !session.Refresh() {
					fmt.Fprintln(p.out, "nothing to refresh")
				}
			case "s":
				if !session.SwapTokens() {
					fmt.Fprintln(p.out, "select both tokens to swap")
				}
			case "q":
				return nil
			}
		case snap := <-updates:
			if p.print(snap) && snap.Status == swap.StatusReady && snap.Result != nil {
				if err := a.journal.Append(ctx, *snap.Result); err != nil {
					logger.Warn("journal quote failed", zap.Error(err))
				}
			}
			if store != nil && snap.Mirror != lastMirror {
				if err := store.Save(snap.Mirror); err != nil {
					logger.Warn("save selection failed", zap.Error(err))
				} else {
					lastMirror = snap.Mirror
				}
			}
		}
	}
}

// initialQuery prefers explicit flags over a persisted selection.
func initialQuery(cmd *cobra.Command, store *urlstate.FileStore) (string, error) {
	if cmd.Flags().Changed("amount") || cmd.Flags().Changed("from") || cmd.Flags().Changed("to") {
		v := url.Values{}
		for _, key := range []string{urlstate.KeyAmount, urlstate.KeyFrom, urlstate.KeyTo} {
			if raw, _ := cmd.Flags().GetString(key); raw != "" {
				v.Set(key, raw)
			}
		}
		return v.Encode(), nil
	}
	if store == nil {
		return "", nil
	}
	query, _, err := store.Load()
	if err != nil {
		return "", fmt.Errorf("load selection: %w", err)
	}
	return query, nil
}

func readCommands(in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		out <- strings.ToLower(strings.TrimSpace(scanner.Text()))
	}
}

type watchPrinter struct {
	out        io.Writer
	status     swap.Status
	result     *swapResultKey
	lastTicked time.Time
}

type swapResultKey struct {
	source, target float64
	sourceAt       int64
	targetAt       int64
}

// print writes the snapshot when something a reader cares about changed and
// reports whether a new result was shown.
func (p *watchPrinter) print(snap swap.Snapshot) bool {
	var key *swapResultKey
	if snap.Result != nil {
		key = &swapResultKey{
			source:   snap.Result.Calculation.SourceAmount,
			target:   snap.Result.Calculation.TargetAmount,
			sourceAt: snap.Result.SourcePrice.FetchedAtMs,
			targetAt: snap.Result.TargetPrice.FetchedAtMs,
		}
	}
	newResult := key != nil && (p.result == nil || *p.result != *key)

	if snap.Status != p.status {
		p.status = snap.Status
		switch snap.Status {
		case swap.StatusError:
			fmt.Fprintf(p.out, "[%s] %s\n", snap.Status, snap.Error)
		case swap.StatusEmpty:
			fmt.Fprintf(p.out, "[%s] no quote for this selection\n", snap.Status)
		default:
			fmt.Fprintf(p.out, "[%s] %s\n", snap.Status, snap.Mirror)
		}
	}
	if newResult {
		p.result = key
		printQuote(p.out, *snap.Result)
	}
	if !snap.Refreshing && snap.Countdown > 0 && snap.Countdown%10 == 0 && time.Since(p.lastTicked) > time.Second {
		p.lastTicked = time.Now()
		fmt.Fprintf(p.out, "refresh in %ds\n", snap.Countdown)
	}
	return newResult
}
