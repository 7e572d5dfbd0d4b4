// rebuild-rollups rebuilds the persisted rollup snapshots once and prints
// the resulting slice status. It reads the same configuration as the
// server.
//
// Usage: go run ./cmd/rebuild-rollups [-window=<window>] [-min-size=<n>] [-json]
//
// Without -window every configured slice is rebuilt. -min-size narrows the
// rebuild to one field size threshold and requires -window.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/sam-warren/cedhtools/internal/app"
	"github.com/sam-warren/cedhtools/internal/rollup"
)

func main() {
	os.Exit(run())
}

func run() int {
	windowFlag := flag.String("window", "", "Rebuild only this window (1m, 3m, 6m, 1y, since_ban, all)")
	minSize := flag.Int("min-size", -1, "Rebuild only this minimum field size (requires -window)")
	asJSON := flag.Bool("json", false, "Print the slice status as JSON")
	flag.Parse()

	if *minSize >= 0 && *windowFlag == "" {
		fmt.Fprintln(os.Stderr, "-min-size requires -window")
		return 2
	}

	var (
		refresher *rollup.Refresher
		db        *gorm.DB
		logger    zerolog.Logger
	)
	fxApp := fx.New(
		app.Core,
		fx.NopLogger,
		fx.Populate(&refresher, &db, &logger),
	)
	if err := fxApp.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		return 1
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := refresher.Warm(ctx); err != nil {
		logger.Warn().Err(err).Msg("some slices could not be warmed")
	}

	targets, err := selectSlices(refresher.Slices(), *windowFlag, *minSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	start := time.Now()
	err = refresher.RefreshSlices(ctx, targets...)
	logger.Info().
		Int("slices", len(targets)).
		Dur("duration", time.Since(start)).
		Msg("rollup rebuild finished")

	if err := printStatus(refresher.Status(), *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "failed to print status: %v\n", err)
	}

	if err != nil {
		logger.Error().Err(err).Msg("rollup rebuild finished with errors")
		return 1
	}
	return 0
}

func selectSlices(all []rollup.Slice, windowName string, minSize int) ([]rollup.Slice, error) {
	if windowName == "" {
		return all, nil
	}
	window, err := rollup.ParseWindow(windowName)
	if err != nil {
		return nil, err
	}

	var out []rollup.Slice
	for _, s := range all {
		if s.Window == window && (minSize < 0 || s.MinFieldSize == minSize) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: window=%s min-size=%d", rollup.ErrUnknownSlice, window, minSize)
	}
	return out, nil
}

func printStatus(status []rollup.SliceStatus, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WINDOW\tMIN SIZE\tVERSION\tCOMMANDERS\tCARD ROWS\tBUILT AT\tERROR")
	for _, st := range status {
		builtAt := "-"
		if !st.BuiltAt.IsZero() {
			builtAt = st.BuiltAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			st.Window, st.MinFieldSize, st.Version, st.Commanders, st.CardRows, builtAt, st.LastError)
	}
	return w.Flush()
}
