package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/database"
	"github.com/smukkama/prayer-times/internal/logging"
	"github.com/smukkama/prayer-times/internal/pipeline"
	"github.com/smukkama/prayer-times/internal/prayer"
	"github.com/smukkama/prayer-times/internal/render"
	"github.com/smukkama/prayer-times/pkg/config"
)

var (
	// Global flags
	year        int
	month       int
	concurrency int
	verbose     bool
	timeout     time.Duration

	// Build flags
	summary bool
	publish bool
	persist bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "prayercal",
	Short: "Compare a month of prayer times across three sources",
	Long: `prayercal builds one calendar month of the five daily prayer times as
published by the Kemenag schedule and as computed by two local methods, and
prints them side by side with one row per day.

A source that fails on a day is shown as n/a for that day only.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("year") {
			cfg.Calendar.Year = year
		}
		if cmd.Flags().Changed("month") {
			cfg.Calendar.Month = month
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Calendar.Concurrency = concurrency
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = logging.New(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runBuild,
}

// historyCmd renders a month stored by earlier runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Render a month stored in PostgreSQL",
	Long: `Reads the daily results persisted by earlier runs (prayercal --persist or the
dbwriter service) and renders them without contacting any source.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&year, "year", 0, "Year to build (default: current year)")
	rootCmd.PersistentFlags().IntVar(&month, "month", 0, "Month to build, 1-12 (default: current month)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout")

	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "Days processed at once")
	rootCmd.Flags().BoolVar(&summary, "summary", false, "Print the divergence of each local method from the remote schedule")
	rootCmd.Flags().BoolVar(&publish, "publish", false, "Publish the month to Kafka")
	rootCmd.Flags().BoolVar(&persist, "persist", false, "Store the month in PostgreSQL")

	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// runBuild builds the selected month and prints it
func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	opts := pipeline.Options{
		Publish: publish || cfg.Kafka.Publish,
		Persist: persist || cfg.Database.Persist,
	}

	p, err := pipeline.New(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	y, m := cfg.Calendar.Resolve(time.Now().In(p.Location()))
	run, err := p.BuildMonth(ctx, y, m)
	if run == nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d (%s)\n", m, y, strings.Join(sourceLabels(run.Sequence.Sources), ", "))
	fmt.Fprintln(out, render.Render(run.Sequence))
	if summary {
		fmt.Fprintln(out, render.RenderDivergence(render.Divergence(run.Sequence)))
	}

	logger.Info("Run complete",
		zap.String("run_id", run.ID),
		zap.Int("failed_cells", run.Sequence.FailedCells()))

	return err
}

// runHistory renders a stored month
func runHistory(cmd *cobra.Command, args []string) error {
	loc, err := cfg.Location.LoadLocation()
	if err != nil {
		return err
	}
	y, m := cfg.Calendar.Resolve(time.Now().In(loc))
	if err := prayer.ValidateMonth(y, m); err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.GetMonth(cfg.Location.CityID, y, m)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no stored results for %s %d at location %s", m, y, cfg.Location.CityID)
	}

	seq, err := database.AssembleMonth(rows, y, m, loc, storedSources(rows))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), render.Render(seq))
	return nil
}

// storedSources lists the sources found in rows, the default ones first
func storedSources(rows []*database.DailyResult) []prayer.SourceName {
	seen := make(map[prayer.SourceName]bool)
	for _, r := range rows {
		seen[prayer.SourceName(r.Source)] = true
	}

	var names []prayer.SourceName
	for _, name := range prayer.DefaultSources {
		if seen[name] {
			names = append(names, name)
			delete(seen, name)
		}
	}
	for _, r := range rows {
		name := prayer.SourceName(r.Source)
		if seen[name] {
			names = append(names, name)
			delete(seen, name)
		}
	}
	return names
}

func sourceLabels(names []prayer.SourceName) []string {
	labels := make([]string, len(names))
	for i, n := range names {
		labels[i] = string(n)
	}
	return labels
}
