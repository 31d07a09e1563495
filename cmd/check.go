package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jvanderlaan/branchscan/internal/config"
	"github.com/jvanderlaan/branchscan/internal/fetcher"
	"github.com/jvanderlaan/branchscan/internal/metrics"
	"github.com/jvanderlaan/branchscan/internal/proxy"
	"github.com/jvanderlaan/branchscan/internal/runner"
	"github.com/jvanderlaan/branchscan/internal/store"
	"github.com/jvanderlaan/branchscan/internal/worklist"
)

type checkFlags struct {
	input           string
	startIndex      int
	endIndex        int
	retryFailed     bool
	retryNoBranches bool
}

// newCheckCmd creates the 'check' subcommand: the batch run itself.
func newCheckCmd() *cobra.Command {
	flags := &checkFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Runs the fetch-classify batch over a CSV work sequence",
		Long: `Walks the input CSV in order, skipping identifiers already stored in
the outcome database, and checks the rest against the registry. Stops
on rate-limit exhaustion or a dead browser session, logging the index
to resume from.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "CSV file with kvk_number and company_name columns")
	cmd.Flags().IntVar(&flags.startIndex, "start-index", 0, "zero-based index to resume from")
	cmd.Flags().IntVar(&flags.endIndex, "end-index", -1, "zero-based index to stop after (-1 for unbounded)")
	cmd.Flags().BoolVar(&flags.retryFailed, "retry-failed", false, "reprocess identifiers stored as failed")
	cmd.Flags().BoolVar(&flags.retryNoBranches, "retry-no-branches", false, "reprocess identifiers stored as negative")

	return cmd
}

func runCheck(cmd *cobra.Command, flags *checkFlags) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	applyCheckFlags(cmd, flags, &cfg)

	if cfg.Input.CSVPath == "" {
		return fmt.Errorf("no input: set --input or input.csv_path")
	}

	metrics.Init()
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr, logger)
	}

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("close store", zap.Error(cerr))
		}
	}()

	seq, err := worklist.Open(cfg.Input.CSVPath)
	if err != nil {
		return err
	}
	defer func() { _ = seq.Close() }()

	pool := proxy.NewPool(
		&proxy.ListSource{URL: cfg.Proxy.SourceURL, UserAgent: cfg.Fetch.UserAgent},
		proxy.Config{
			TargetURL:       cfg.Fetch.BaseURL,
			RefreshInterval: cfg.Proxy.RefreshInterval(),
			ProbeTimeout:    cfg.Proxy.ProbeTimeout(),
			Workers:         cfg.Proxy.Workers,
			MinEndpoints:    cfg.Proxy.MinEndpoints,
		},
		logger.Named("proxy"),
	)

	checker := fetcher.New(pool, fetcher.Config{
		BaseURL:     cfg.Fetch.BaseURL,
		UserAgent:   cfg.Fetch.UserAgent,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		NavTimeout:  cfg.Fetch.NavTimeout(),
		SettleDelay: cfg.Fetch.SettleDelay(),
	}, logger.Named("fetcher"))
	defer checker.Close()

	driver := runner.New(st, checker, runner.Config{
		StartIndex:      cfg.Run.StartIndex,
		EndIndex:        cfg.Run.EndIndex,
		RetryFailed:     cfg.Run.RetryFailed,
		RetryNoBranches: cfg.Run.RetryNoBranches,
		ChecksPerSecond: cfg.Run.ChecksPerSecond,
	}, logger.Named("runner"))

	if _, err := driver.Run(cmd.Context(), seq); err != nil {
		return err
	}
	return nil
}

// applyCheckFlags lets explicit flags override the loaded config.
func applyCheckFlags(cmd *cobra.Command, flags *checkFlags, cfg *config.Config) {
	if cmd.Flags().Changed("input") {
		cfg.Input.CSVPath = flags.input
	}
	if cmd.Flags().Changed("start-index") {
		cfg.Run.StartIndex = flags.startIndex
	}
	if cmd.Flags().Changed("end-index") {
		cfg.Run.EndIndex = flags.endIndex
	}
	if cmd.Flags().Changed("retry-failed") {
		cfg.Run.RetryFailed = flags.retryFailed
	}
	if cmd.Flags().Changed("retry-no-branches") {
		cfg.Run.RetryNoBranches = flags.retryNoBranches
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	if cfg.DB.DSN != "" {
		st, err = store.NewPostgres(ctx, cfg.DB.DSN)
	} else {
		st, err = store.NewSQLite(cfg.DB.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	logger.Info("metrics listener starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, metrics.Router()); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
