// Package main provides the CLI entry point for ycsbkv, a YCSB-style
// benchmark driver comparing embedded key-value engines.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/weiihann/ycsbkv/backend"
	"github.com/weiihann/ycsbkv/bench"
	"github.com/weiihann/ycsbkv/harness"
	"github.com/weiihann/ycsbkv/report"
	"github.com/weiihann/ycsbkv/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	root := newRootCmd(logger, level)
	if err := root.Execute(); err != nil {
		logger.Error("ycsbkv failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "ycsbkv",
		Short: "YCSB benchmark driver for embedded key-value engines",
		Long: `ycsbkv replays the same deterministic YCSB workload against several
embedded key-value engines, one after another, and reports load and run
throughput for each.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log every dispatched operation")

	root.AddCommand(
		newRunCmd(logger, &verbose),
		newExecCmd(logger, &verbose),
		newTraceCmd(logger),
		newBackendsCmd(),
	)

	return root
}

// engineFlags are the per-engine settings shared by run and exec.
type engineFlags struct {
	fsync       bool
	compression string
	latency     bool
}

func (f *engineFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.fsync, "fsync", false,
		"Make every write durable before it returns")
	flags.StringVar(&f.compression, "compression", "none",
		"Value compression for engines that support it: none, snappy, zstd")
	flags.BoolVar(&f.latency, "latency", false,
		"Record per-call latency histograms")
}

func (f engineFlags) options() backend.Options {
	return backend.Options{Fsync: f.fsync, Compression: f.compression}
}

// args renders the flags for an exec child.
func (f engineFlags) args(verbose bool) []string {
	var args []string
	if f.fsync {
		args = append(args, "--fsync")
	}
	if f.compression != "" {
		args = append(args, "--compression", f.compression)
	}
	if f.latency {
		args = append(args, "--latency")
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}

type runConfig struct {
	workloadPath string
	dataDir      string
	backends     []string
	format       string
	isolate      bool
	dropCaches   bool
	timeout      time.Duration
	verbose      bool
	engine       engineFlags
}

func newRunCmd(logger *slog.Logger, verbose *bool) *cobra.Command {
	cfg := runConfig{}

	cmd := &cobra.Command{
		Use:   "run <workload> <data-dir>",
		Short: "Benchmark engines with a workload spec",
		Long: `Load and run the workload against each engine in turn. Every engine
gets its own directory under <data-dir>, which must be empty or missing.
A tab-separated table is printed to stdout as each phase completes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.workloadPath = args[0]
			cfg.dataDir = args[1]
			cfg.verbose = *verbose

			return runBenchmark(cmd.Context(), logger, cmd.OutOrStdout(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&cfg.backends, "backends", backend.DefaultComparison(),
		"Engines to benchmark, in order (see `ycsbkv backends`)")
	flags.StringVar(&cfg.format, "format", "tsv",
		"Output: tsv (phase tables only), markdown or json (comparison at the end)")
	flags.BoolVar(&cfg.isolate, "isolate", false,
		"Run each engine in its own child process")
	flags.BoolVar(&cfg.dropCaches, "drop-caches", false,
		"Drop the OS page cache between engines (linux, needs root)")
	flags.DurationVar(&cfg.timeout, "timeout", 0,
		"Per-engine time limit with --isolate (0 = none)")
	cfg.engine.register(cmd)

	return cmd
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	out io.Writer,
	cfg runConfig,
) error {
	if err := checkFormat(cfg.format); err != nil {
		return err
	}
	if err := checkBackends(cfg.backends); err != nil {
		return err
	}

	wl, err := workload.LoadConfig(cfg.workloadPath)
	if err != nil {
		return err
	}

	if err := prepareDataDir(cfg.dataDir); err != nil {
		return err
	}

	runID := uuid.NewString()

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("run_id", runID),
		slog.String("workload", cfg.workloadPath),
		slog.Int("records", wl.RecordCount),
		slog.Int("operations", wl.OperationCount),
		slog.Int("sync_interval_ms", wl.SyncIntervalMs),
		slog.Any("backends", cfg.backends),
	)

	tables := out
	if cfg.format != "tsv" {
		tables = io.Discard
	}

	results := make([]report.Result, 0, len(cfg.backends))

	for _, name := range cfg.backends {
		var result report.Result

		if cfg.isolate {
			result, err = runIsolated(ctx, logger, name, cfg)
			if err == nil {
				err = writeTables(tables, result)
			}
		} else {
			dir := filepath.Join(cfg.dataDir, name)
			result, err = benchmarkBackend(logger, name, dir, wl, cfg.engine, cfg.verbose, tables)
		}
		if err != nil {
			return err
		}

		result.RunID = runID
		result.Workload = filepath.Base(cfg.workloadPath)
		results = append(results, result)

		if cfg.dropCaches {
			if err := dropCaches(); err != nil {
				logger.WarnContext(ctx, "failed to drop page cache",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	switch cfg.format {
	case "markdown":
		if err := report.Generate(out, results); err != nil {
			return errors.Wrap(err, "generate report")
		}
	case "json":
		if err := report.GenerateJSON(out, results); err != nil {
			return errors.Wrap(err, "generate JSON report")
		}
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func runIsolated(
	ctx context.Context,
	logger *slog.Logger,
	name string,
	cfg runConfig,
) (report.Result, error) {
	self, err := os.Executable()
	if err != nil {
		return report.Result{}, errors.Wrap(err, "locate executable")
	}

	runner := harness.NewRunner(name, self, cfg.engine.args(cfg.verbose), nil, logger)

	result, err := runner.Run(ctx, harness.RunConfig{
		WorkloadPath: cfg.workloadPath,
		DBDir:        cfg.dataDir,
		Timeout:      cfg.timeout,
	})
	if err != nil {
		return report.Result{}, errors.Wrapf(err, "run %s", name)
	}

	return *result, nil
}

// benchmarkBackend loads and runs one engine in dir with a fresh
// generator, writing each phase table to tables as soon as it is known.
func benchmarkBackend(
	logger *slog.Logger,
	name, dir string,
	wl workload.Config,
	flags engineFlags,
	verbose bool,
	tables io.Writer,
) (report.Result, error) {
	e, err := backend.Open(name, dir, flags.options())
	if err != nil {
		return report.Result{}, err
	}

	gen := workload.NewGenerator(wl)
	d := bench.New(e, gen,
		bench.WithLogger(logger),
		bench.WithLatency(flags.latency),
		bench.WithVerbose(verbose),
	)

	result := report.Result{Backend: name}

	result.Load, err = d.Load(gen.RecordCount())
	if err != nil {
		e.Close()
		return report.Result{}, err
	}
	if err := writePhase(tables, result.Load); err != nil {
		e.Close()
		return report.Result{}, err
	}

	result.Run, err = d.Run(gen.OperationCount(), wl.SyncIntervalMs)
	if err != nil {
		e.Close()
		return report.Result{}, err
	}
	if err := writePhase(tables, result.Run); err != nil {
		e.Close()
		return report.Result{}, err
	}

	if err := e.Close(); err != nil {
		return report.Result{}, errors.Wrapf(err, "close %s", name)
	}

	result.DBSizeBytes, err = harness.DirSize(dir)
	if err != nil {
		logger.Warn("failed to measure db size",
			slog.String("backend", name),
			slog.String("error", err.Error()),
		)
	}

	return result, nil
}

func writePhase(w io.Writer, s report.Summary) error {
	if err := report.WritePhase(w, s); err != nil {
		return err
	}
	return report.WriteLatency(w, s)
}

func writeTables(w io.Writer, r report.Result) error {
	if err := writePhase(w, r.Load); err != nil {
		return err
	}
	return writePhase(w, r.Run)
}

func newExecCmd(logger *slog.Logger, verbose *bool) *cobra.Command {
	var (
		name         string
		dbDir        string
		workloadPath string
		engine       engineFlags
	)

	cmd := &cobra.Command{
		Use:    "exec",
		Short:  "Benchmark a single engine and print its result as JSON",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkBackends([]string{name}); err != nil {
				return err
			}

			wl, err := workload.LoadConfig(workloadPath)
			if err != nil {
				return err
			}

			result, err := benchmarkBackend(logger, name, dbDir, wl, engine, *verbose, io.Discard)
			if err != nil {
				return err
			}

			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "backend", "", "Engine to benchmark")
	flags.StringVar(&dbDir, "db", "", "Engine directory")
	flags.StringVar(&workloadPath, "workload", "", "Workload spec file")
	engine.register(cmd)

	for _, f := range []string{"backend", "db", "workload"} {
		_ = cmd.MarkFlagRequired(f)
	}

	return cmd
}

func newTraceCmd(logger *slog.Logger) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "trace <workload>",
		Short: "Write the operation sequence of a workload as JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := workload.LoadConfig(args[0])
			if err != nil {
				return err
			}

			summary, err := writeTrace(cmd.OutOrStdout(), output, wl)
			if err != nil {
				return err
			}

			logger.Info("workload traced",
				slog.Int("operations", summary.TotalOperations),
				slog.Int("loaded", summary.Loaded),
				slog.Int("reads", summary.Reads),
				slog.Int("updates", summary.Updates),
				slog.Int("inserts", summary.Inserts),
				slog.Int("scans", summary.Scans),
				slog.Int("read_modify_writes", summary.ReadModifyWrites),
			)

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

// writeTrace traces wl to stdout, or to path when it is set.
func writeTrace(stdout io.Writer, path string, wl workload.Config) (workload.Summary, error) {
	if path == "" {
		return workload.Trace(stdout, workload.NewGenerator(wl))
	}

	f, err := os.Create(path)
	if err != nil {
		return workload.Summary{}, errors.Wrap(err, "create trace file")
	}

	summary, err := workload.Trace(f, workload.NewGenerator(wl))
	if err != nil {
		f.Close()
		return workload.Summary{}, err
	}

	if err := f.Close(); err != nil {
		return workload.Summary{}, errors.Wrapf(err, "close trace file %s", path)
	}

	return summary, nil
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the engines compiled into this binary",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range backend.Known() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func checkFormat(format string) error {
	switch format {
	case "tsv", "markdown", "json":
		return nil
	}
	return errors.Errorf("unknown format %q (want tsv, markdown or json)", format)
}

func checkBackends(names []string) error {
	if len(names) == 0 {
		return errors.New("at least one backend must be specified via --backends")
	}

	known := backend.Known()
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		if !slices.Contains(known, name) {
			return errors.Errorf("unknown backend %q (known: %s)", name, strings.Join(known, ", "))
		}
		if seen[name] {
			return errors.Errorf("backend %q listed twice", name)
		}
		seen[name] = true
	}

	return nil
}

// prepareDataDir creates dir when missing and refuses one that already
// holds anything.
func prepareDataDir(dir string) error {
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		return errors.Wrapf(os.MkdirAll(dir, 0o755), "create data dir %s", dir)
	case err != nil:
		return errors.Wrapf(err, "read data dir %s", dir)
	case len(entries) > 0:
		return errors.Errorf("%s appears to be non-empty", dir)
	}

	return nil
}
