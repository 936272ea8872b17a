package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/beamsum/internal/config"
	"github.com/bamsammich/beamsum/internal/engine"
	"github.com/bamsammich/beamsum/internal/event"
	"github.com/bamsammich/beamsum/internal/filter"
	"github.com/bamsammich/beamsum/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// ruleFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to one shared list.
type ruleFlag struct {
	rules   *[]filter.Rule
	include bool
}

func (*ruleFlag) String() string { return "" }
func (*ruleFlag) Type() string   { return "string" }

func (f *ruleFlag) Set(val string) error {
	*f.rules = append(*f.rules, filter.Rule{Pattern: val, Include: f.include})
	return nil
}

// options holds every root command flag.
type options struct {
	check       string
	algo        string
	maxSize     string
	minSize     string
	bwLimit     string
	filterFile  string
	logFile     string
	manifestOut string
	journalPath string
	rules       []filter.Rule
	timeout     time.Duration
	workers     int
	recursive   bool
	verify      bool
	throughput  bool
	sidecar     bool
	journal     bool
	verbose     bool
	quiet       bool
	noProgress  bool
	showVersion bool
}

func run() int {
	var opts options
	rootCmd := newRootCmd(&opts)
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beamsum [flags] <path>...",
		Short: "Fast, parallel file digests with verification and a results journal",
		Long: `beamsum computes file digests in parallel, or verifies them against a
checksum file (--check) or per-file sidecars (--verify).

Files are split into size classes and each class is hashed by its own
pool of workers, so a few huge files never starve thousands of small ones.
Interrupt once to cancel cleanly; interrupt again to force-cancel.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion || opts.check != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(os.Stdout, "beamsum %s\n", version)
				return nil
			}
			return runBatch(cmd, opts, args)
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.StringVarP(&opts.check, "check", "c", "", "verify the files listed in checksum FILE")
	f.BoolVar(&opts.verify, "verify", false, "verify files against their sidecar digests")
	f.StringVarP(&opts.algo, "algo", "a", "", "digest algorithm: md5, sha1, sha256, sha384, sha512, blake3, xxh64")
	f.IntVarP(&opts.workers, "workers", "n", 0, "processor ceiling shared by all streams (default: usable CPUs)")
	f.BoolVarP(&opts.recursive, "recursive", "r", false, "hash directories recursively")
	f.StringVar(&opts.maxSize, "max-size", "", "exclude files larger than SIZE from the batch (e.g. 1G)")
	f.StringVar(&opts.minSize, "min-size", "", "skip files smaller than SIZE while scanning")
	f.DurationVar(&opts.timeout, "timeout", 0, "cancel any single file that takes longer than this")
	f.BoolVar(&opts.throughput, "throughput", false, "sample read throughput for the progress display")
	f.BoolVar(&opts.sidecar, "sidecar", false, "write a <file>.<algo> sidecar next to every hashed file")
	f.BoolVar(&opts.journal, "journal", false, "record every result in the SQLite journal")
	f.StringVar(&opts.journalPath, "journal-path", "", "journal database (default: $XDG_STATE_HOME/beamsum/journal.db)")
	f.StringVarP(&opts.manifestOut, "output", "o", "", "also write the digests as a checksum file to FILE")
	f.StringVar(&opts.bwLimit, "bwlimit", "", "read bandwidth limit (e.g. 100M, 1G)")
	f.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "print only digests and failures")
	f.BoolVar(&opts.noProgress, "no-progress", false, "disable progress display")

	// Filter flags use a custom pflag.Value to preserve CLI ordering.
	f.Var(&ruleFlag{rules: &opts.rules}, "exclude", "exclude files matching PATTERN (repeatable)")
	f.Var(&ruleFlag{rules: &opts.rules, include: true}, "include", "include files matching PATTERN (repeatable)")
	f.StringVar(&opts.filterFile, "filter", "", "read filter rules from FILE")
	f.VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "exclude" || fl.Name == "include" {
			fl.NoOptDefVal = ""
		}
	})
	rootCmd.MarkFlagsMutuallyExclusive("check", "verify")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	return rootCmd
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: CLI entry point wires every component together
func runBatch(cmd *cobra.Command, opts *options, args []string) error {
	// Load optional config file.
	cfg, cfgErr := config.Load()
	applyConfigDefaults(cmd, cfg.Defaults, opts)

	logger, closeLog, err := newLogger(opts.verbose, opts.quiet, opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config", "error", cfgErr)
		cfg = config.Config{}
	}

	alg, err := cfg.Algorithm()
	if err != nil {
		return err
	}
	if opts.algo != "" {
		if alg, err = engine.ParseAlgorithm(opts.algo); err != nil {
			return err
		}
	}

	policy, err := resolvePolicy(cmd, cfg, opts)
	if err != nil {
		return err
	}
	bwLimit, err := cfg.BWLimit()
	if err != nil {
		return err
	}
	if opts.bwLimit != "" {
		if bwLimit, err = filter.ParseSize(opts.bwLimit); err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}
	interval, err := cfg.Interval()
	if err != nil {
		return err
	}

	mode := engine.Create
	if opts.verify || opts.check != "" {
		mode = engine.Verify
	}
	if opts.manifestOut != "" && mode != engine.Create {
		return errors.New("--output only applies when creating digests")
	}

	// Set up context; signals are handled below so a second interrupt can
	// escalate to a force cancel.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		items    []*engine.Item
		root     string
		scanErrs int
	)
	if opts.check != "" {
		manifestAlg := engine.Algorithm("")
		if cmd.Flags().Changed("algo") {
			manifestAlg = alg
		}
		if items, err = engine.LoadManifest(opts.check, manifestAlg); err != nil {
			return err
		}
		root = filepath.Dir(opts.check)
	} else {
		chain, err := filter.Build(filter.Options{
			Rules:   opts.rules,
			File:    opts.filterFile,
			MinSize: opts.minSize,
		})
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		scanCfg := engine.ScannerConfig{
			Algorithm:    alg,
			Recursive:    opts.recursive,
			SkipSidecars: true,
		}
		// Only set filter if it has rules/size constraints.
		if !chain.Empty() {
			scanCfg.Filter = chain
		}
		var errs []error
		items, errs = engine.Expand(ctx, scanCfg, args)
		for _, e := range errs {
			logger.Error("scan", "error", e)
		}
		scanErrs = len(errs)
	}
	if len(items) == 0 {
		if scanErrs > 0 {
			return &exitError{code: 2}
		}
		logger.Warn("nothing to hash")
		return nil
	}

	var journal *engine.Journal
	if opts.journal {
		path := opts.journalPath
		if path == "" {
			path = engine.DefaultJournalPath()
		}
		if journal, err = engine.OpenJournal(path); err != nil {
			return err
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Error("close journal", "error", err)
			}
		}()
	}

	isTTY := ui.IsTTY(os.Stderr.Fd())
	presenter := ui.NewPresenter(ui.Config{
		Writer:     os.Stdout,
		ErrWriter:  os.Stderr,
		Root:       root,
		Mode:       mode,
		Width:      ui.TermWidth(os.Stderr.Fd()),
		IsTTY:      isTTY,
		Quiet:      opts.quiet,
		Verbose:    opts.verbose,
		NoProgress: opts.noProgress,
	})

	events := make(chan event.Event, 1024)
	engineCfg := engine.Config{
		Hasher:        engine.NewFileHasher(bwLimit),
		Sink:          presenter,
		Logger:        logger,
		Events:        events,
		Journal:       journal,
		Classes:       engine.DefaultClassPolicy(),
		Policy:        policy,
		Mode:          mode,
		Parallelism:   opts.workers,
		TickInterval:  interval,
		WriteSidecars: opts.sidecar && mode == engine.Create,
	}

	logger.Debug("starting batch",
		"mode", mode.String(),
		"items", len(items),
		"algorithm", alg.String(),
		"workers", opts.workers,
		"bwlimit", bwLimit,
	)

	// Presenter drains events in the background while the batch runs.
	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(events, logger)
	}()

	batch := engine.Start(ctx, engineCfg, items)
	stopSignals := handleSignals(batch, logger)
	sum := batch.Wait()
	stopSignals()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}

	if err := presenter.Report(items); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if opts.manifestOut != "" {
		if err := writeManifestFile(opts.manifestOut, items); err != nil {
			return err
		}
	}

	if !opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	if sum.Failure > 0 || sum.Outcome == engine.OutcomeCancelled || scanErrs > 0 {
		return &exitError{code: 1}
	}
	return nil
}

// handleSignals maps interrupts onto the batch: the first SIGINT or SIGTERM
// cancels it, a second one or any SIGQUIT force-cancels it. The returned
// func stops listening.
func handleSignals(batch *engine.Batch, logger *slog.Logger) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	done := make(chan struct{})

	go func() {
		interrupted := false
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				if sig == syscall.SIGQUIT || interrupted {
					n := batch.ForceCancel()
					logger.Warn("force cancelling", "signal", sig.String(), "inflight", n)
					continue
				}
				interrupted = true
				batch.Cancel()
				logger.Warn("cancelling; interrupt again to force", "signal", sig.String())
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// newLogger builds the stderr text logger, teeing a JSON log to logFile
// when one is given.
func newLogger(verbose, quiet bool, logFile string) (*slog.Logger, func(), error) {
	// Per-file results go to the report, so the stderr log starts at warn.
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	} else if quiet {
		logLevel = slog.LevelError
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	if logFile == "" {
		return slog.New(textHandler), func() {}, nil
	}

	lf, err := os.Create(logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(ui.NewMultiHandler(textHandler, jsonHandler)), func() { lf.Close() }, nil
}

// resolvePolicy merges the config file limits with flags. A flag always
// wins when it was set on the command line.
func resolvePolicy(cmd *cobra.Command, cfg config.Config, opts *options) (engine.Policy, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return policy, err
	}
	if cmd.Flags().Changed("max-size") {
		n, err := filter.ParseSize(opts.maxSize)
		if err != nil {
			return policy, fmt.Errorf("invalid --max-size: %w", err)
		}
		policy.SizeLimit = engine.SizeLimit{Enabled: true, MaxBytes: n}
	}
	if cmd.Flags().Changed("timeout") {
		if opts.timeout < 0 {
			return policy, fmt.Errorf("invalid --timeout %s", opts.timeout)
		}
		policy.Timeout = engine.Timeout{Enabled: opts.timeout > 0, Duration: opts.timeout}
	}
	if cmd.Flags().Changed("throughput") {
		policy.SampleThroughput = opts.throughput
	}
	return policy, nil
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, opts *options) {
	if !cmd.Flags().Changed("workers") && defaults.Workers != nil {
		opts.workers = *defaults.Workers
	}
	if !cmd.Flags().Changed("sidecar") && defaults.Sidecars != nil {
		opts.sidecar = *defaults.Sidecars
	}
	if !cmd.Flags().Changed("journal") && defaults.Journal != nil {
		opts.journal = *defaults.Journal
	}
	if !cmd.Flags().Changed("journal-path") && defaults.JournalPath != nil {
		opts.journalPath = *defaults.JournalPath
	}
}

// writeManifestFile writes the successful digests as a checksum file whose
// paths are relative to its own directory.
func writeManifestFile(path string, items []*engine.Item) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checksum file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close checksum file: %w", cerr)
		}
	}()
	if _, err := engine.WriteManifest(f, items, filepath.Dir(path)); err != nil {
		return fmt.Errorf("write checksum file: %w", err)
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
