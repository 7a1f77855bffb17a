package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bamsammich/safecp/internal/config"
	"github.com/bamsammich/safecp/internal/engine"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

//nolint:gocyclo // main CLI entry point orchestrates all flag parsing
func run(args []string) int {
	var (
		recursive       bool
		preserve        bool
		dereference     bool
		noClobber       bool
		updateOnly      bool
		sparseThreshold int
		bufSize         int
		noAtomic        bool
		verbose         bool
		quiet           bool
		dryRun          bool
		workers         int
		bwLimitStr      string
		showVersion     bool
	)

	rootCmd := &cobra.Command{
		Use:   "safecp [flags] <source>... <destination>",
		Short: "Safer file copy with atomic replacement and sparse-hole preservation",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "safecp %s\n", version)
				return nil
			}

			sources := args[:len(args)-1]
			dst := args[len(args)-1]

			// Load the optional config file and fill flags not set on
			// the CLI.
			fileCfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
			}
			if err := applyConfigDefaults(cmd, fileCfg.Defaults,
				&bufSize, &sparseThreshold, &workers, &verbose, &bwLimitStr); err != nil {
				return err
			}

			if bufSize <= 0 {
				return fmt.Errorf("--bufsize must be positive, got %d", bufSize)
			}
			if sparseThreshold <= 0 {
				return fmt.Errorf("--sparse-threshold must be positive, got %d", sparseThreshold)
			}

			setupLogging(verbose, quiet)

			var bwLimit int64
			if bwLimitStr != "" {
				bwLimit, err = config.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			// Copying multiple sources requires an existing directory
			// destination, checked before any copy begins.
			if len(sources) > 1 {
				if info, err := os.Stat(dst); err != nil || !info.IsDir() {
					fmt.Fprintln(os.Stderr, "when copying multiple sources, destination must be a directory")
					return &exitError{code: 2}
				}
			}

			eng, err := engine.New(engine.Config{
				Recursive:       recursive,
				Preserve:        preserve,
				FollowSymlinks:  dereference,
				NoClobber:       noClobber,
				UpdateOnly:      updateOnly,
				Atomic:          !noAtomic,
				Verbose:         verbose,
				DryRun:          dryRun,
				BufferSize:      bufSize,
				SparseThreshold: sparseThreshold,
				Workers:         workers,
				BWLimit:         bwLimit,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			// An interrupt cancels the run; any temp files not yet
			// renamed into place are removed on the way out.
			defer eng.Cleanup()

			slog.Debug("starting copy",
				"sources", sources,
				"dst", dst,
				"recursive", recursive,
				"atomic", !noAtomic,
				"workers", workers,
			)

			var failures int
			for _, src := range sources {
				outcomes, err := eng.Run(ctx, src, dst)
				if err != nil {
					slog.Error("copy failed", "src", src, "dst", dst, "error", err)
					failures++
					continue
				}
				for _, o := range outcomes {
					if o.Status == engine.StatusFailed {
						failures++
					}
				}
			}

			if !quiet && !dryRun {
				snap := eng.Stats()
				fmt.Fprintf(os.Stderr, "%s in %s\n", snap, snap.Elapsed.Round(time.Millisecond))
			}

			if failures > 0 || ctx.Err() != nil {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "copy directories recursively")
	rootCmd.Flags().
		BoolVarP(&preserve, "preserve", "p", false, "preserve metadata (mode, timestamps, ownership where possible)")
	rootCmd.Flags().
		BoolVarP(&dereference, "dereference", "L", false, "follow symlinks (copy target files)")
	rootCmd.Flags().BoolVarP(&noClobber, "no-clobber", "n", false, "do not overwrite existing files")
	rootCmd.Flags().
		BoolVarP(&updateOnly, "update", "u", false, "copy only when source is newer than destination")
	rootCmd.Flags().
		IntVar(&sparseThreshold, "sparse-threshold", engine.DefaultSparseThreshold, "zero-run length that becomes a hole (bytes)")
	rootCmd.Flags().IntVar(&bufSize, "bufsize", engine.DefaultBufferSize, "buffer size for copy (bytes)")
	rootCmd.Flags().
		BoolVar(&noAtomic, "no-atomic", false, "write destinations directly instead of temp file + rename")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be copied without writing")
	rootCmd.Flags().IntVar(&workers, "workers", 1, "number of parallel file copies")
	rootCmd.Flags().StringVar(&bwLimitStr, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")

	rootCmd.SetArgs(args)
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

// setupLogging installs the default slog handler: colorized tint output on
// a terminal, plain text otherwise. -v lowers the level to Debug, which
// turns on per-file lines; -q raises it to Error.
func setupLogging(verbose, quiet bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// applyConfigDefaults applies config file defaults for flags not
// explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	bufSize *int,
	sparseThreshold *int,
	workers *int,
	verbose *bool,
	bwLimitStr *string,
) error {
	if !cmd.Flags().Changed("bufsize") && defaults.BufSize != nil {
		n, err := config.ParseSize(*defaults.BufSize)
		if err != nil {
			return fmt.Errorf("config bufsize: %w", err)
		}
		*bufSize = int(n)
	}
	if !cmd.Flags().Changed("sparse-threshold") && defaults.SparseThreshold != nil {
		n, err := config.ParseSize(*defaults.SparseThreshold)
		if err != nil {
			return fmt.Errorf("config sparse-threshold: %w", err)
		}
		*sparseThreshold = int(n)
	}
	if !cmd.Flags().Changed("workers") && defaults.Workers != nil {
		*workers = *defaults.Workers
	}
	if !cmd.Flags().Changed("verbose") && defaults.Verbose != nil {
		*verbose = *defaults.Verbose
	}
	if !cmd.Flags().Changed("bwlimit") && defaults.BWLimit != nil {
		*bwLimitStr = *defaults.BWLimit
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
