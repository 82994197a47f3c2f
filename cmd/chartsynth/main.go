package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"chartsynth/internal/bindings"
	"chartsynth/internal/config"
	"chartsynth/internal/guard"
	"chartsynth/internal/source"
	"chartsynth/internal/synth"
	"chartsynth/internal/vdom"
)

var (
	// Global flags
	verbose      bool
	configPath   string
	declaredName string

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chartsynth",
	Short: "chartsynth - dynamic chart component synthesis engine",
	Long: `chartsynth turns generated chart component source into a mounted,
fault-isolated component tree.

The pipeline sanitizes the source, rewrites its markup dialect into plain
call expressions, evaluates the result in a sandboxed interpreter whose only
visible scope is the chart binding table, resolves the component, and mounts
it. Every failure surfaces as a structured diagnostic instead of a crash.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Logging.Development {
			zcfg = zap.NewDevelopmentConfig()
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(parsed)
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// renderCmd synthesizes one source file and prints the mounted tree.
var renderCmd = &cobra.Command{
	Use:   "render [source-file]",
	Short: "Synthesize a generated component source once and print the result",
	Long: `Reads a generated component source file, runs the full synthesis
pipeline, and prints either the mounted component tree or the failure
diagnostic. The declared component name defaults to the file's base name.

Example:
  chartsynth render sales_chart.src --name SalesChart`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

// watchCmd re-synthesizes a source file every time it changes.
var watchCmd = &cobra.Command{
	Use:   "watch [source-file]",
	Short: "Watch a source file and re-synthesize on every change",
	Long: `Watches the source file and issues a fresh synthesis request on
every write. Rapid saves supersede in-flight attempts: only the outcome for
the newest content is ever committed.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "chartsynth.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&declaredName, "name", "", "declared component name (default: source file base name)")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newSynthesizer wires the binding table and pipeline from config.
func newSynthesizer() (*synth.Synthesizer, error) {
	timeout, err := cfg.ExecTimeout()
	if err != nil {
		return nil, err
	}
	table := bindings.New(func(event string, payload any) {
		logger.Info("dashboard event", zap.String("event", event), zap.Any("payload", payload))
	})
	return synth.New(table, synth.Config{
		ExecTimeout:    timeout,
		MaxSourceBytes: cfg.Executor.MaxSourceBytes,
	}, logger), nil
}

func nameForFile(path string) string {
	if declaredName != "" {
		return declaredName
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readSource(path string) (source.Generated, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return source.Generated{}, fmt.Errorf("read source: %w", err)
	}
	return source.Generated{Code: string(data), DeclaredName: nameForFile(path)}, nil
}

func printOutcome(out guard.Outcome) {
	switch out.Phase {
	case guard.PhaseRendering:
		fmt.Print(vdom.Format(out.Tree))
	case guard.PhaseSynthesisFailed, guard.PhaseRenderFailed:
		fmt.Printf("%s: %s\n", out.Diagnostic.Kind, out.Diagnostic.Message)
		if out.Diagnostic.SourceExcerpt != "" {
			fmt.Printf("  near: %s\n", out.Diagnostic.SourceExcerpt)
		}
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	s, err := newSynthesizer()
	if err != nil {
		return err
	}
	src, err := readSource(args[0])
	if err != nil {
		return err
	}

	holder := s.NewHolder(nil)
	holder.Request(cmd.Context(), src)
	holder.Wait()

	out := holder.Outcome()
	printOutcome(out)
	if out.Phase.Failed() {
		os.Exit(1)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := newSynthesizer()
	if err != nil {
		return err
	}
	path := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	holder := s.NewHolder(func(out guard.Outcome) {
		if out.Phase == guard.PhaseSynthesizing {
			return
		}
		printOutcome(out)
	})

	// Initial synthesis before the first change arrives.
	src, err := readSource(path)
	if err != nil {
		return err
	}
	holder.Request(ctx, src)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops
	// direct file watches.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	const debounce = 200 * time.Millisecond
	var lastEvent time.Time

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if time.Since(lastEvent) < debounce {
					continue
				}
				lastEvent = time.Now()

				src, err := readSource(path)
				if err != nil {
					logger.Warn("re-read failed", zap.Error(err))
					continue
				}
				logger.Debug("source changed, re-synthesizing")
				holder.Request(ctx, src)
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warn("watcher error", zap.Error(err))
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	holder.Wait()
	return nil
}
