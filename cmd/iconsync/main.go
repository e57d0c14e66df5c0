package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nahidhasan98/icon-sync/internal/app"
	"github.com/nahidhasan98/icon-sync/internal/changeset"
	"github.com/nahidhasan98/icon-sync/internal/config"
	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/models"
	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/validation"
)

var (
	// Set at build time
	version = "dev"
	commit  = "none"
)

// newEngine is replaced in tests
var newEngine = app.NewEngine

// options holds the global and per-command flags
type options struct {
	cfgFile   string
	logLevel  string
	logFormat string
	payload   string
	format    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "iconsync",
		Short: "Sync icon assets from a push into a target repository",
		Long: `iconsync replays a GitHub push payload against the configured target
repository. Icons under the source prefix that the push added, removed or
modified are flattened into the target output directory in a single commit.

Configuration comes from the file named by --config (or ICONSYNC_CONFIG)
and from environment variables, the same way the webhook server reads it.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "YAML config file (default $ICONSYNC_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	reduceCmd := &cobra.Command{
		Use:   "reduce",
		Short: "Print the net change set of a push without contacting any repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReduce(cmd, opts)
		},
	}

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the store operations a push would perform, without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, true)
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile a push into the target repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, false)
		},
	}

	for _, c := range []*cobra.Command{reduceCmd, planCmd, applyCmd} {
		c.Flags().StringVarP(&opts.payload, "payload", "p", "-", "push event JSON file, - for stdin")
		c.Flags().StringVar(&opts.format, "format", "text", "output format (text, json)")
		root.AddCommand(c)
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "iconsync %s (%s)\n", version, commit)
		},
	})

	return root
}

func runReduce(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	push, err := readPush(cmd.InOrStdin(), opts.payload)
	if err != nil {
		return err
	}

	cs := changeset.Reduce(push.ChangeCommits(), changeset.NewFilter(cfg.Source.Prefix))
	return writeReport(cmd.OutOrStdout(), opts.format, newReport(&reconcile.Result{ChangeSet: cs, NoOp: cs.IsEmpty(), DryRun: true}))
}

func runSync(cmd *cobra.Command, opts *options, dryRun bool) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSync(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	push, err := readPush(cmd.InOrStdin(), opts.payload)
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)

	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.Sync.Timeout)
	defer cancelTimeout()

	engine, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}

	req := reconcile.Request{Commits: push.ChangeCommits(), Source: push.SourceLocation()}

	var res *reconcile.Result
	if dryRun {
		res, err = engine.Plan(ctx, req)
	} else {
		res, err = engine.Run(ctx, req)
	}
	if res != nil {
		if werr := writeReport(cmd.OutOrStdout(), opts.format, newReport(res)); werr != nil {
			return werr
		}
	}
	return err
}

func loadConfig(opts *options) (*config.Config, error) {
	if opts.cfgFile != "" {
		os.Setenv("ICONSYNC_CONFIG", opts.cfgFile)
	}
	cfg, err := config.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func readPush(stdin io.Reader, path string) (*models.PushEvent, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var push models.PushEvent
	if err := json.Unmarshal(data, &push); err != nil {
		return nil, fmt.Errorf("invalid push payload: %w", err)
	}
	if appErr := validation.New().ValidatePushEvent(&push); appErr != nil {
		return nil, appErr
	}
	return &push, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
