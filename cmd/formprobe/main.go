package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/formprobe/internal/email/verifier"
	"github.com/gotrs-io/formprobe/internal/formconfig"
	"github.com/gotrs-io/formprobe/internal/formpage"
	"github.com/gotrs-io/formprobe/internal/metrics"
	"github.com/gotrs-io/formprobe/internal/version"
)

// Exit codes.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	// ExitCodeCheckFailed means the run completed but an expectation failed.
	ExitCodeCheckFailed = 2
)

const defaultConfigPath = "config/form_config.yaml"

type rootOptions struct {
	configPath string
	seed       int64
	locale     string
	quiet       bool
	metricsFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "formprobe",
		Short: "End-to-end checks for web forms and the emails they send",
		Long: `formprobe fills a web form from a YAML description, checks its
validation messages, submits it and verifies the notification emails that
arrive in the configured IMAP or POP3 mailboxes.

String values in the configuration may contain {{generator[param]}}
placeholders which are replaced with generated test data on load.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "formprobe %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to the form configuration YAML")
	flags.Int64Var(&opts.seed, "seed", 0, "Seed for generated values (overrides the seed in the file)")
	flags.StringVar(&opts.locale, "locale", "", "Locale for generated values (overrides the locale in the file)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress logging")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path after each run")

	root.AddCommand(
		newResolveCmd(opts),
		newCheckMailCmd(opts),
		newValidateCmd(opts),
		newRunCmd(opts),
		newScheduleCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "formprobe %s\n", version.Full())
		},
	}
}

func (o *rootOptions) logger(cmd *cobra.Command) *log.Logger {
	if o.quiet {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "[formprobe] ", log.LstdFlags)
}

func (o *rootOptions) loadOptions(cmd *cobra.Command, logger *log.Logger) []formconfig.Option {
	out := []formconfig.Option{formconfig.WithLogger(logger)}
	if cmd.Flags().Changed("seed") {
		out = append(out, formconfig.WithSeed(o.seed))
	}
	if o.locale != "" {
		out = append(out, formconfig.WithLocale(o.locale))
	}
	return out
}

// recorder returns a metrics recorder when --metrics-file is set, nil otherwise.
func (o *rootOptions) recorder() *metrics.Recorder {
	if o.metricsFile == "" {
		return nil
	}
	return metrics.New()
}

func (o *rootOptions) flushMetrics(rec *metrics.Recorder, logger *log.Logger) {
	if err := rec.WriteTextfile(o.metricsFile); err != nil {
		logger.Printf("write metrics %s: %v", o.metricsFile, err)
	}
}

// load reads and validates the configuration file.
func (o *rootOptions) load(cmd *cobra.Command, logger *log.Logger) (*formconfig.Config, error) {
	cfg, err := formconfig.Load(o.configPath, o.loadOptions(cmd, logger)...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", o.configPath, err)
	}
	return cfg, nil
}

func exitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var mismatch *verifier.MismatchError
	var check *formpage.CheckError
	if errors.As(err, &mismatch) || errors.As(err, &check) || errors.Is(err, verifier.ErrNotFound) {
		return ExitCodeCheckFailed
	}
	return ExitCodeError
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
