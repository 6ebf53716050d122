package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/formprobe/internal/formconfig"
	"github.com/gotrs-io/formprobe/internal/formpage"
	"github.com/gotrs-io/formprobe/internal/metrics"
	"github.com/gotrs-io/formprobe/internal/schedule"
)

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var output string
	var watch bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the configuration with every placeholder expanded",
		Long: `resolve prints the configuration with every placeholder expanded. The
output is not validated, so half-written configurations can be previewed.
With --watch the file is resolved again after every save.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadOpts := opts.loadOptions(cmd, opts.logger(cmd))
			write := func(cfg *formconfig.Config) error {
				if output == "" {
					_, err := cmd.OutOrStdout().Write(cfg.ResolvedYAML())
					return err
				}
				if err := os.WriteFile(output, cfg.ResolvedYAML(), 0o600); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved configuration written to %s\n", output)
				return nil
			}
			if watch {
				return formconfig.Watch(cmd.Context(), opts.configPath, func(cfg *formconfig.Config, err error) {
					if err == nil {
						fmt.Fprintln(cmd.OutOrStdout(), "---")
						err = write(cfg)
					}
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
					}
				}, loadOpts...)
			}
			cfg, err := formconfig.Load(opts.configPath, loadOpts...)
			if err != nil {
				return err
			}
			return write(cfg)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the resolved YAML to a file instead of stdout")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Resolve again whenever the file changes")
	return cmd
}

func newCheckMailCmd(opts *rootOptions) *cobra.Command {
	var sections []string
	cmd := &cobra.Command{
		Use:   "check-mail",
		Short: "Verify the notification emails of a previous submission",
		Long: `check-mail polls the mailbox of every email_check section (or only the
ones named with --section), checks the matched email against
subject_contains, must_contain and check_form_fields, and deletes it on
success.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)
			cfg, err := opts.load(cmd, logger)
			if err != nil {
				return err
			}
			rec := opts.recorder()
			defer opts.flushMetrics(rec, logger)
			return checkMail(cmd.Context(), cmd.OutOrStdout(), cfg, sections, logger, rec)
		},
	}
	cmd.Flags().StringSliceVarP(&sections, "section", "s", nil, "email_check section to verify (repeatable, default all)")
	return cmd
}

type browserOptions struct {
	headed        bool
	screenshotDir string
}

func (b *browserOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&b.headed, "headed", false, "Show the browser window")
	cmd.Flags().StringVar(&b.screenshotDir, "screenshots", "", "Directory for screenshots of failed steps")
}

func (b *browserOptions) launch(logger *log.Logger) (*formpage.Browser, error) {
	launch := formpage.BrowserOptionsFromEnv()
	if b.headed {
		launch.Headless = false
	}
	if b.screenshotDir != "" {
		launch.ScreenshotDir = b.screenshotDir
	}
	return formpage.Launch(launch, logger)
}

func capture(browser *formpage.Browser, logger *log.Logger, label string) {
	path, err := browser.Screenshot(label)
	switch {
	case err != nil:
		logger.Printf("screenshot failed: %v", err)
	case path != "":
		logger.Printf("screenshot saved to %s", path)
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var scenarios []string
	var bopts browserOptions
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the form's client and server side validation",
		Long: `validate opens the form once per scenario and checks the validation
messages configured under validation:

  consent-gate     submit is disabled until required checkboxes are ticked
  required-empty   submitting only the checkboxes reports every empty field
  missing-file     leaving excluded required fields empty reports them
  wrong-file-type  uploading file-wrong reports field_error_file_type`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)
			cfg, err := opts.load(cmd, logger)
			if err != nil {
				return err
			}
			selected, err := parseScenarios(scenarios)
			if err != nil {
				return err
			}
			browser, err := bopts.launch(logger)
			if err != nil {
				return err
			}
			defer browser.Close()
			rec := opts.recorder()
			defer opts.flushMetrics(rec, logger)

			page := browser.Form(cfg)
			var errs []error
			for _, s := range selected {
				err := rec.Time("validate:"+string(s), func() error {
					return page.Validate(cmd.Context(), s)
				})
				if err != nil {
					capture(browser, logger, string(s))
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", s, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", s)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringSliceVar(&scenarios, "scenario", nil, "Scenario to run (repeatable, default all)")
	bopts.register(cmd)
	return cmd
}

func parseScenarios(names []string) ([]formpage.Scenario, error) {
	if len(names) == 0 {
		return formpage.Scenarios, nil
	}
	out := make([]formpage.Scenario, 0, len(names))
	for _, name := range names {
		s := formpage.Scenario(name)
		known := false
		for _, k := range formpage.Scenarios {
			if k == s {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

type runOptions struct {
	skipMail bool
	browser  browserOptions
}

func (r *runOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&r.skipMail, "skip-mail", false, "Do not verify notification emails after submitting")
	r.browser.register(cmd)
}

// submitAndVerify submits the form with its required fields and then checks
// every email_check section.
func submitAndVerify(ctx context.Context, out io.Writer, cfg *formconfig.Config, r *runOptions, logger *log.Logger, rec *metrics.Recorder) error {
	browser, err := r.browser.launch(logger)
	if err != nil {
		return err
	}
	err = rec.Time("submit", func() error {
		return browser.Form(cfg).SubmitRequired(ctx)
	})
	if err != nil {
		capture(browser, logger, "submit")
	}
	browser.Close()
	if err != nil {
		fmt.Fprintf(out, "FAIL submit: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "ok   submit")
	if r.skipMail || len(cfg.EmailCheck) == 0 {
		return nil
	}
	return checkMail(ctx, out, cfg, nil, logger, rec)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var ropts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit the form with valid data and verify the resulting emails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)
			cfg, err := opts.load(cmd, logger)
			if err != nil {
				return err
			}
			rec := opts.recorder()
			defer opts.flushMetrics(rec, logger)
			return submitAndVerify(cmd.Context(), cmd.OutOrStdout(), cfg, &ropts, logger, rec)
		},
	}
	ropts.register(cmd)
	return cmd
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var ropts runOptions
	var spec string
	var timeout time.Duration
	var immediately bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Repeat run on a cron schedule until interrupted",
		Long: `schedule repeats run on a cron schedule. The configuration is loaded
again for every run, so each submission gets fresh placeholder values unless
--seed is given. Failed runs are logged and counted; the command only exits
on interrupt. With --metrics-file the textfile is rewritten after each run.`,
		Example: `  formprobe schedule --cron "@every 30m" --metrics-file /var/lib/node_exporter/formprobe.prom
  formprobe schedule --cron "0 */2 * * *" --now`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)
			if _, err := opts.load(cmd, logger); err != nil {
				return err
			}
			rec := opts.recorder()
			job := func(ctx context.Context) error {
				defer opts.flushMetrics(rec, logger)
				cfg, err := opts.load(cmd, logger)
				if err != nil {
					return err
				}
				return submitAndVerify(ctx, cmd.OutOrStdout(), cfg, &ropts, logger, rec)
			}
			schedOpts := []schedule.Option{schedule.WithLogger(logger), schedule.WithTimeout(timeout)}
			if immediately {
				schedOpts = append(schedOpts, schedule.WithRunOnStart())
			}
			runner, err := schedule.New(spec, job, schedOpts...)
			if err != nil {
				return err
			}
			return runner.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "@every 1h", "Cron expression or descriptor (@every 15m, @hourly)")
	cmd.Flags().DurationVar(&timeout, "run-timeout", 10*time.Minute, "Upper bound for a single run")
	cmd.Flags().BoolVar(&immediately, "now", false, "Run once immediately instead of waiting for the first tick")
	ropts.register(cmd)
	return cmd
}
