package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"slices"

	"github.com/gotrs-io/formprobe/internal/email/inbound/connector"
	"github.com/gotrs-io/formprobe/internal/email/verifier"
	"github.com/gotrs-io/formprobe/internal/formconfig"
	"github.com/gotrs-io/formprobe/internal/metrics"
)

type mailChecker interface {
	VerifyContent(ctx context.Context, c verifier.Criteria, fields []formconfig.Field) error
	Close() error
}

var newMailChecker = func(account connector.Account, logger *log.Logger) (mailChecker, error) {
	return verifier.New(account, verifier.WithLogger(logger))
}

// checkMail verifies the named email_check sections, or all of them in
// name order when none are given. Every section runs; failures are joined.
func checkMail(ctx context.Context, out io.Writer, cfg *formconfig.Config, sections []string, logger *log.Logger, rec *metrics.Recorder) error {
	if len(sections) == 0 {
		sections = slices.Sorted(maps.Keys(cfg.EmailCheck))
	}
	if len(sections) == 0 {
		return errors.New("no email_check sections configured")
	}
	var errs []error
	for _, name := range sections {
		check, ok := cfg.EmailSection(name)
		if !ok {
			return fmt.Errorf("unknown email_check section %q", name)
		}
		err := rec.Time("email:"+name, func() error {
			return checkSection(ctx, cfg, check, logger)
		})
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", name)
	}
	return errors.Join(errs...)
}

func checkSection(ctx context.Context, cfg *formconfig.Config, check formconfig.EmailCheck, logger *log.Logger) error {
	mc, err := newMailChecker(check.IMAP.Account(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := mc.Close(); err != nil {
			logger.Printf("close mailbox: %v", err)
		}
	}()
	return mc.VerifyContent(ctx, verifier.CriteriaFromCheck(check), cfg.FormFields)
}
