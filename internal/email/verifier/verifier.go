// Package verifier polls a mailbox for a notification email and asserts its
// content against the submitted form.
//
// A Verifier owns one mailbox session and remembers the last matched
// message so it can be deleted after a successful check. It is not safe for
// concurrent use; callers must serialize access to a given mailbox.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gotrs-io/formprobe/internal/email/inbound/connector"
	"github.com/gotrs-io/formprobe/internal/email/message"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 60 * time.Second
)

var (
	// ErrConnection wraps dial, authentication and listing failures.
	ErrConnection = errors.New("mailbox connection failed")
	// ErrNotFound reports that no message matched before the deadline.
	ErrNotFound = errors.New("no matching email")
)

// Criteria selects and checks a message. Empty SubjectContains and
// MustContain match any message.
type Criteria struct {
	SubjectContains string
	MustContain     []string
	CheckFormFields []string
	Timeout         time.Duration
}

func (c Criteria) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Verifier polls one mailbox.
type Verifier struct {
	account      connector.Account
	opener       connector.Opener
	parser       *message.Parser
	logger       *log.Logger
	pollInterval time.Duration
	settleDelay  time.Duration
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error

	mailbox   connector.Mailbox
	fatal     error
	lastID    string
	lastEmail *message.ParsedEmail
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithLogger overrides the logger used for poll diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithPollInterval sets the pause between inbox scans.
func WithPollInterval(interval time.Duration) Option {
	return func(v *Verifier) {
		if interval > 0 {
			v.pollInterval = interval
		}
	}
}

// WithSettleDelay makes VerifyContent wait before its first scan.
func WithSettleDelay(delay time.Duration) Option {
	return func(v *Verifier) {
		if delay >= 0 {
			v.settleDelay = delay
		}
	}
}

// WithOpener replaces the connector chosen from the account type.
func WithOpener(opener connector.Opener) Option {
	return func(v *Verifier) {
		v.opener = opener
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithSleep overrides how the poll loop waits, primarily for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(v *Verifier) {
		if sleep != nil {
			v.sleep = sleep
		}
	}
}

// New builds a verifier for account. No connection is made until the first
// call that needs one.
func New(account connector.Account, opts ...Option) (*Verifier, error) {
	v := &Verifier{
		account:      account,
		logger:       log.Default(),
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.opener == nil {
		opener, err := connector.DefaultFactory().OpenerFor(account)
		if err != nil {
			return nil, err
		}
		v.opener = opener
	}
	v.parser = message.NewParser(message.WithLogger(v.logger))
	return v, nil
}

// Connect opens the mailbox session once and reuses it afterwards. A failed
// connection is fatal for the verifier and is not retried.
func (v *Verifier) Connect(ctx context.Context) error {
	if v.fatal != nil {
		return v.fatal
	}
	if v.mailbox != nil {
		return nil
	}
	mb, err := v.opener.Open(ctx, v.account)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		v.fatal = fmt.Errorf("%w: %s@%s: %w", ErrConnection, v.account.Username, v.account.Host, err)
		return v.fatal
	}
	v.mailbox = mb
	v.logf("verifier: connected to %s@%s via %s", v.account.Username, v.account.Host, v.opener.Name())
	return nil
}

// WaitForEmail polls until a message matches the subject and body criteria.
// It returns false with a nil error when the timeout elapses first.
func (v *Verifier) WaitForEmail(ctx context.Context, c Criteria) (bool, error) {
	deadline := v.now().Add(c.timeout())
	for {
		hit, err := v.scan(ctx, func(m *message.ParsedEmail) bool { return matches(m, c) })
		if err != nil {
			return false, err
		}
		if hit != nil {
			v.logf("verifier: matched %q (id %s)", hit.email.Subject, hit.id)
			return true, nil
		}

		remaining := deadline.Sub(v.now())
		if remaining <= 0 {
			v.logf("verifier: no email with subject containing %q after %s", c.SubjectContains, c.timeout())
			return false, nil
		}
		if err := v.sleep(ctx, min(v.pollInterval, remaining)); err != nil {
			return false, err
		}
	}
}

// FetchBySubject scans once, newest first, and returns the first message
// whose subject contains fragment.
func (v *Verifier) FetchBySubject(ctx context.Context, fragment string) (*message.ParsedEmail, error) {
	hit, err := v.scan(ctx, func(m *message.ParsedEmail) bool { return containsFold(m.Subject, fragment) })
	if err != nil {
		return nil, err
	}
	if hit == nil {
		return nil, fmt.Errorf("%w: no email found with subject containing %q", ErrNotFound, fragment)
	}
	return hit.email, nil
}

// LastMatched returns the message found by the most recent successful
// WaitForEmail or FetchBySubject, or nil.
func (v *Verifier) LastMatched() *message.ParsedEmail {
	return v.lastEmail
}

// Close logs out of the mailbox.
func (v *Verifier) Close() error {
	if v.mailbox == nil {
		return nil
	}
	mb := v.mailbox
	v.mailbox = nil
	v.lastID = ""
	return mb.Close()
}

type hit struct {
	id    string
	email *message.ParsedEmail
}

func (v *Verifier) scan(ctx context.Context, match func(*message.ParsedEmail) bool) (*hit, error) {
	if err := v.Connect(ctx); err != nil {
		return nil, err
	}
	ids, err := v.mailbox.List(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: list messages: %w", ErrConnection, err)
	}

	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		raw, err := v.mailbox.Fetch(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			v.logf("verifier: skipping message %s: %v", id, err)
			continue
		}
		parsed, err := v.parser.Parse(raw)
		if err != nil {
			v.logf("verifier: skipping message %s: %v", id, err)
			continue
		}
		if match(parsed) {
			v.lastID = id
			v.lastEmail = parsed
			return &hit{id: id, email: parsed}, nil
		}
	}
	return nil, nil
}

func matches(m *message.ParsedEmail, c Criteria) bool {
	if c.SubjectContains != "" && !containsFold(m.Subject, c.SubjectContains) {
		return false
	}
	if len(c.MustContain) == 0 {
		return true
	}
	body := foldText(m.Body)
	for _, text := range c.MustContain {
		if !body.contains(text) {
			return false
		}
	}
	return true
}

func (v *Verifier) logf(format string, args ...any) {
	if v == nil || v.logger == nil {
		return
	}
	v.logger.Printf(format, args...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
