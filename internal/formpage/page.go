// Package formpage drives the form under test in a browser page.
package formpage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gotrs-io/formprobe/internal/formconfig"
)

const (
	// DefaultSuccessTimeout bounds the wait for the success indicator.
	DefaultSuccessTimeout = 10 * time.Second
	// DefaultSettle is the pause after submit before validation output is read.
	DefaultSettle = time.Second

	defaultPlaceholderValue = "Test"
)

var (
	// ErrUnsupportedField is returned for field types the driver cannot fill.
	ErrUnsupportedField = errors.New("unsupported field type")
	// ErrFileMissing is returned when a file field points at a missing path.
	ErrFileMissing = errors.New("upload file not found")
)

// control is the part of a located element the driver interacts with.
type control interface {
	Fill(value string) error
	Check() error
	Uncheck() error
	Click() error
	SetInputFiles(path string) error
	SelectValue(value string) error
	SelectLabel(label string) error
	InnerText() (string, error)
	InputValue() (string, error)
	IsEnabled() (bool, error)
	WaitVisible(timeout time.Duration) error
}

// driver is the page-level surface: navigation and element lookup.
type driver interface {
	Goto(url string) error
	Locate(selector string) control
}

// Page fills and submits the configured form.
type Page struct {
	d      driver
	cfg    *formconfig.Config
	logger *log.Logger
	settle time.Duration
	sleep  func(context.Context, time.Duration) error
	stat   func(string) error
}

// Option configures a Page.
type Option func(*Page)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *log.Logger) Option {
	return func(p *Page) { p.logger = l }
}

// WithSettle overrides the pause after submit.
func WithSettle(d time.Duration) Option {
	return func(p *Page) {
		if d >= 0 {
			p.settle = d
		}
	}
}

func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(p *Page) { p.sleep = fn }
}

func withStat(fn func(string) error) Option {
	return func(p *Page) { p.stat = fn }
}

func newPage(d driver, cfg *formconfig.Config, opts ...Option) *Page {
	p := &Page{
		d:      d,
		cfg:    cfg,
		settle: DefaultSettle,
		sleep:  sleepContext,
		stat: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the configuration the page was built with.
func (p *Page) Config() *formconfig.Config { return p.cfg }

// Open navigates to the configured form URL.
func (p *Page) Open() error {
	p.logf("opening %s", p.cfg.URL)
	if err := p.d.Goto(p.cfg.URL); err != nil {
		return fmt.Errorf("open %s: %w", p.cfg.URL, err)
	}
	return nil
}

// FillOptions selects which fields a fill pass touches and how.
type FillOptions struct {
	// RequiredOnly restricts the pass to required fields.
	RequiredOnly bool
	// SkipExcluded leaves fields marked exclude empty.
	SkipExcluded bool
	// WrongFiles uploads file-wrong instead of file.
	WrongFiles bool
	// Click toggles checkboxes and radios with a click so the page's own
	// handlers run, instead of forcing their state.
	Click bool
}

// FillAll fills every configured field with its resolved value.
func (p *Page) FillAll() error {
	return p.Fill(FillOptions{})
}

// Fill runs one fill pass over the configured fields.
func (p *Page) Fill(opts FillOptions) error {
	for _, f := range p.cfg.FormFields {
		if opts.RequiredOnly && !f.Required {
			continue
		}
		if opts.SkipExcluded && f.Exclude {
			p.logf("skipping excluded field %s", f.Name)
			continue
		}
		if err := p.FillField(f, opts); err != nil {
			return err
		}
	}
	return nil
}

// FillField sets one control according to its type.
func (p *Page) FillField(f formconfig.Field, opts FillOptions) error {
	c := p.d.Locate(Selector(f))
	var err error
	switch f.Kind() {
	case formconfig.FieldCheckbox:
		switch {
		case opts.Click:
			err = c.Click()
		case f.Checked || f.Required:
			err = c.Check()
		default:
			err = c.Uncheck()
		}
	case formconfig.FieldRadio:
		if opts.Click {
			err = c.Click()
		} else {
			err = c.Check()
		}
	case formconfig.FieldFile:
		path := f.File
		if opts.WrongFiles && f.FileWrong != "" {
			path = f.FileWrong
		}
		if path == "" {
			return nil
		}
		if statErr := p.stat(path); statErr != nil {
			return fmt.Errorf("field %s: %w: %s", f.Name, ErrFileMissing, path)
		}
		err = c.SetInputFiles(path)
	case formconfig.FieldSelect:
		err = p.selectOption(c, f)
	case formconfig.FieldText, formconfig.FieldTextarea, "email", "tel", "number", "url", "date", "password":
		value := f.Value
		if value == "" && f.Required {
			value = defaultPlaceholderValue
		}
		err = c.Fill(value)
	default:
		return fmt.Errorf("field %s: %w: %s", f.Name, ErrUnsupportedField, f.Type)
	}
	if err != nil {
		return fmt.Errorf("fill %s: %w", f.Name, err)
	}
	return nil
}

func (p *Page) selectOption(c control, f formconfig.Field) error {
	if f.Value != "" {
		if err := c.SelectValue(f.Value); err == nil || f.Label == "" {
			return err
		}
	}
	if f.Label != "" {
		return c.SelectLabel(f.Label)
	}
	return nil
}

// CheckRequiredBoxes ticks every required checkbox, which is how consent
// gated forms enable their submit control.
func (p *Page) CheckRequiredBoxes() error {
	for _, f := range p.cfg.RequiredFields() {
		if f.Kind() != formconfig.FieldCheckbox {
			continue
		}
		if err := p.d.Locate(Selector(f)).Click(); err != nil {
			return fmt.Errorf("click %s: %w", f.Name, err)
		}
	}
	return nil
}

// Submit clicks the submit control and waits for the page to settle.
func (p *Page) Submit(ctx context.Context) error {
	if err := p.d.Locate(SubmitSelector).Click(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return p.sleep(ctx, p.settle)
}

// SubmitEnabled reports whether the submit control accepts clicks.
func (p *Page) SubmitEnabled() (bool, error) {
	return p.d.Locate(SubmitSelector).IsEnabled()
}

// BodyText returns the visible text of the page.
func (p *Page) BodyText() (string, error) {
	return p.d.Locate("body").InnerText()
}

// FieldError returns the text of the validation wrapper of a field.
func (p *Page) FieldError(name string) (string, error) {
	return p.d.Locate(ErrorSelector(name)).InnerText()
}

// FieldValue returns the current value of a field's control.
func (p *Page) FieldValue(f formconfig.Field) (string, error) {
	return p.d.Locate(Selector(f)).InputValue()
}

// WaitForSuccess waits for success_selector or, when unset, for the
// configured global success text.
func (p *Page) WaitForSuccess(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultSuccessTimeout
	}
	selector := p.cfg.SuccessSelector
	if selector == "" {
		if p.cfg.Validation.GlobalSuccess == "" {
			return errors.New("no success_selector or validation.global_success configured")
		}
		selector = "text=" + p.cfg.Validation.GlobalSuccess
	}
	if err := p.d.Locate(selector).WaitVisible(timeout); err != nil {
		return fmt.Errorf("success indicator %s: %w", selector, err)
	}
	p.logf("form submitted successfully")
	return nil
}

func (p *Page) bodyContains(text string) (bool, error) {
	body, err := p.BodyText()
	if err != nil {
		return false, err
	}
	return strings.Contains(body, text), nil
}

func (p *Page) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf("formpage: "+format, args...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
