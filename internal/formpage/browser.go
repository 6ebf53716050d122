package formpage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/gotrs-io/formprobe/internal/formconfig"
)

// BrowserOptions controls the Chromium session.
type BrowserOptions struct {
	Headless      bool
	SlowMo        time.Duration
	Timeout       time.Duration
	ScreenshotDir string
	// SkipInstall assumes the browsers and driver are already present.
	SkipInstall bool
}

// BrowserOptionsFromEnv reads HEADLESS, SLOW_MO (milliseconds), PAGE_TIMEOUT,
// SCREENSHOT_DIR and PLAYWRIGHT_PREINSTALLED.
func BrowserOptionsFromEnv() BrowserOptions {
	opts := BrowserOptions{
		Headless:      os.Getenv("HEADLESS") != "false",
		Timeout:       30 * time.Second,
		ScreenshotDir: os.Getenv("SCREENSHOT_DIR"),
		SkipInstall:   os.Getenv("PLAYWRIGHT_PREINSTALLED") == "1",
	}
	if ms, err := strconv.Atoi(os.Getenv("SLOW_MO")); err == nil && ms > 0 {
		opts.SlowMo = time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(os.Getenv("PAGE_TIMEOUT")); err == nil && d > 0 {
		opts.Timeout = d
	}
	return opts
}

// Browser owns a Playwright driver, a Chromium instance and one page.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    BrowserOptions
	logger  *log.Logger
}

// Launch starts Chromium and opens a blank page.
func Launch(opts BrowserOptions, logger *log.Logger) (*Browser, error) {
	if !opts.SkipInstall {
		if err := playwright.Install(); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		_ = playwright.Install()
		pw, err = playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("could not start playwright after retry: %w", err)
		}
	}
	b := &Browser{pw: pw, opts: opts, logger: logger}

	b.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(float64(opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	b.context, err = b.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 720},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	b.page, err = b.context.NewPage()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	if opts.Timeout > 0 {
		b.page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	}
	return b, nil
}

// Form wraps the browser page in a form driver for cfg.
func (b *Browser) Form(cfg *formconfig.Config, opts ...Option) *Page {
	opts = append([]Option{WithLogger(b.logger)}, opts...)
	return newPage(playwrightDriver{page: b.page}, cfg, opts...)
}

// Screenshot stores a full page capture named after label in ScreenshotDir.
// It returns the written path, or "" when screenshots are disabled.
func (b *Browser) Screenshot(label string) (string, error) {
	if b.opts.ScreenshotDir == "" || b.page == nil {
		return "", nil
	}
	if err := os.MkdirAll(b.opts.ScreenshotDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(b.opts.ScreenshotDir, fmt.Sprintf("%s_%d.png", label, time.Now().Unix()))
	if _, err := b.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	return path, nil
}

// Close releases the page, context, browser and driver.
func (b *Browser) Close() {
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.context != nil {
		_ = b.context.Close()
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil && b.logger != nil {
			b.logger.Printf("formpage: stop playwright: %v", err)
		}
	}
}

type playwrightDriver struct{ page playwright.Page }

func (d playwrightDriver) Goto(url string) error {
	_, err := d.page.Goto(url)
	return err
}

func (d playwrightDriver) Locate(selector string) control {
	return locatorControl{l: d.page.Locator(selector).First()}
}

type locatorControl struct{ l playwright.Locator }

func (c locatorControl) Fill(value string) error { return c.l.Fill(value) }
func (c locatorControl) Check() error            { return c.l.Check() }
func (c locatorControl) Uncheck() error          { return c.l.Uncheck() }
func (c locatorControl) Click() error            { return c.l.Click() }

func (c locatorControl) SetInputFiles(path string) error {
	return c.l.SetInputFiles(path)
}

func (c locatorControl) SelectValue(value string) error {
	_, err := c.l.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}})
	return err
}

func (c locatorControl) SelectLabel(label string) error {
	_, err := c.l.SelectOption(playwright.SelectOptionValues{Labels: &[]string{label}})
	return err
}

func (c locatorControl) InnerText() (string, error)  { return c.l.InnerText() }
func (c locatorControl) InputValue() (string, error) { return c.l.InputValue() }
func (c locatorControl) IsEnabled() (bool, error)    { return c.l.IsEnabled() }

func (c locatorControl) WaitVisible(timeout time.Duration) error {
	return c.l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}
