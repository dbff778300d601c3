package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/shehryarbajwa/testbed/internal/wait"
)

// PlaywrightLauncher starts local browsers through the Playwright driver.
// The driver process is started lazily on the first Launch and shared by all
// sessions the launcher produces.
type PlaywrightLauncher struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	install bool
	log     *slog.Logger
}

// PlaywrightOption configures a PlaywrightLauncher.
type PlaywrightOption func(*PlaywrightLauncher)

// WithInstall makes the launcher download the Playwright driver and browsers
// before first use.
func WithInstall(install bool) PlaywrightOption {
	return func(l *PlaywrightLauncher) { l.install = install }
}

// WithPlaywrightLogger sets the launcher's logger.
func WithPlaywrightLogger(log *slog.Logger) PlaywrightOption {
	return func(l *PlaywrightLauncher) { l.log = log }
}

// NewPlaywrightLauncher creates a launcher. No process is started until the
// first Launch.
func NewPlaywrightLauncher(opts ...PlaywrightOption) *PlaywrightLauncher {
	l := &PlaywrightLauncher{log: slog.Default().With("component", "playwright")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *PlaywrightLauncher) runtime() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}

	// Keep the driver quiet; its progress output would interleave with test logs.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if l.install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	l.pw = pw
	l.log.Debug("playwright driver started")
	return pw, nil
}

// Launch starts a new browser with one context and one page.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := l.runtime()
	if err != nil {
		return nil, err
	}

	var bt playwright.BrowserType
	switch opts.Kind {
	case Chrome, "":
		bt = pw.Chromium
	case Firefox:
		bt = pw.Firefox
	case WebKit:
		bt = pw.WebKit
	default:
		return nil, fmt.Errorf("unsupported browser %q", opts.Kind)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Flags,
	}
	if ms, ok := deadlineMillis(ctx); ok {
		launchOpts.Timeout = playwright.Float(ms)
	}

	b, err := bt.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", bt.Name(), err)
	}

	d, err := newPageDriver(b, opts.Timeout, nil)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	l.log.Debug("browser launched", "browser", bt.Name(), "headless", opts.Headless)
	return d, nil
}

// ConnectCDP attaches to a Chromium instance already listening on a CDP
// websocket endpoint. onClose runs after the browser connection is closed.
func (l *PlaywrightLauncher) ConnectCDP(ctx context.Context, endpoint string, timeout time.Duration, onClose func() error) (Driver, error) {
	pw, err := l.runtime()
	if err != nil {
		return nil, err
	}

	cdpOpts := playwright.BrowserTypeConnectOverCDPOptions{}
	if ms, ok := deadlineMillis(ctx); ok {
		cdpOpts.Timeout = playwright.Float(ms)
	}

	b, err := pw.Chromium.ConnectOverCDP(endpoint, cdpOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect over CDP to %s: %w", endpoint, err)
	}

	d, err := newPageDriver(b, timeout, onClose)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return d, nil
}

// Close stops the shared Playwright driver process.
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// pageDriver is a Driver backed by a Playwright browser, context and page.
type pageDriver struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	onClose func() error

	closeOnce sync.Once
	closeErr  error
}

func newPageDriver(b playwright.Browser, timeout time.Duration, onClose func() error) (*pageDriver, error) {
	bctx, err := b.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if timeout > 0 {
		page.SetDefaultTimeout(float64(timeout.Milliseconds()))
	}

	return &pageDriver{
		browser: b,
		context: bctx,
		page:    page,
		onClose: onClose,
	}, nil
}

func (d *pageDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := playwright.PageGotoOptions{}
	if ms, ok := deadlineMillis(ctx); ok {
		opts.Timeout = playwright.Float(ms)
	}
	if _, err := d.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (d *pageDriver) Find(ctx context.Context, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := d.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query %q failed: %w", selector, classify(err))
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", wait.ErrNotFound, selector)
	}
	return &handle{h: h}, nil
}

func (d *pageDriver) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.Title()
}

func (d *pageDriver) URL() string { return d.page.URL() }

func (d *pageDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.page.Screenshot()
}

// Close tears down page, context and browser, continuing past individual
// failures. It is safe to call more than once.
func (d *pageDriver) Close() error {
	d.closeOnce.Do(func() {
		errs := []error{
			d.page.Close(),
			d.context.Close(),
			d.browser.Close(),
		}
		if d.onClose != nil {
			errs = append(errs, d.onClose())
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}

// handle adapts a Playwright element handle to Element.
type handle struct {
	h playwright.ElementHandle
}

func (e *handle) Visible() (bool, error) {
	v, err := e.h.IsVisible()
	return v, classify(err)
}

func (e *handle) Enabled() (bool, error) {
	v, err := e.h.IsEnabled()
	return v, classify(err)
}

func (e *handle) Text() (string, error) {
	s, err := e.h.InnerText()
	return s, classify(err)
}

func (e *handle) Click() error { return classify(e.h.Click()) }

func (e *handle) Fill(value string) error { return classify(e.h.Fill(value)) }

// classify maps Playwright's detached-element failures onto wait.ErrStale so
// waits can tolerate them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "not attached to the DOM") || strings.Contains(msg, "Element is not attached") {
		return fmt.Errorf("%w: %v", wait.ErrStale, err)
	}
	return err
}

// deadlineMillis converts ctx's deadline into the millisecond timeout
// Playwright options expect.
func deadlineMillis(ctx context.Context) (float64, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return float64(remaining.Milliseconds()), true
}
