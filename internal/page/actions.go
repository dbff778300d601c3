// Package page provides the element actions tests use against a session:
// every interaction first waits for the element to be ready.
package page

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shehryarbajwa/testbed/internal/browser"
	"github.com/shehryarbajwa/testbed/internal/wait"
)

// FluentInterval is the polling cadence of FluentFind.
const FluentInterval = 500 * time.Millisecond

// Actions drives one session's page. Like the Driver it wraps, it belongs
// to a single worker and is not safe for concurrent use.
type Actions struct {
	drv     browser.Driver
	baseURL string
	timeout time.Duration
	log     *slog.Logger
}

// Option configures Actions.
type Option func(*Actions)

// WithTimeout sets the wait timeout for every action.
func WithTimeout(d time.Duration) Option {
	return func(a *Actions) { a.timeout = d }
}

// WithLogger sets the logger for waits.
func WithLogger(log *slog.Logger) Option {
	return func(a *Actions) { a.log = log }
}

// New returns Actions over drv. Relative paths given to Open resolve
// against baseURL.
func New(drv browser.Driver, baseURL string, opts ...Option) *Actions {
	a := &Actions{
		drv:     drv,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: wait.DefaultTimeout,
		log:     slog.Default().With("component", "page"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Open navigates to path, or to it verbatim when it is an absolute URL.
func (a *Actions) Open(ctx context.Context, path string) error {
	target := path
	if !strings.Contains(path, "://") {
		target = a.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if err := a.drv.Navigate(ctx, target); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	return nil
}

// Click waits for selector to be clickable, then clicks it.
func (a *Actions) Click(ctx context.Context, selector string) error {
	el, err := a.WaitClickable(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Type waits for selector to be visible and replaces its value with text.
func (a *Actions) Type(ctx context.Context, selector, text string) error {
	el, err := a.WaitVisible(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Fill(text); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

// Text waits for selector to be visible and returns its text.
func (a *Actions) Text(ctx context.Context, selector string) (string, error) {
	el, err := a.WaitVisible(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("text of %s: %w", selector, err)
	}
	return text, nil
}

// IsDisplayed checks once, without waiting, whether selector is shown.
// Missing, stale and hidden elements all report false.
func (a *Actions) IsDisplayed(ctx context.Context, selector string) bool {
	el, err := a.drv.Find(ctx, selector)
	if err != nil {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// Title returns the page title.
func (a *Actions) Title(ctx context.Context) (string, error) {
	return a.drv.Title(ctx)
}

// SaveScreenshot writes a PNG of the current page to dir/name.png and
// returns the file path.
func (a *Actions) SaveScreenshot(ctx context.Context, dir, name string) (string, error) {
	data, err := a.drv.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}
	path := filepath.Join(dir, name+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// WaitPresent waits until selector matches an element.
func (a *Actions) WaitPresent(ctx context.Context, selector string) (browser.Element, error) {
	return a.waitFor(ctx, wait.Present(selector))
}

// WaitVisible waits until selector matches a displayed element.
func (a *Actions) WaitVisible(ctx context.Context, selector string) (browser.Element, error) {
	return a.waitFor(ctx, wait.Visible(selector))
}

// WaitClickable waits until selector matches a visible, enabled element.
func (a *Actions) WaitClickable(ctx context.Context, selector string) (browser.Element, error) {
	return a.waitFor(ctx, wait.Clickable(selector))
}

// WaitInvisible waits until selector is missing or hidden.
func (a *Actions) WaitInvisible(ctx context.Context, selector string) error {
	_, err := a.waitFor(ctx, wait.Absent(selector))
	return err
}

// WaitText waits until selector's text contains text.
func (a *Actions) WaitText(ctx context.Context, selector, text string) error {
	_, err := a.waitFor(ctx, wait.ContainsText(selector, text))
	return err
}

func (a *Actions) waitFor(ctx context.Context, c wait.Condition) (browser.Element, error) {
	return wait.For[browser.Element](ctx, a.drv, c, wait.Options{
		Timeout: a.timeout,
		Logger:  a.log,
	})
}

// FluentFind polls for selector every FluentInterval for up to timeout,
// treating only a missing element as transient.
func (a *Actions) FluentFind(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	return wait.Poll[browser.Element](ctx, wait.PollOptions{
		Timeout:   timeout,
		Interval:  FluentInterval,
		Ignore:    []error{wait.ErrNotFound},
		Condition: string(wait.KindPresent),
		Target:    selector,
		Logger:    a.log,
	}, func(ctx context.Context) (browser.Element, bool, error) {
		el, err := a.drv.Find(ctx, selector)
		if err != nil {
			return nil, false, err
		}
		return el, true, nil
	})
}
