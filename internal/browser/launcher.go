package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shehryarbajwa/testbed/internal/wait"
)

// Kind identifies a browser engine.
type Kind string

const (
	Chrome  Kind = "chrome"
	Firefox Kind = "firefox"
	WebKit  Kind = "webkit"
)

// ParseKind maps a configured browser name to a Kind. Matching is
// case-insensitive and "chromium" is accepted as an alias for chrome.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chrome", "chromium", "":
		return Chrome, nil
	case "firefox":
		return Firefox, nil
	case "webkit", "safari":
		return WebKit, nil
	default:
		return "", fmt.Errorf("unsupported browser %q", s)
	}
}

// LaunchOptions describes the session a Launcher should produce.
type LaunchOptions struct {
	Kind     Kind
	Headless bool
	Flags    []string

	// Timeout is the default timeout for navigation and element actions.
	Timeout time.Duration
}

// DefaultFlags returns the startup flags a kind needs to run inside CI
// containers. Chrome cannot use the setuid sandbox there and crashes when
// /dev/shm is small.
func DefaultFlags(kind Kind) []string {
	if kind == Chrome {
		return []string{"--no-sandbox", "--disable-dev-shm-usage"}
	}
	return nil
}

// Element is a located element that can be inspected and acted upon.
type Element interface {
	wait.Element
	Click() error
	Fill(value string) error
}

// Driver is one live automation session. Closing it terminates the
// underlying browser.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Find(ctx context.Context, selector string) (Element, error)
	Title(ctx context.Context) (string, error)
	URL() string
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher produces Drivers. Launch may block on process startup; Close
// releases whatever the launcher itself holds, not the Drivers it produced.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Driver, error)
	Close() error
}
