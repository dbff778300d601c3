package wait

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a condition wait when Options.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	// DefaultInterval is the polling cadence of condition waits.
	DefaultInterval = 500 * time.Millisecond
)

// Element is the view of a located element the built-in conditions need.
// Accessors return ErrStale when the element was detached after lookup.
type Element interface {
	Visible() (bool, error)
	Enabled() (bool, error)
	Text() (string, error)
}

// Finder locates elements on a live target. Find returns ErrNotFound when
// nothing matches the selector.
type Finder[E Element] interface {
	Find(ctx context.Context, selector string) (E, error)
}

// Kind names a built-in condition.
type Kind string

const (
	KindPresent   Kind = "present"
	KindVisible   Kind = "visible"
	KindClickable Kind = "clickable"
	KindAbsent    Kind = "absent"
	KindText      Kind = "contains-text"
)

// Condition is a built-in element condition bound to a selector.
type Condition struct {
	Kind     Kind
	Selector string
	Text     string
}

// Present is satisfied once an element matching selector exists.
func Present(selector string) Condition { return Condition{Kind: KindPresent, Selector: selector} }

// Visible is satisfied once a matching element exists and is displayed.
func Visible(selector string) Condition { return Condition{Kind: KindVisible, Selector: selector} }

// Clickable is satisfied once a matching element is visible and enabled.
func Clickable(selector string) Condition {
	return Condition{Kind: KindClickable, Selector: selector}
}

// Absent is satisfied once no matching element is displayed: either nothing
// matches, the match went stale, or it is hidden.
func Absent(selector string) Condition { return Condition{Kind: KindAbsent, Selector: selector} }

// ContainsText is satisfied once a matching element's text contains text.
func ContainsText(selector, text string) Condition {
	return Condition{Kind: KindText, Selector: selector, Text: text}
}

func (c Condition) String() string {
	if c.Kind == KindText {
		return string(c.Kind) + "(" + c.Selector + ", " + c.Text + ")"
	}
	return string(c.Kind) + "(" + c.Selector + ")"
}

// Options tunes a condition wait. Zero fields take the package defaults.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	Logger   *slog.Logger
}

// For blocks until c holds against f, returning the matched element. For
// KindAbsent the zero element is returned. Missing and stale elements are
// tolerated while polling. On timeout the error is a *TimeoutError naming the
// condition kind and selector.
func For[E Element](ctx context.Context, f Finder[E], c Condition, opts Options) (E, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	return Poll[E](ctx, PollOptions{
		Timeout:   timeout,
		Interval:  interval,
		Ignore:    []error{ErrNotFound, ErrStale},
		Condition: string(c.Kind),
		Target:    c.Selector,
		Logger:    opts.Logger,
	}, func(ctx context.Context) (E, bool, error) {
		return evaluate(ctx, f, c)
	})
}

func evaluate[E Element](ctx context.Context, f Finder[E], c Condition) (E, bool, error) {
	var zero E
	el, err := f.Find(ctx, c.Selector)

	if c.Kind == KindAbsent {
		if errors.Is(err, ErrNotFound) {
			return zero, true, nil
		}
		if err != nil {
			return zero, false, err
		}
		visible, err := el.Visible()
		if errors.Is(err, ErrStale) {
			return zero, true, nil
		}
		if err != nil {
			return zero, false, err
		}
		return zero, !visible, nil
	}

	if err != nil {
		return zero, false, err
	}

	switch c.Kind {
	case KindPresent:
		return el, true, nil
	case KindVisible:
		visible, err := el.Visible()
		return el, visible, err
	case KindClickable:
		visible, err := el.Visible()
		if err != nil || !visible {
			return el, false, err
		}
		enabled, err := el.Enabled()
		return el, enabled, err
	case KindText:
		text, err := el.Text()
		if err != nil {
			return el, false, err
		}
		return el, strings.Contains(text, c.Text), nil
	default:
		return zero, false, errors.New("unknown condition kind " + string(c.Kind))
	}
}
