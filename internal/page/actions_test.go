package page

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/testbed/internal/browser"
	"github.com/shehryarbajwa/testbed/internal/wait"
)

type fakeElement struct {
	mu      sync.Mutex
	visible bool
	enabled bool
	stale   bool
	text    string
	clicks  int
}

func (e *fakeElement) Visible() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stale {
		return false, wait.ErrStale
	}
	return e.visible, nil
}

func (e *fakeElement) Enabled() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled, nil
}

func (e *fakeElement) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *fakeElement) Click() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicks++
	return nil
}

func (e *fakeElement) Fill(value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = value
	return nil
}

type fakeDriver struct {
	mu       sync.Mutex
	elements map[string]*fakeElement
	url      string
	title    string
	navErr   error
	shot     []byte
	shotErr  error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{elements: make(map[string]*fakeElement), title: "The Internet"}
}

func (d *fakeDriver) put(selector string, el *fakeElement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[selector] = el
}

// putAfter adds el under selector once delay has passed.
func (d *fakeDriver) putAfter(selector string, el *fakeElement, delay time.Duration) {
	time.AfterFunc(delay, func() { d.put(selector, el) })
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	if d.navErr != nil {
		return d.navErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	return nil
}

func (d *fakeDriver) Find(_ context.Context, selector string) (browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", wait.ErrNotFound, selector)
	}
	return el, nil
}

func (d *fakeDriver) Title(context.Context) (string, error) { return d.title, nil }

func (d *fakeDriver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) { return d.shot, d.shotErr }

func (d *fakeDriver) Close() error { return nil }

func newActions(d *fakeDriver) *Actions {
	return New(d, "https://example.test/", WithTimeout(500*time.Millisecond))
}

func TestOpen(t *testing.T) {
	d := newFakeDriver()
	a := newActions(d)
	ctx := context.Background()

	require.NoError(t, a.Open(ctx, "/login"))
	assert.Equal(t, "https://example.test/login", d.URL())

	require.NoError(t, a.Open(ctx, "checkboxes"))
	assert.Equal(t, "https://example.test/checkboxes", d.URL())

	require.NoError(t, a.Open(ctx, "https://other.test/x"))
	assert.Equal(t, "https://other.test/x", d.URL())

	d.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	assert.ErrorContains(t, a.Open(ctx, "/"), "ERR_NAME_NOT_RESOLVED")
}

func TestClick_WaitsForClickable(t *testing.T) {
	d := newFakeDriver()
	a := newActions(d)
	btn := &fakeElement{visible: true}
	d.put("#submit", btn)

	go func() {
		time.Sleep(100 * time.Millisecond)
		btn.mu.Lock()
		btn.enabled = true
		btn.mu.Unlock()
	}()

	start := time.Now()
	require.NoError(t, a.Click(context.Background(), "#submit"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, btn.clicks)
}

func TestClick_TimesOut(t *testing.T) {
	a := newActions(newFakeDriver())

	err := a.Click(context.Background(), "#missing")
	require.ErrorIs(t, err, wait.ErrTimedOut)

	var te *wait.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "clickable", te.Condition)
	assert.Equal(t, "#missing", te.Target)
}

func TestTypeAndText(t *testing.T) {
	d := newFakeDriver()
	a := newActions(d)
	ctx := context.Background()
	d.put("#username", &fakeElement{visible: true, enabled: true, text: "old"})

	require.NoError(t, a.Type(ctx, "#username", "tomsmith"))
	text, err := a.Text(ctx, "#username")
	require.NoError(t, err)
	assert.Equal(t, "tomsmith", text)
}

func TestIsDisplayed(t *testing.T) {
	d := newFakeDriver()
	a := newActions(d)
	ctx := context.Background()

	d.put("#shown", &fakeElement{visible: true})
	d.put("#hidden", &fakeElement{visible: false})
	d.put("#stale", &fakeElement{visible: true, stale: true})

	assert.True(t, a.IsDisplayed(ctx, "#shown"))
	assert.False(t, a.IsDisplayed(ctx, "#hidden"))
	assert.False(t, a.IsDisplayed(ctx, "#stale"))
	assert.False(t, a.IsDisplayed(ctx, "#missing"))
}

func TestTitle(t *testing.T) {
	title, err := newActions(newFakeDriver()).Title(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "The Internet", title)
}

func TestWaitVisible_ElementAppearsLater(t *testing.T) {
	d := newFakeDriver()
	a := New(d, "https://example.test", WithTimeout(2*time.Second))
	d.putAfter("#flash", &fakeElement{visible: true, text: "You logged in"}, 200*time.Millisecond)

	start := time.Now()
	el, err := a.WaitVisible(context.Background(), "#flash")
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, el)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestWaitInvisibleAndText(t *testing.T) {
	d := newFakeDriver()
	a := newActions(d)
	ctx := context.Background()

	spinner := &fakeElement{visible: true}
	d.put("#loading", spinner)
	time.AfterFunc(50*time.Millisecond, func() {
		spinner.mu.Lock()
		spinner.visible = false
		spinner.mu.Unlock()
	})
	require.NoError(t, a.WaitInvisible(ctx, "#loading"))
	require.NoError(t, a.WaitInvisible(ctx, "#never-existed"))

	d.put("#finish", &fakeElement{visible: true, text: "Hello World!"})
	require.NoError(t, a.WaitText(ctx, "#finish", "Hello"))
	assert.ErrorIs(t, a.WaitText(ctx, "#finish", "Goodbye"), wait.ErrTimedOut)

	_, err := a.WaitPresent(ctx, "#finish")
	assert.NoError(t, err)
}

func TestFluentFind(t *testing.T) {
	d := newFakeDriver()
	a := newActions(d)
	d.putAfter("#late", &fakeElement{}, 300*time.Millisecond)

	start := time.Now()
	el, err := a.FluentFind(context.Background(), "#late", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, el)
	// Found on the tick after it appeared.
	assert.GreaterOrEqual(t, time.Since(start), FluentInterval)

	_, err = a.FluentFind(context.Background(), "#nope", 600*time.Millisecond)
	require.ErrorIs(t, err, wait.ErrTimedOut)
	assert.ErrorIs(t, err, wait.ErrNotFound)
}

func TestSaveScreenshot(t *testing.T) {
	d := newFakeDriver()
	d.shot = []byte("\x89PNG fake")
	a := newActions(d)
	dir := filepath.Join(t.TempDir(), "shots")

	path, err := a.SaveScreenshot(context.Background(), dir, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "worker-1.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, d.shot, data)

	d.shotErr = errors.New("target closed")
	_, err = a.SaveScreenshot(context.Background(), dir, "worker-2")
	assert.ErrorContains(t, err, "target closed")
	assert.NoFileExists(t, filepath.Join(dir, "worker-2.png"))
}
