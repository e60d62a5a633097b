// Package browser drives a real browser for assertions about rendered pages. Elements are
// always located by their data-testid attribute, and text assertions require the element's
// text to equal the expected value exactly.
//
// Two backends are available: Playwright (the default) and Rod. Either one launches a local
// Chromium; every Page gets its own isolated browser context, so pages opened by concurrent
// scenarios share no cookies, storage, or script settings.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wakujs/ssr-contract-tests/framework"
)

const (
	KindPlaywright = "playwright"
	KindRod        = "rod"

	DefaultExpectTimeout     = 5 * time.Second
	DefaultNavigationTimeout = 30 * time.Second

	expectPollInterval = 100 * time.Millisecond
)

// Kinds lists the supported backends.
var Kinds = []string{KindPlaywright, KindRod}

type Config struct {
	// Kind selects the backend. The default is KindPlaywright.
	Kind string

	Headless bool

	// ExecutablePath is a browser binary to use instead of the backend's own download.
	ExecutablePath string

	// ExpectTimeout is how long ExpectText keeps re-reading an element before failing.
	ExpectTimeout time.Duration

	NavigationTimeout time.Duration

	Logger framework.Logger
}

type PageOptions struct {
	// JavaScriptEnabled controls whether the page runs scripts. With scripts disabled, the page
	// shows only what the server rendered.
	JavaScriptEnabled bool

	// Logger receives a line for every action on the page. If nil, Config.Logger is used.
	Logger framework.Logger
}

// Driver is a running browser.
type Driver interface {
	// NewPage opens a page in a new, isolated browser context.
	NewPage(ctx context.Context, opts PageOptions) (Page, error)

	// Close shuts down the browser.
	Close() error
}

// Page is a single browser tab. Its methods must be called from one goroutine at a time.
type Page interface {
	Goto(url string) error
	Click(testID string) error
	// Text returns the element's DOM textContent, without any whitespace normalization.
	Text(testID string) (string, error)

	// ExpectText waits until the element's textContent equals expected exactly. Every backend
	// compares the same way. If it still does not match when the timeout elapses, the error
	// is an *AssertionError.
	ExpectText(testID, expected string) error

	// Close closes the page and its browser context.
	Close() error
}

// AssertionError means that an element did not have the expected text.
type AssertionError struct {
	TestID   string
	Expected string
	Actual   string
	Err      error
}

func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("element [data-testid=%s]: expected text %q, got %q", e.TestID, e.Expected, e.Actual)
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *AssertionError) Unwrap() error {
	return e.Err
}

// Open starts a browser.
func Open(ctx context.Context, config Config) (Driver, error) {
	if config.ExpectTimeout <= 0 {
		config.ExpectTimeout = DefaultExpectTimeout
	}
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = DefaultNavigationTimeout
	}
	if config.Logger == nil {
		config.Logger = framework.NullLogger()
	}
	switch config.Kind {
	case "", KindPlaywright:
		return openPlaywright(config)
	case KindRod:
		return openRod(ctx, config)
	default:
		return nil, fmt.Errorf("unknown browser kind %q", config.Kind)
	}
}

// TestIDSelector returns a CSS selector for the element with the given data-testid.
func TestIDSelector(testID string) string {
	return "[data-testid=" + strconv.Quote(testID) + "]"
}

// pollText re-reads text until it equals expected or the timeout elapses.
func pollText(testID, expected string, timeout time.Duration, read func() (string, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		actual, err := read()
		if err == nil && actual == expected {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &AssertionError{TestID: testID, Expected: expected, Actual: actual, Err: err}
		}
		time.Sleep(expectPollInterval)
	}
}
