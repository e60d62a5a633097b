package ssrtests

import (
	"context"
	"errors"
	"strings"

	"github.com/stretchr/testify/require"

	"github.com/wakujs/ssr-contract-tests/browser"
	"github.com/wakujs/ssr-contract-tests/framework"
	"github.com/wakujs/ssr-contract-tests/scenario"
)

type environment struct {
	ctx     context.Context
	runner  *scenario.Runner
	browser browser.Driver
}

// T represents a test or subtest in the SSR test suite.
//
// It implements the same basic functionality as Go's testing.T, but in an environment that is
// outside of the Go test runner, using our lower-level framework package. To make assertions,
// pass the *T to the assert and require packages as if it were a *testing.T.
//
// A T that belongs to a scenario has access to that scenario's running server. Every browser
// page opened through a T is closed when that T's test finishes.
type T struct {
	context *framework.Context
	env     *environment
	session *scenario.Session
	pages   []browser.Page
}

func newTestScope(context *framework.Context, env *environment, session *scenario.Session) *T {
	return &T{context: context, env: env, session: session}
}

func (t *T) close() {
	for _, p := range t.pages {
		if err := p.Close(); err != nil {
			t.Debug("Error closing page: %s", err)
		}
	}
	t.pages = nil
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a test should fail and immediately exit. The methods in
// the require package call FailNow.
func (t *T) FailNow() {
	t.context.FailNow()
}

// Run runs a subtest. This is equivalent to the Run method of testing.T.
func (t *T) Run(name string, action func(*T)) {
	var t1 *T
	t.context.Run(name, func(c *framework.Context) {
		t1 = newTestScope(c, t.env, t.session)
		action(t1)
	})
	if t1 != nil {
		t1.close()
	}
}

// Debug logs some debug output for the test. The output will be passed to the test logger at
// the end of the test.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// RunScenario starts a scenario's server, runs action with access to it, and then tears the
// server down, whether or not action fails. If the server cannot be started, the test fails
// immediately and action is not called.
func (t *T) RunScenario(sc scenario.Scenario, action func(*T)) {
	session, err := t.env.runner.Start(t.env.ctx, sc, t.context.DebugLogger())
	require.NoError(t, err)
	defer func() {
		if err := session.Close(); err != nil {
			t.Debug("Teardown warning: %s", err)
		}
	}()
	t.session = session
	defer func() { t.session = nil }()
	t.Debug("Scenario %q is running on port %d (run %s)", sc, session.Port, session.RunID)
	action(t)
}

func (t *T) requireSession() *scenario.Session {
	require.NotNil(t, t.session, "test tried to use the server outside of a scenario")
	return t.session
}

// URL returns the full URL of a path on the scenario's server.
func (t *T) URL(path string) string {
	return strings.TrimSuffix(t.requireSession().BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// OpenPage opens a new browser page in its own browser context. The test fails immediately if
// the page cannot be opened.
func (t *T) OpenPage(javaScriptEnabled bool) browser.Page {
	page, err := t.env.browser.NewPage(t.env.ctx, browser.PageOptions{
		JavaScriptEnabled: javaScriptEnabled,
		Logger:            t.context.DebugLogger(),
	})
	require.NoError(t, err)
	t.pages = append(t.pages, page)
	return page
}

// Goto navigates the page to a path on the scenario's server.
func (t *T) Goto(page browser.Page, path string) {
	require.NoError(t, page.Goto(t.URL(path)))
}

// Click clicks the element with the given test ID.
func (t *T) Click(page browser.Page, testID string) {
	require.NoError(t, page.Click(testID))
}

// RequireText fails the test immediately unless the element with the given test ID comes to
// have exactly the expected text.
func (t *T) RequireText(page browser.Page, testID, expected string) {
	err := page.ExpectText(testID, expected)
	if err == nil {
		return
	}
	var assertionErr *browser.AssertionError
	if errors.As(err, &assertionErr) {
		require.Fail(t, "unexpected text", "element %q: expected %q, got %q",
			assertionErr.TestID, assertionErr.Expected, assertionErr.Actual)
	}
	require.NoError(t, err)
}
