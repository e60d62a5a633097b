package framework

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
	lock       sync.Mutex
}

// Context is the state of a single test or subtest. It plays the same role as *testing.T, but
// is usable outside of the Go test runner.
type Context struct {
	env         *environment
	id          TestID
	debugLogger CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	lock        sync.Mutex
}

// Subtest is a named test action, for use with Context.Parallel.
type Subtest struct {
	Name   string
	Action func(*Context)
}

// Run starts a test run, calling action with a root Context. Tests are defined by calling Run
// or Parallel on that Context.
func Run(
	filter Filter,
	testLogger TestLogger,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	c.run(action)
	return env.results
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		if r := recover(); r != nil && !c.Skipped() {
			var addError error
			if _, ok := r.(*Context); ok {
				c.lock.Lock()
				if len(c.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
				c.lock.Unlock()
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			c.lock.Lock()
			c.failed = true
			if addError != nil {
				c.errors = append(c.errors, addError)
			}
			c.lock.Unlock()
			if addError != nil {
				c.env.logError(c.id, addError)
			}
		}
		if len(c.id.Path) == 0 {
			return // the root context is not itself a test
		}
		c.lock.Lock()
		result := TestResult{TestID: c.id, Errors: append([]error(nil), c.errors...), Skipped: c.skipped}
		failed := c.failed
		c.lock.Unlock()
		c.env.addResult(result, failed)
	}()

	action(c)
}

// ID returns the full identifier of this test.
func (c *Context) ID() TestID {
	return c.id
}

// Run runs a subtest synchronously. If the subtest fails, the failure is recorded but the
// parent test continues.
func (c *Context) Run(name string, action func(*Context)) {
	id := c.id.Plus(name)

	c.env.lock.Lock()
	c.env.testLogger.TestStarted(id)
	excluded := c.env.filter != nil && !c.env.filter(id)
	if excluded {
		c.env.testLogger.TestSkipped(id, "excluded by filter parameters")
	}
	c.env.lock.Unlock()
	if excluded {
		return
	}

	c1 := &Context{
		id:  id,
		env: c.env,
	}
	c1.run(action)

	c1.lock.Lock()
	skipped, failed, reason := c1.skipped, c1.failed, c1.skipReason
	c1.lock.Unlock()

	c.env.lock.Lock()
	if skipped {
		c.env.testLogger.TestSkipped(id, reason)
	} else {
		c.env.testLogger.TestFinished(id, failed, c1.debugLogger.Output())
	}
	c.env.lock.Unlock()
}

// Parallel runs each of the subtests as if by Run, with at most limit of them running at the
// same time. It returns when all of them have finished. A limit of 1 or less runs them in order.
func (c *Context) Parallel(limit int, subtests ...Subtest) {
	if limit <= 1 {
		for _, st := range subtests {
			c.Run(st.Name, st.Action)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, st := range subtests {
		st := st
		g.Go(func() error {
			c.Run(st.Name, st.Action)
			return nil
		})
	}
	_ = g.Wait()
}

// Errorf records a test failure without stopping the test.
func (c *Context) Errorf(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	c.lock.Lock()
	c.failed = true
	c.errors = append(c.errors, err)
	c.lock.Unlock()
	c.env.logError(c.id, err)
}

// FailNow stops the test immediately. The failure must already have been recorded by Errorf.
func (c *Context) FailNow() {
	c.lock.Lock()
	c.failed = true
	c.lock.Unlock()
	panic(c)
}

// Failed returns true if this test has recorded a failure.
func (c *Context) Failed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.failed
}

// Skipped returns true if this test was skipped.
func (c *Context) Skipped() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.skipped
}

func (c *Context) Skip() {
	c.lock.Lock()
	c.skipped = true
	c.lock.Unlock()
	panic(c)
}

func (c *Context) SkipWithReason(reason string) {
	c.lock.Lock()
	c.skipReason = reason
	c.lock.Unlock()
	c.Skip()
}

func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

func (c *Context) DebugLogger() Logger {
	return &c.debugLogger
}

func (e *environment) logError(id TestID, err error) {
	e.lock.Lock()
	e.testLogger.TestError(id, err)
	e.lock.Unlock()
}

func (e *environment) addResult(result TestResult, failed bool) {
	e.lock.Lock()
	e.results.Tests = append(e.results.Tests, result)
	if failed {
		e.results.Failures = append(e.results.Failures, result)
	}
	e.lock.Unlock()
}
