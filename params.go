package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/wakujs/ssr-contract-tests/browser"
	"github.com/wakujs/ssr-contract-tests/framework"
	"github.com/wakujs/ssr-contract-tests/ports"
	"github.com/wakujs/ssr-contract-tests/scenario"
)

const defaultRuntime = "node"

type commandParams struct {
	cli            string
	runtime        string
	fixture        string
	outputDir      string
	workDir        string
	matrixPath     string
	browserKind    string
	browserPath    string
	headful        bool
	parallel       int
	readyTimeout   time.Duration
	readyInterval  time.Duration
	terminateGrace time.Duration
	expectTimeout  time.Duration
	filters        framework.RegexFilters
	debug          bool
	debugAll       bool
}

func (c *commandParams) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.cli, "cli", "", "path of the framework's CLI entry point")
	fs.StringVar(&c.runtime, "runtime", defaultRuntime, `program to run the CLI with, or "" to run it directly`)
	fs.StringVar(&c.fixture, "fixture", "", "directory of the fixture app")
	fs.StringVar(&c.outputDir, "output-dir", scenario.DefaultOutputDir, "build output directory to remove before each scenario, relative to the fixture")
	fs.StringVar(&c.workDir, "work-dir", "", "where each scenario gets its own copy of the fixture when --parallel is above 1 (default: the system temp directory)")
	fs.StringVar(&c.matrixPath, "matrix", "", "YAML file of scenarios to run instead of the default dev and build/start scenarios")
	fs.StringVar(&c.browserKind, "browser", browser.KindPlaywright, "browser driver: "+strings.Join(browser.Kinds, " or "))
	fs.StringVar(&c.browserPath, "browser-path", "", "browser executable to use instead of the driver's own")
	fs.BoolVar(&c.headful, "headful", false, "show the browser window")
	fs.IntVar(&c.parallel, "parallel", 1, "number of scenarios to run at the same time")
	fs.DurationVar(&c.readyTimeout, "ready-timeout", ports.DefaultReadyTimeout, "how long to wait for a server to accept connections")
	fs.DurationVar(&c.readyInterval, "ready-interval", ports.DefaultReadyInterval, "how often to check whether a server accepts connections")
	fs.DurationVar(&c.terminateGrace, "terminate-grace", scenario.DefaultTerminateGrace, "how long a server has to exit after SIGTERM before it is killed")
	fs.DurationVar(&c.expectTimeout, "expect-timeout", browser.DefaultExpectTimeout, "how long to wait for an element to have the expected text")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")
}

// validate checks the parameters and makes the fixture path absolute, since every command runs
// with the fixture as its working directory.
func (c *commandParams) validate() error {
	if c.cli == "" {
		return errors.New("--cli is required")
	}
	if c.fixture == "" {
		return errors.New("--fixture is required")
	}
	fixture, err := filepath.Abs(c.fixture)
	if err != nil {
		return fmt.Errorf("invalid --fixture: %w", err)
	}
	c.fixture = fixture
	if c.runtime != "" && !filepath.IsAbs(c.cli) {
		// the runtime resolves the CLI path relative to the fixture, not to where we were run
		cli, err := filepath.Abs(c.cli)
		if err != nil {
			return fmt.Errorf("invalid --cli: %w", err)
		}
		c.cli = cli
	}
	if !isKnownBrowser(c.browserKind) {
		return fmt.Errorf("--browser must be %s", strings.Join(browser.Kinds, " or "))
	}
	if c.parallel < 1 {
		return errors.New("--parallel must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"--ready-timeout":   c.readyTimeout,
		"--ready-interval":  c.readyInterval,
		"--terminate-grace": c.terminateGrace,
		"--expect-timeout":  c.expectTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func isKnownBrowser(kind string) bool {
	for _, k := range browser.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (c *commandParams) matrix() ([]scenario.Scenario, error) {
	if c.matrixPath == "" {
		return scenario.DefaultMatrix(), nil
	}
	return scenario.LoadMatrix(c.matrixPath)
}

// scenarioConfig gives every scenario a private copy of the fixture when scenarios can overlap,
// since they would otherwise clean and rebuild each other's output.
func (c *commandParams) scenarioConfig(logger framework.Logger) scenario.Config {
	return scenario.Config{
		Runtime:        c.runtime,
		CLI:            c.cli,
		Fixture:        c.fixture,
		OutputDir:      c.outputDir,
		IsolateFixture: c.parallel > 1,
		WorkDir:        c.workDir,
		ReadyInterval:  c.readyInterval,
		ReadyTimeout:   c.readyTimeout,
		TerminateGrace: c.terminateGrace,
		Logger:         logger,
	}
}

func (c *commandParams) browserConfig(logger framework.Logger) browser.Config {
	return browser.Config{
		Kind:           c.browserKind,
		Headless:       !c.headful,
		ExecutablePath: c.browserPath,
		ExpectTimeout:  c.expectTimeout,
		Logger:         logger,
	}
}
