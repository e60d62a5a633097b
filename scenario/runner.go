package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/wakujs/ssr-contract-tests/framework"
	"github.com/wakujs/ssr-contract-tests/ports"
	"github.com/wakujs/ssr-contract-tests/process"
)

const (
	DefaultOutputDir      = "dist"
	DefaultTerminateGrace = 5 * time.Second

	// PortEnvVar is how the server under test is told which port to listen on.
	PortEnvVar = "PORT"
)

// Scenario is one entry in the scenario matrix.
type Scenario struct {
	// Name identifies the scenario in test output. If empty, Command is used.
	Name string

	// Build is a CLI subcommand line to run to completion before launching, if defined.
	Build ldvalue.OptionalString

	// Command is the CLI subcommand line that starts the long-lived server.
	Command string

	// ReadyTimeoutMS overrides Config.ReadyTimeout for this scenario, if defined.
	ReadyTimeoutMS ldvalue.OptionalInt
}

func (s Scenario) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Command
}

// Config describes how to invoke the framework CLI. Zero durations select the defaults.
type Config struct {
	// Runtime is the interpreter to run the CLI with, such as "node". If empty, CLI is run
	// directly.
	Runtime string

	// CLI is the CLI entry point.
	CLI string

	// Fixture is the app directory that commands are run in.
	Fixture string

	// OutputDir is the build output directory, relative to Fixture, that is removed before
	// each scenario. The default is "dist".
	OutputDir string

	// Env contains additional environment variables for every command.
	Env map[string]string

	// IsolateFixture gives every scenario its own copy of Fixture, so that scenarios can
	// overlap without sharing build output. Otherwise scenarios started by the same Runner take
	// turns with the fixture: each one holds it from Cleaning until Close.
	IsolateFixture bool

	// WorkDir is where isolated copies of the fixture are made. The default is os.TempDir().
	WorkDir string

	ReadyInterval  time.Duration
	ReadyTimeout   time.Duration
	TerminateGrace time.Duration

	// Logger receives a copy of every scenario's log output, tagged with its run ID.
	Logger framework.Logger
}

// Process is a running server process, as returned by Launcher.Spawn.
type Process interface {
	Pid() int
	Done() <-chan struct{}
	ExitErr() error
	Terminate(grace time.Duration) error
}

// Launcher runs commands. The default implementation uses the process package.
type Launcher interface {
	RunSync(ctx context.Context, command process.Command, logger framework.Logger) error
	Spawn(command process.Command, logger framework.Logger) (Process, error)
}

type execLauncher struct{}

func (execLauncher) RunSync(ctx context.Context, command process.Command, logger framework.Logger) error {
	return process.RunSync(ctx, command, logger)
}

func (execLauncher) Spawn(command process.Command, logger framework.Logger) (Process, error) {
	h, err := process.Spawn(command, logger)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Runner starts scenarios. One Runner can start any number of scenarios concurrently; each gets
// its own port, process, and Session. Unless Config.IsolateFixture is set, scenarios that
// overlap in time wait for each other, since they would share the fixture's build output.
type Runner struct {
	config       Config
	fixtureTurn  chan struct{}
	launcher     Launcher
	acquirePort  func() (int, error)
	awaitReady   func(ctx context.Context, port int, opts ports.ReadyOptions) error
	onTransition func(s Scenario, from, to State)
}

// Option customizes a Runner.
type Option func(*Runner)

func WithLauncher(launcher Launcher) Option {
	return func(r *Runner) { r.launcher = launcher }
}

func WithPortAllocator(acquire func() (int, error)) Option {
	return func(r *Runner) { r.acquirePort = acquire }
}

func WithReadinessWaiter(await func(ctx context.Context, port int, opts ports.ReadyOptions) error) Option {
	return func(r *Runner) { r.awaitReady = await }
}

// WithTransitionHook sets a function to be called on every state change of every scenario.
// It may be called from multiple goroutines.
func WithTransitionHook(hook func(s Scenario, from, to State)) Option {
	return func(r *Runner) { r.onTransition = hook }
}

func NewRunner(config Config, options ...Option) *Runner {
	if config.OutputDir == "" {
		config.OutputDir = DefaultOutputDir
	}
	if config.ReadyInterval <= 0 {
		config.ReadyInterval = ports.DefaultReadyInterval
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = ports.DefaultReadyTimeout
	}
	if config.TerminateGrace <= 0 {
		config.TerminateGrace = DefaultTerminateGrace
	}
	if config.Logger == nil {
		config.Logger = framework.NullLogger()
	}
	r := &Runner{
		config:      config,
		fixtureTurn: make(chan struct{}, 1),
		launcher:    execLauncher{},
		acquirePort: ports.Acquire,
		awaitReady:  ports.AwaitReady,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Session is a scenario whose server is running and accepting connections. Whoever holds it
// must call Close.
type Session struct {
	Scenario Scenario
	RunID    string
	Port     int

	// BaseURL is the root URL of the server, ending in "/".
	BaseURL string

	// Dir is the directory that the scenario's commands run in: the fixture, or a private copy
	// of it.
	Dir string

	runner    *Runner
	release   func()
	proc      Process
	logger    framework.Logger
	state     State
	closeOnce sync.Once
	closeErr  error
	lock      sync.Mutex
}

// Start brings a scenario up to the point where its assertions can run. If anything fails,
// whatever was already started is torn down before Start returns the error, which is a
// *SetupError or a *StartupError unless ctx was cancelled.
//
// All output, including the server's, goes to logger.
func (r *Runner) Start(ctx context.Context, sc Scenario, logger framework.Logger) (*Session, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}
	runID := uuid.NewString()
	s := &Session{
		Scenario: sc,
		RunID:    runID,
		runner:   r,
		logger: framework.TeeLogger(
			logger,
			framework.PrefixedLogger(r.config.Logger, fmt.Sprintf("[%s %s] ", sc, runID[:8])),
		),
		state: Idle,
	}

	s.transition(Cleaning)
	if err := r.acquireFixture(ctx, s); err != nil {
		if ctx.Err() != nil {
			return nil, s.abort(err)
		}
		return nil, s.abort(&SetupError{Scenario: sc.String(), Step: Cleaning, Err: err})
	}
	if err := r.clean(s.Dir, s.logger); err != nil {
		return nil, s.abort(&SetupError{Scenario: sc.String(), Step: Cleaning, Err: err})
	}

	if build, ok := sc.Build.Get(); ok {
		s.transition(Building)
		if err := r.launcher.RunSync(ctx, r.command(s.Dir, build), s.logger); err != nil {
			return nil, s.abort(&SetupError{Scenario: sc.String(), Step: Building, Err: err})
		}
	}

	s.transition(Launching)
	port, err := r.acquirePort()
	if err != nil {
		return nil, s.abort(&SetupError{Scenario: sc.String(), Step: Launching, Err: err})
	}
	s.Port = port
	s.BaseURL = fmt.Sprintf("http://localhost:%d/", port)
	proc, err := r.launcher.Spawn(r.command(s.Dir, sc.Command).WithEnv(PortEnvVar, strconv.Itoa(port)), s.logger)
	if err != nil {
		return nil, s.abort(&SetupError{Scenario: sc.String(), Step: Launching, Err: err})
	}
	s.proc = proc

	s.transition(AwaitingReady)
	timeout := r.config.ReadyTimeout
	if ms, ok := sc.ReadyTimeoutMS.Get(); ok {
		timeout = time.Duration(ms) * time.Millisecond
	}
	err = r.awaitReady(ctx, port, ports.ReadyOptions{
		Interval: r.config.ReadyInterval,
		Timeout:  timeout,
		Done:     proc.Done(),
		Exited:   proc.ExitErr,
		Logger:   s.logger,
	})
	if err != nil {
		if ctx.Err() == nil {
			err = &StartupError{Scenario: sc.String(), Port: port, Err: err}
		}
		return nil, s.abort(err)
	}

	s.transition(Asserting)
	return s, nil
}

// Run starts a scenario, calls body with the live session, and then tears the scenario down.
// Teardown happens even if body returns an error or panics; a panic is passed on afterward.
func (r *Runner) Run(ctx context.Context, sc Scenario, logger framework.Logger, body func(*Session) error) error {
	s, err := r.Start(ctx, sc, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return body(s)
}

func (r *Runner) command(dir, line string) process.Command {
	args := strings.Fields(line)
	path := r.config.CLI
	if r.config.Runtime != "" {
		path = r.config.Runtime
		args = append([]string{r.config.CLI}, args...)
	}
	return process.Command{
		Path: path,
		Args: args,
		Dir:  dir,
		Env:  r.config.Env,
	}
}

func (r *Runner) outputDir() string {
	return filepath.Clean(r.config.OutputDir)
}

// clean removes the build output directory under root. It is not an error if it does not exist.
func (r *Runner) clean(root string, logger framework.Logger) error {
	rel := r.outputDir()
	if filepath.IsAbs(rel) || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output directory %q must be inside the fixture directory", r.config.OutputDir)
	}
	dir := filepath.Join(root, rel)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	logger.Printf("Removing %s", dir)
	return os.RemoveAll(dir)
}

// PID returns the process ID of the server.
func (s *Session) PID() int {
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Logger returns the logger that receives this scenario's output.
func (s *Session) Logger() framework.Logger {
	return s.logger
}

// Close tears the scenario down: it terminates the server's process group, gives up the
// fixture, and moves to Done.
// Only the first call does anything. A non-nil result is a *process.TeardownWarning, which has
// already been logged; it does not mean the scenario failed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.transition(TearingDown)
		if s.proc != nil {
			if err := s.proc.Terminate(s.runner.config.TerminateGrace); err != nil {
				s.logger.Printf("Warning: %s", err)
				s.closeErr = err
			}
		}
		if s.release != nil {
			s.release()
		}
		s.transition(Done)
	})
	return s.closeErr
}

func (s *Session) abort(err error) error {
	s.logger.Printf("Error: %s", err)
	_ = s.Close()
	return err
}

func (s *Session) transition(to State) {
	s.lock.Lock()
	from := s.state
	s.state = to
	s.lock.Unlock()
	s.logger.Printf("Scenario %s: %s -> %s", s.Scenario, from, to)
	if s.runner.onTransition != nil {
		s.runner.onTransition(s.Scenario, from, to)
	}
}
