package scenario_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/wakujs/ssr-contract-tests/framework"
	"github.com/wakujs/ssr-contract-tests/ports"
	"github.com/wakujs/ssr-contract-tests/process"
	"github.com/wakujs/ssr-contract-tests/scenario"
)

type fakeProcess struct {
	pid        int
	done       chan struct{}
	closeDone  sync.Once
	terminates int
	lock       sync.Mutex
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitErr() error        { return nil }

func (p *fakeProcess) Terminate(time.Duration) error {
	p.lock.Lock()
	p.terminates++
	p.lock.Unlock()
	p.closeDone.Do(func() { close(p.done) })
	return nil
}

func (p *fakeProcess) terminateCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.terminates
}

type fakeLauncher struct {
	buildErr  error
	spawnErr  error
	onBuild   func(process.Command)
	builds    []process.Command
	spawns    []process.Command
	processes []*fakeProcess
	lock      sync.Mutex
}

func (l *fakeLauncher) RunSync(ctx context.Context, command process.Command, logger framework.Logger) error {
	l.lock.Lock()
	l.builds = append(l.builds, command)
	l.lock.Unlock()
	if l.onBuild != nil {
		l.onBuild(command)
	}
	return l.buildErr
}

func (l *fakeLauncher) Spawn(command process.Command, logger framework.Logger) (scenario.Process, error) {
	if l.spawnErr != nil {
		return nil, l.spawnErr
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	p := &fakeProcess{pid: 1000 + len(l.processes), done: make(chan struct{})}
	l.spawns = append(l.spawns, command)
	l.processes = append(l.processes, p)
	return p, nil
}

type transitionRecorder struct {
	states []scenario.State
	lock   sync.Mutex
}

func (r *transitionRecorder) hook(s scenario.Scenario, from, to scenario.State) {
	r.lock.Lock()
	r.states = append(r.states, to)
	r.lock.Unlock()
}

func (r *transitionRecorder) get() []scenario.State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]scenario.State(nil), r.states...)
}

type fixture struct {
	dir      string
	isolate  bool
	workDir  string
	launcher *fakeLauncher
	recorder *transitionRecorder
	readyErr error
	ready    []int
	lock     sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		dir:      t.TempDir(),
		workDir:  t.TempDir(),
		launcher: &fakeLauncher{},
		recorder: &transitionRecorder{},
	}
}

func (f *fixture) runner() *scenario.Runner {
	nextPort := 4000
	var portLock sync.Mutex
	return scenario.NewRunner(
		scenario.Config{
			Runtime:        "node",
			CLI:            "/waku/dist/cli.js",
			Fixture:        f.dir,
			IsolateFixture: f.isolate,
			WorkDir:        f.workDir,
		},
		scenario.WithLauncher(f.launcher),
		scenario.WithPortAllocator(func() (int, error) {
			portLock.Lock()
			defer portLock.Unlock()
			nextPort++
			return nextPort, nil
		}),
		scenario.WithReadinessWaiter(func(ctx context.Context, port int, opts ports.ReadyOptions) error {
			f.lock.Lock()
			f.ready = append(f.ready, port)
			f.lock.Unlock()
			return f.readyErr
		}),
		scenario.WithTransitionHook(f.recorder.hook),
	)
}

func devScenario() scenario.Scenario {
	return scenario.Scenario{Command: "dev --with-ssr"}
}

func buildScenario() scenario.Scenario {
	return scenario.Scenario{Build: ldvalue.NewOptionalString("build --with-ssr"), Command: "start --with-ssr"}
}

func TestStartDevScenario(t *testing.T) {
	f := newFixture(t)
	s, err := f.runner().Start(context.Background(), devScenario(), nil)
	require.NoError(t, err)

	assert.Equal(t, scenario.Asserting, s.State())
	assert.Equal(t, 4001, s.Port)
	assert.Equal(t, "http://localhost:4001/", s.BaseURL)
	assert.NotEmpty(t, s.RunID)
	assert.Len(t, f.launcher.builds, 0)
	require.Len(t, f.launcher.spawns, 1)

	cmd := f.launcher.spawns[0]
	assert.Equal(t, "node", cmd.Path)
	assert.Equal(t, []string{"/waku/dist/cli.js", "dev", "--with-ssr"}, cmd.Args)
	assert.Equal(t, f.dir, cmd.Dir)
	assert.Equal(t, "4001", cmd.Env["PORT"])
	assert.Equal(t, []int{4001}, f.ready)

	require.NoError(t, s.Close())
	assert.Equal(t, scenario.Done, s.State())
	assert.Equal(t, 1, f.launcher.processes[0].terminateCount())

	assert.Equal(t, []scenario.State{
		scenario.Cleaning, scenario.Launching, scenario.AwaitingReady, scenario.Asserting,
		scenario.TearingDown, scenario.Done,
	}, f.recorder.get())
}

func TestStartBuildScenarioRunsBuildFirst(t *testing.T) {
	f := newFixture(t)
	s, err := f.runner().Start(context.Background(), buildScenario(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, f.launcher.builds, 1)
	build := f.launcher.builds[0]
	assert.Equal(t, []string{"/waku/dist/cli.js", "build", "--with-ssr"}, build.Args)
	assert.Equal(t, f.dir, build.Dir)
	_, hasPort := build.Env["PORT"]
	assert.False(t, hasPort)

	require.Len(t, f.launcher.spawns, 1)
	assert.Equal(t, []string{"/waku/dist/cli.js", "start", "--with-ssr"}, f.launcher.spawns[0].Args)

	assert.Equal(t, []scenario.State{
		scenario.Cleaning, scenario.Building, scenario.Launching, scenario.AwaitingReady, scenario.Asserting,
	}, f.recorder.get())
}

func TestStaleOutputIsRemovedBeforeBuild(t *testing.T) {
	f := newFixture(t)
	dist := filepath.Join(f.dir, "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "assets", "stale.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "package.json"), []byte("{}"), 0o644))

	distExistedAtBuild := true
	f.launcher.onBuild = func(process.Command) {
		_, err := os.Stat(dist)
		distExistedAtBuild = err == nil
	}

	s, err := f.runner().Start(context.Background(), buildScenario(), nil)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, distExistedAtBuild)
	_, err = os.Stat(filepath.Join(f.dir, "package.json"))
	assert.NoError(t, err, "fixture files outside the output directory must be kept")
}

func TestMissingOutputDirectoryIsNotAnError(t *testing.T) {
	f := newFixture(t)
	s, err := f.runner().Start(context.Background(), devScenario(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOutputDirectoryOutsideFixtureIsRejected(t *testing.T) {
	f := newFixture(t)
	runner := scenario.NewRunner(
		scenario.Config{CLI: "waku", Fixture: f.dir, OutputDir: "../elsewhere"},
		scenario.WithLauncher(f.launcher),
	)
	_, err := runner.Start(context.Background(), devScenario(), nil)

	var setupErr *scenario.SetupError
	require.True(t, errors.As(err, &setupErr), "error was %T: %s", err, err)
	assert.Equal(t, scenario.Cleaning, setupErr.Step)
	assert.Len(t, f.launcher.spawns, 0)
}

func TestBuildFailureIsSetupError(t *testing.T) {
	f := newFixture(t)
	buildErr := &process.ExitError{Command: "node cli.js build", ExitCode: 1}
	f.launcher.buildErr = buildErr

	s, err := f.runner().Start(context.Background(), buildScenario(), nil)
	assert.Nil(t, s)

	var setupErr *scenario.SetupError
	require.True(t, errors.As(err, &setupErr), "error was %T: %s", err, err)
	assert.Equal(t, scenario.Building, setupErr.Step)
	assert.Equal(t, "start --with-ssr", setupErr.Scenario)
	var exitErr *process.ExitError
	assert.True(t, errors.As(err, &exitErr))

	assert.Len(t, f.launcher.spawns, 0, "server must not be launched after a failed build")
	assert.Len(t, f.ready, 0)
	assert.Equal(t, []scenario.State{
		scenario.Cleaning, scenario.Building, scenario.TearingDown, scenario.Done,
	}, f.recorder.get())
}

func TestSpawnFailureIsSetupError(t *testing.T) {
	f := newFixture(t)
	f.launcher.spawnErr = errors.New("executable file not found")

	_, err := f.runner().Start(context.Background(), devScenario(), nil)

	var setupErr *scenario.SetupError
	require.True(t, errors.As(err, &setupErr), "error was %T: %s", err, err)
	assert.Equal(t, scenario.Launching, setupErr.Step)
	assert.Len(t, f.ready, 0, "readiness wait must not start after a failed spawn")
}

func TestReadinessTimeoutTearsDownProcess(t *testing.T) {
	f := newFixture(t)
	f.readyErr = &ports.TimeoutError{Address: "localhost:4001", Timeout: time.Second}

	_, err := f.runner().Start(context.Background(), devScenario(), nil)

	var startupErr *scenario.StartupError
	require.True(t, errors.As(err, &startupErr), "error was %T: %s", err, err)
	assert.Equal(t, 4001, startupErr.Port)
	assert.True(t, errors.Is(err, ports.ErrTimeout))

	require.Len(t, f.launcher.processes, 1)
	assert.Equal(t, 1, f.launcher.processes[0].terminateCount())
	assert.Equal(t, []scenario.State{
		scenario.Cleaning, scenario.Launching, scenario.AwaitingReady, scenario.TearingDown, scenario.Done,
	}, f.recorder.get())
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s, err := f.runner().Start(context.Background(), devScenario(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, f.launcher.processes[0].terminateCount())
}

func TestRunTearsDownAfterSuccess(t *testing.T) {
	f := newFixture(t)
	var sawState scenario.State
	err := f.runner().Run(context.Background(), devScenario(), nil, func(s *scenario.Session) error {
		sawState = s.State()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, scenario.Asserting, sawState)
	assert.Equal(t, 1, f.launcher.processes[0].terminateCount())
}

func TestRunTearsDownAfterAssertionFailure(t *testing.T) {
	f := newFixture(t)
	failure := errors.New("count: expected 3, got 2")
	err := f.runner().Run(context.Background(), devScenario(), nil, func(s *scenario.Session) error {
		return failure
	})
	assert.Equal(t, failure, err)
	assert.Equal(t, 1, f.launcher.processes[0].terminateCount())
}

func TestRunTearsDownAfterPanic(t *testing.T) {
	f := newFixture(t)
	assert.PanicsWithValue(t, "assertion blew up", func() {
		_ = f.runner().Run(context.Background(), devScenario(), nil, func(s *scenario.Session) error {
			panic("assertion blew up")
		})
	})
	assert.Equal(t, 1, f.launcher.processes[0].terminateCount())
}

func TestConcurrentScenariosAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.isolate = true
	runner := f.runner()

	const n = 4
	sessions := make([]*scenario.Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := runner.Start(context.Background(), scenario.Scenario{Command: "dev"}, nil)
			if assert.NoError(t, err) {
				sessions[i] = s
			}
		}(i)
	}
	wg.Wait()

	seenPorts := make(map[int]bool)
	seenPids := make(map[int]bool)
	for _, s := range sessions {
		require.NotNil(t, s)
		assert.False(t, seenPorts[s.Port])
		assert.False(t, seenPids[s.PID()])
		seenPorts[s.Port] = true
		seenPids[s.PID()] = true
		require.NoError(t, s.Close())
	}
	for _, p := range f.launcher.processes {
		assert.Equal(t, 1, p.terminateCount())
	}
}

func TestScenarioReadyTimeoutOverride(t *testing.T) {
	f := newFixture(t)
	var gotTimeout time.Duration
	runner := scenario.NewRunner(
		scenario.Config{CLI: "waku", Fixture: f.dir, ReadyTimeout: 30 * time.Second},
		scenario.WithLauncher(f.launcher),
		scenario.WithReadinessWaiter(func(ctx context.Context, port int, opts ports.ReadyOptions) error {
			gotTimeout = opts.Timeout
			return nil
		}),
	)
	sc := devScenario()
	sc.ReadyTimeoutMS = ldvalue.NewOptionalInt(90000)
	s, err := runner.Start(context.Background(), sc, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 90*time.Second, gotTimeout)
	assert.Equal(t, "waku", f.launcher.spawns[0].Path)
	assert.Equal(t, []string{"dev", "--with-ssr"}, f.launcher.spawns[0].Args)
}

// writeBuildOutput makes the fake build step produce dist/index.js in its working directory.
func writeBuildOutput(t *testing.T, f *fixture) {
	f.launcher.onBuild = func(cmd process.Command) {
		dist := filepath.Join(cmd.Dir, "dist")
		if assert.NoError(t, os.MkdirAll(dist, 0o755)) {
			assert.NoError(t, os.WriteFile(filepath.Join(dist, "index.js"), []byte("built"), 0o644))
		}
	}
}

type startResult struct {
	session *scenario.Session
	err     error
}

func startAsync(ctx context.Context, runner *scenario.Runner, sc scenario.Scenario) <-chan startResult {
	ch := make(chan startResult, 1)
	go func() {
		s, err := runner.Start(ctx, sc, nil)
		ch <- startResult{s, err}
	}()
	return ch
}

func TestOverlappingScenariosTakeTurnsWithSharedFixture(t *testing.T) {
	f := newFixture(t)
	writeBuildOutput(t, f)
	runner := f.runner()
	built := filepath.Join(f.dir, "dist", "index.js")

	production, err := runner.Start(context.Background(), buildScenario(), nil)
	require.NoError(t, err)
	require.FileExists(t, built)

	dev := startAsync(context.Background(), runner, devScenario())
	select {
	case r := <-dev:
		t.Fatalf("second scenario started while the first still held the fixture (err: %v)", r.err)
	case <-time.After(200 * time.Millisecond):
	}
	assert.FileExists(t, built, "build output of the running scenario must not be removed")
	assert.Len(t, f.launcher.spawns, 1)

	require.NoError(t, production.Close())

	select {
	case r := <-dev:
		require.NoError(t, r.err)
		assert.Equal(t, f.dir, r.session.Dir)
		assert.NoFileExists(t, built, "the next scenario cleans the fixture once it has its turn")
		require.NoError(t, r.session.Close())
	case <-time.After(5 * time.Second):
		t.Fatal("second scenario did not start after the first was closed")
	}
}

func TestWaitingForFixtureCanBeCancelled(t *testing.T) {
	f := newFixture(t)
	runner := f.runner()

	first, err := runner.Start(context.Background(), devScenario(), nil)
	require.NoError(t, err)
	defer first.Close()

	ctx, cancel := context.WithCancel(context.Background())
	second := startAsync(ctx, runner, devScenario())
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case r := <-second:
		assert.True(t, errors.Is(r.err, context.Canceled), "error was %v", r.err)
		assert.Nil(t, r.session)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.Len(t, f.launcher.spawns, 1)

	// the cancelled scenario must not have taken the fixture with it
	require.NoError(t, first.Close())
	third, err := runner.Start(context.Background(), devScenario(), nil)
	require.NoError(t, err)
	require.NoError(t, third.Close())
}

func TestIsolatedScenariosDoNotShareBuildOutput(t *testing.T) {
	f := newFixture(t)
	f.isolate = true
	writeBuildOutput(t, f)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "package.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "dist"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "dist", "stale.js"), []byte("x"), 0o644))
	runner := f.runner()

	production, err := runner.Start(context.Background(), buildScenario(), nil)
	require.NoError(t, err)
	dev, err := runner.Start(context.Background(), devScenario(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, f.dir, production.Dir)
	assert.NotEqual(t, f.dir, dev.Dir)
	assert.NotEqual(t, production.Dir, dev.Dir)
	assert.Equal(t, production.Dir, f.launcher.builds[0].Dir)
	assert.Equal(t, dev.Dir, f.launcher.spawns[1].Dir)

	assert.FileExists(t, filepath.Join(production.Dir, "dist", "index.js"))
	assert.NoFileExists(t, filepath.Join(production.Dir, "dist", "stale.js"))
	assert.FileExists(t, filepath.Join(dev.Dir, "package.json"))
	assert.NoDirExists(t, filepath.Join(dev.Dir, "dist"))

	// the original fixture is never touched
	assert.FileExists(t, filepath.Join(f.dir, "dist", "stale.js"))
	assert.NoFileExists(t, filepath.Join(f.dir, "dist", "index.js"))

	require.NoError(t, production.Close())
	require.NoError(t, dev.Close())
	assert.NoDirExists(t, production.Dir)
	assert.NoDirExists(t, dev.Dir)
}
