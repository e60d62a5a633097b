package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/wakujs/ssr-contract-tests/framework"
)

const (
	// waitDelay bounds how long Wait keeps reading output after the command itself has exited,
	// for when a descendant is still holding the pipes open.
	waitDelay = 5 * time.Second

	tailLines = 20
)

var errNotExited = errors.New("process did not exit after SIGKILL")

// RunSync runs a command to completion, logging its output. If the command exits with a
// nonzero status, the error is an *ExitError. If ctx is cancelled, the command's whole process
// group is killed.
func RunSync(ctx context.Context, command Command, logger framework.Logger) error {
	if logger == nil {
		logger = framework.NullLogger()
	}
	tail := newTailBuffer(tailLines)
	stdout := newLineWriter("stdout", logger, tail)
	stderr := newLineWriter("stderr", logger, tail)

	cmd := command.build(ctx)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Printf("Running: %s", command)
	started := time.Now()
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err == nil {
		logger.Printf("Command finished in %s", time.Since(started).Round(time.Millisecond))
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", command, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: command.String(), ExitCode: exitErr.ExitCode(), Output: tail.Lines()}
	}
	return fmt.Errorf("could not run %s: %w", command, err)
}

// Handle is a running process started by Spawn. Whoever holds it is responsible for calling
// Terminate.
type Handle struct {
	command       Command
	cmd           *exec.Cmd
	pid           int
	logger        framework.Logger
	stdout        *lineWriter
	stderr        *lineWriter
	done          chan struct{}
	exitErr       error
	terminateOnce sync.Once
	terminateErr  error
	lock          sync.Mutex
}

// Spawn starts a command in its own process group and returns as soon as the process exists.
// The command's output is logged until it exits.
func Spawn(command Command, logger framework.Logger) (*Handle, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}
	h := &Handle{
		command: command,
		logger:  logger,
		stdout:  newLineWriter("stdout", logger, nil),
		stderr:  newLineWriter("stderr", logger, nil),
		done:    make(chan struct{}),
	}
	h.cmd = command.build(context.Background())
	h.cmd.Stdout = h.stdout
	h.cmd.Stderr = h.stderr

	if err := h.cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start %s: %w", command, err)
	}
	h.pid = h.cmd.Process.Pid
	logger.Printf("Started process %d: %s", h.pid, command)

	go h.wait()
	return h, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.stdout.Flush()
	h.stderr.Flush()
	h.lock.Lock()
	h.exitErr = err
	h.lock.Unlock()
	if err == nil {
		h.logger.Printf("Process %d exited normally", h.pid)
	} else {
		h.logger.Printf("Process %d exited: %s", h.pid, err)
	}
	close(h.done)
}

// Pid returns the process ID, which is also the ID of its process group.
func (h *Handle) Pid() int {
	return h.pid
}

// Command returns the command that was started.
func (h *Handle) Command() Command {
	return h.command
}

// Done returns a channel that is closed when the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitErr returns the result of waiting for the process. It is only meaningful after Done is
// closed.
func (h *Handle) ExitErr() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.exitErr
}

// Terminate stops the process and everything else in its process group: first with SIGTERM,
// then with SIGKILL if the process is still running after the grace period. A process group
// that no longer exists is not an error. Only the first call does anything; later calls return
// the same result.
func (h *Handle) Terminate(grace time.Duration) error {
	h.terminateOnce.Do(func() {
		h.terminateErr = h.terminate(grace)
	})
	return h.terminateErr
}

func (h *Handle) terminate(grace time.Duration) error {
	select {
	case <-h.done:
		// The leader is gone, but anything it forked may still be running in its group.
		h.logger.Printf("Process %d had already exited; cleaning up its process group", h.pid)
	default:
		h.logger.Printf("Sending SIGTERM to process group %d", h.pid)
		if err := terminateGroup(h.pid); err != nil && !isNoProcess(err) {
			return &TeardownWarning{Pid: h.pid, Err: err}
		}
		timer := time.NewTimer(grace)
		select {
		case <-h.done:
		case <-timer.C:
			h.logger.Printf("Process %d still running after %s", h.pid, grace)
		}
		timer.Stop()
	}

	if err := killGroup(h.pid); err != nil && !isNoProcess(err) {
		return &TeardownWarning{Pid: h.pid, Err: err}
	}

	timer := time.NewTimer(waitDelay + time.Second)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return &TeardownWarning{Pid: h.pid, Err: errNotExited}
	}
}
