package process

import (
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/alessio/shellescape"
)

// Command describes an external command to run.
type Command struct {
	// Path is the executable, either an absolute path or a name to look up in PATH.
	Path string

	// Args are the command arguments, not including the executable.
	Args []string

	// Dir is the working directory. If empty, the harness's own working directory is used.
	Dir string

	// Env contains environment variables to set for the command, on top of the harness's own
	// environment. A variable here replaces an inherited variable with the same name.
	Env map[string]string
}

// String returns the command as a shell-quoted line, for logging.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellescape.Quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, shellescape.Quote(a))
	}
	return strings.Join(parts, " ")
}

// WithEnv returns a copy of the command with an additional environment variable.
func (c Command) WithEnv(name, value string) Command {
	env := make(map[string]string, len(c.Env)+1)
	for k, v := range c.Env {
		env[k] = v
	}
	env[name] = value
	c.Env = env
	return c
}

func (c Command) environ() []string {
	env := os.Environ()
	names := make([]string, 0, len(c.Env))
	for name := range c.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// exec keeps the last value for a duplicated name
		env = append(env, name+"="+c.Env[name])
	}
	return env
}

func (c Command) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.environ()
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		if err := killGroup(cmd.Process.Pid); err != nil && !isNoProcess(err) {
			return err
		}
		return nil
	}
	cmd.WaitDelay = waitDelay
	return cmd
}
