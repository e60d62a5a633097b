package process

import (
	"fmt"
	"strings"
)

// ExitError is returned by RunSync when a command exits with a nonzero status.
type ExitError struct {
	Command  string
	ExitCode int

	// Output is the last few lines that the command wrote to stdout or stderr.
	Output []string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %s exited with status %d", e.Command, e.ExitCode)
	if len(e.Output) > 0 {
		msg += "; last output:\n  " + strings.Join(e.Output, "\n  ")
	}
	return msg
}

// TeardownWarning is returned by Handle.Terminate when a signal could not be delivered to the
// process group, or the process did not exit after being killed. It does not mean the test
// failed, but the process may have been leaked.
type TeardownWarning struct {
	Pid int
	Err error
}

func (w *TeardownWarning) Error() string {
	return fmt.Sprintf("could not terminate process group %d: %s", w.Pid, w.Err)
}

func (w *TeardownWarning) Unwrap() error {
	return w.Err
}
