package scenario

import "fmt"

// SetupError means that a scenario could not get as far as starting its server: stale output
// could not be removed, the build step failed, or the server command could not be started.
type SetupError struct {
	Scenario string
	Step     State
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("scenario %q failed during %s: %s", e.Scenario, e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// StartupError means that the server was started but its port never became ready. Err is
// normally a *ports.TimeoutError.
type StartupError struct {
	Scenario string
	Port     int
	Err      error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("scenario %q: server on port %d did not become ready: %s", e.Scenario, e.Port, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
