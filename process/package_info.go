// Package process starts and stops the external commands that a test scenario depends on.
//
// One-shot commands such as a build step are run to completion with RunSync. Long-lived
// commands such as a dev server are started with Spawn, which puts the new process at the head
// of its own process group, so that Handle.Terminate can reclaim anything it forks as well.
//
// All output from a command is split into lines and written to a framework.Logger, normally the
// capturing debug logger of the test that owns the command.
package process
