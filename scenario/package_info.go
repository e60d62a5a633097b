// Package scenario runs one entry of a scenario matrix against an external framework CLI: it
// cleans stale build output, optionally runs a build step, launches the server on a fresh port,
// waits until the port is live, and guarantees that the server's process group is torn down
// afterward, however the scenario ends.
//
// A scenario moves through these states:
//
//	Idle → Cleaning → (Building) → Launching → AwaitingReady → Asserting → TearingDown → Done
//
// An error in any state moves it straight to TearingDown. Runner.Start performs everything up
// to Asserting and returns a Session; Session.Close performs the teardown, exactly once.
// Runner.Run wraps both around a function that makes the scenario's assertions.
package scenario
