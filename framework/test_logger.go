package framework

// TestLogger receives progress notifications for a test run. When scenarios run in parallel,
// calls for different tests may interleave, but calls are never concurrent with each other.
type TestLogger interface {
	TestStarted(id TestID)

	// TestError is called for each failure as soon as it is recorded.
	TestError(id TestID, err error)

	// TestFinished is called once the test and all of its subtests are done. debugOutput is
	// everything the test logged with Debug, including output from processes it started.
	TestFinished(id TestID, failed bool, debugOutput CapturedOutput)

	// TestSkipped is called instead of TestFinished for a test that was skipped, whether by
	// the filter or by the test itself.
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (nullTestLogger) TestStarted(TestID)                        {}
func (nullTestLogger) TestError(TestID, error)                   {}
func (nullTestLogger) TestFinished(TestID, bool, CapturedOutput) {}
func (nullTestLogger) TestSkipped(TestID, string)                {}
