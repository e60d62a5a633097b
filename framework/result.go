package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Counts returns the number of tests that passed, failed, and were skipped. A test with
// subtests is counted along with its subtests.
func (r Results) Counts() (passed, failed, skipped int) {
	failedIDs := make(map[string]bool, len(r.Failures))
	for _, f := range r.Failures {
		failedIDs[f.TestID.String()] = true
	}
	for _, t := range r.Tests {
		switch {
		case failedIDs[t.TestID.String()]:
			failed++
		case t.Skipped:
			skipped++
		default:
			passed++
		}
	}
	return
}

type TestID struct {
	Path []string
}

// Plus returns a new TestID for a subtest of this one.
func (t TestID) Plus(name string) TestID {
	return TestID{Path: append(append([]string(nil), t.Path...), name)}
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

// PrintResults writes a summary of the test run, listing every failed test.
func PrintResults(out io.Writer, results Results) {
	passed, failed, skipped := results.Counts()
	if results.OK() {
		color.New(color.FgGreen).Fprintf(out, "All tests passed (%d passed, %d skipped)\n", passed, skipped)
		return
	}
	color.New(color.FgRed).Fprintf(out, "FAILED TESTS (%d failed, %d passed, %d skipped):\n", failed, passed, skipped)
	for _, f := range results.Failures {
		fmt.Fprintf(out, "  * %s\n", f.TestID)
		for _, err := range f.Errors {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(out, "      %s\n", line)
			}
		}
	}
}
