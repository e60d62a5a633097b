// Package framework contains the low-level implementation of test harness infrastructure
// that is independent of what is being tested.
//
// There is a general notion of a test context which is similar to Go's *testing.T, allowing
// pieces of test logic to be associated with a test identifier and to accumulate
// success/failure results. Each context has its own capturing debug logger; anything written
// to it, including the output of subprocesses started on the test's behalf, is shown only if
// the test logger asks for it.
//
// The domain-specific code that knows what is being tested is responsible for providing a
// domain-specific test API on top of the test context.
package framework
