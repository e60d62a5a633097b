// Package ssrtests contains the server-side rendering contract tests: for every scenario in the
// matrix, the framework's server is started against the fixture app, and a browser checks the
// first paint and the client-side counter.
package ssrtests
