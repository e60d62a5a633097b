package ssrtests

import (
	"context"

	"github.com/wakujs/ssr-contract-tests/browser"
	"github.com/wakujs/ssr-contract-tests/framework"
	"github.com/wakujs/ssr-contract-tests/scenario"
)

// SuiteParams are the collaborators for a test run.
type SuiteParams struct {
	Runner  *scenario.Runner
	Browser browser.Driver
	Matrix  []scenario.Scenario

	// Parallelism is the number of scenarios that may run at the same time. Values below 2
	// run them one after another.
	Parallelism int

	// Context, if not nil, is used for starting scenarios and opening pages.
	Context context.Context
}

// ScenarioTestName returns the name of the test for a scenario.
func ScenarioTestName(sc scenario.Scenario) string {
	return "ssr-swr: " + sc.String()
}

func RunTestSuite(
	params SuiteParams,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	env := &environment{
		ctx:     params.Context,
		runner:  params.Runner,
		browser: params.Browser,
	}
	if env.ctx == nil {
		env.ctx = context.Background()
	}
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		subtests := make([]framework.Subtest, 0, len(params.Matrix))
		for _, sc := range params.Matrix {
			sc := sc
			subtests = append(subtests, framework.Subtest{
				Name: ScenarioTestName(sc),
				Action: func(c *framework.Context) {
					t := newTestScope(c, env, nil)
					defer t.close()
					t.RunScenario(sc, DoCounterTests)
				},
			})
		}
		c.Parallel(params.Parallelism, subtests...)
	})
}
