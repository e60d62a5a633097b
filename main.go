package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wakujs/ssr-contract-tests/browser"
	"github.com/wakujs/ssr-contract-tests/framework"
	"github.com/wakujs/ssr-contract-tests/logging"
	"github.com/wakujs/ssr-contract-tests/scenario"
	"github.com/wakujs/ssr-contract-tests/ssrtests"
)

var errTestsFailed = errors.New("some tests failed")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var params commandParams
	cmd := &cobra.Command{
		Use:   "ssr-contract-tests",
		Short: "Contract tests for server-side rendering in the Waku CLI",
		Long: `Runs the fixture app under each scenario of the matrix (by default the dev server, and
a production build followed by the production server), and checks the rendered pages in a
browser with and without JavaScript.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := params.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), params, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	params.addFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, params commandParams, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(errOut, params.debugAll)
	defer func() { _ = logger.Sync() }()

	matrix, err := params.matrix()
	if err != nil {
		return err
	}
	logger.Info("Loaded scenario matrix", zap.Int("scenarios", len(matrix)))

	driver, err := browser.Open(ctx, params.browserConfig(logging.AsFrameworkLogger(logger.Named("browser"))))
	if err != nil {
		return fmt.Errorf("could not start browser: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("Error closing browser", zap.Error(err))
		}
	}()

	runner := scenario.NewRunner(params.scenarioConfig(logging.AsFrameworkLogger(logger.Named("scenario"))))

	fmt.Fprintln(out)
	framework.PrintFilterDescription(out, params.filters)

	fmt.Fprintln(out, "Running test suite")

	testLogger := &ConsoleTestLogger{
		Out:                  out,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	results := ssrtests.RunTestSuite(ssrtests.SuiteParams{
		Runner:      runner,
		Browser:     driver,
		Matrix:      matrix,
		Parallelism: params.parallel,
		Context:     ctx,
	}, params.filters.AsFilter, testLogger)

	fmt.Fprintln(out)
	framework.PrintResults(out, results)
	if !results.OK() {
		return errTestsFailed
	}
	return nil
}
