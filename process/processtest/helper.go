// Package processtest lets tests use the test binary itself as a stand-in for the external
// commands that the harness drives: a build step that succeeds or fails, a server that listens
// on $PORT, or a wrapper that forks a long-lived child.
//
// A test package that uses it must call RunHelperIfRequested at the start of TestMain.
package processtest

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wakujs/ssr-contract-tests/process"
)

const helperEnvVar = "SSR_CONTRACT_TESTS_HELPER"

// Helper modes.
const (
	// ModeOutput writes each argument after the first to stdout, and the same with an "err: "
	// prefix to stderr, then exits with the status given by the first argument.
	ModeOutput = "output"

	// ModeSleep does nothing for a long time.
	ModeSleep = "sleep"

	// ModeIgnoreTerm ignores SIGTERM and then does nothing for a long time.
	ModeIgnoreTerm = "ignore-term"

	// ModeFork starts a ModeSleep child in the same process group, prints "child <pid>", and
	// then does nothing for a long time.
	ModeFork = "fork"

	// ModeServe waits for the duration given by the first argument, if any, and then serves
	// HTTP on localhost:$PORT until it is killed. Every request gets a 200 status.
	ModeServe = "serve"

	// ModeExit exits immediately with the status given by the first argument.
	ModeExit = "exit"
)

const longTime = 5 * time.Minute

// Command returns a command that runs the current test binary as a helper process.
func Command(mode string, args ...string) process.Command {
	return process.Command{
		Path: os.Args[0],
		Args: append([]string{"-test.run=^$", "--"}, args...),
		Env:  Env(mode),
	}
}

// Env returns the environment variables that make the test binary run as a helper in the
// given mode, for commands that are built some other way than by Command.
func Env(mode string) map[string]string {
	return map[string]string{helperEnvVar: mode}
}

// RunHelperIfRequested runs a helper mode and exits, if this process was started by Command.
// Otherwise it returns immediately.
func RunHelperIfRequested() {
	mode := os.Getenv(helperEnvVar)
	if mode == "" {
		return
	}
	os.Exit(runHelper(mode, helperArgs()))
}

func helperArgs() []string {
	for i, a := range os.Args {
		if a == "--" {
			return os.Args[i+1:]
		}
	}
	return nil
}

func runHelper(mode string, args []string) int {
	switch mode {
	case ModeOutput:
		for _, line := range args[1:] {
			fmt.Fprintln(os.Stdout, line)
			fmt.Fprintln(os.Stderr, "err: "+line)
		}
		return intArg(args, 0)
	case ModeSleep:
		time.Sleep(longTime)
	case ModeIgnoreTerm:
		signal.Ignore(syscall.SIGTERM)
		fmt.Println("ignoring SIGTERM")
		time.Sleep(longTime)
	case ModeFork:
		child := exec.Command(os.Args[0], "-test.run=^$")
		child.Env = append(os.Environ(), helperEnvVar+"="+ModeSleep)
		if err := child.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("child %d\n", child.Process.Pid)
		time.Sleep(longTime)
	case ModeServe:
		if len(args) > 0 {
			if d, err := time.ParseDuration(args[0]); err == nil {
				time.Sleep(d)
			}
		}
		listener, err := net.Listen("tcp", "localhost:"+os.Getenv("PORT"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("listening on %s\n", listener.Addr())
		_ = http.Serve(listener, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	case ModeExit:
		return intArg(args, 0)
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 2
	}
	return 0
}

func intArg(args []string, i int) int {
	if i >= len(args) {
		return 0
	}
	n, _ := strconv.Atoi(args[i])
	return n
}
