package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/wakujs/ssr-contract-tests/framework"
)

const (
	DefaultHost          = "localhost"
	DefaultReadyInterval = 200 * time.Millisecond
	DefaultReadyTimeout  = 30 * time.Second
)

// ErrTimeout is matched by errors.Is for any *TimeoutError.
var ErrTimeout = errors.New("timed out waiting for port")

// ReadyOptions controls AwaitReady. Zero values select the defaults.
type ReadyOptions struct {
	Host     string
	Interval time.Duration
	Timeout  time.Duration

	// Done, if not nil, is a channel that is closed when the server process has exited, so
	// that there is no point in waiting any longer.
	Done <-chan struct{}

	// Exited, if not nil, is called after Done is closed to describe why the process exited.
	Exited func() error

	Logger framework.Logger
}

// TimeoutError is returned by AwaitReady if the port did not accept a connection in time.
type TimeoutError struct {
	Address string
	Timeout time.Duration

	// LastErr is the error from the last connection attempt.
	LastErr error

	// ProcessExited is true if waiting stopped early because the server process exited.
	ProcessExited bool
	ExitErr       error
}

func (e *TimeoutError) Error() string {
	if e.ProcessExited {
		msg := fmt.Sprintf("server process exited before %s accepted a connection", e.Address)
		if e.ExitErr != nil {
			msg += ": " + e.ExitErr.Error()
		}
		return msg
	}
	return fmt.Sprintf("%s did not accept a connection within %s; last error: %s", e.Address, e.Timeout, e.LastErr)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// AwaitReady blocks until a TCP connection to the port succeeds, polling at a fixed interval.
// If the port is already live it returns after the first attempt. It returns a *TimeoutError
// if the timeout elapses first, or ctx.Err() if ctx is cancelled.
func AwaitReady(ctx context.Context, port int, opts ReadyOptions) error {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultReadyInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultReadyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = framework.NullLogger()
	}
	address := net.JoinHostPort(opts.Host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: opts.Interval}

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	opts.Logger.Printf("Waiting for %s to accept connections", address)
	started := time.Now()
	attempts := 0
	for {
		attempts++
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			opts.Logger.Printf("%s is ready after %s (%d attempts)", address, time.Since(started).Round(time.Millisecond), attempts)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-opts.Done:
			timeoutErr := &TimeoutError{Address: address, Timeout: opts.Timeout, LastErr: err, ProcessExited: true}
			if opts.Exited != nil {
				timeoutErr.ExitErr = opts.Exited()
			}
			return timeoutErr
		case <-deadline.C:
			return &TimeoutError{Address: address, Timeout: opts.Timeout, LastErr: err}
		case <-ticker.C:
		}
	}
}
