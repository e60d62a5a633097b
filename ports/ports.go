// Package ports finds a free TCP port for a server under test, and waits for that server to
// start accepting connections on it.
package ports

import (
	"fmt"
	"net"
)

// Acquire asks the OS for a currently unused TCP port on the loopback interface.
//
// The port is only known to be free at the moment of the check: it is released again before
// Acquire returns, so that the server under test can bind to it. Concurrent calls get distinct
// ports from the OS's ephemeral range unless another process takes one in between.
func Acquire() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("could not allocate a port: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return 0, fmt.Errorf("could not release port %d: %w", port, err)
	}
	return port, nil
}
