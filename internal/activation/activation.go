// Package activation provides systemd socket activation for the webhook
// listener, so the serve mode can run as a socket-activated user unit.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Systemd passes activated file descriptors starting at fd 3.
const firstFD = 3

// Listener returns the systemd-activated listener, if any. It returns nil
// when socket activation is absent or addressed to a different process;
// callers then fall back to a regular listener. At most one socket is
// supported.
func Listener() (net.Listener, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		return nil, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if numFDs < 1 {
		return nil, nil
	}
	if numFDs > 1 {
		return nil, fmt.Errorf("expected a single activated socket, got %d", numFDs)
	}

	file := os.NewFile(uintptr(firstFD), "LISTEN_FD_3")
	if file == nil {
		return nil, fmt.Errorf("invalid activated file descriptor")
	}
	defer func() {
		_ = file.Close()
	}()

	ln, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("failed to adopt activated socket: %w", err)
	}
	return ln, nil
}
