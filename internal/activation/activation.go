// Package activation hands out the daemon's HTTP listener, preferring a
// socket passed in by systemd.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Systemd passes file descriptors starting at fd 3
const firstFD = 3

// Listeners returns the systemd-activated listeners, or nil when the process
// was not socket activated. LISTEN_PID must match the current process.
func Listeners() ([]net.Listener, error) {
	pid, ok, err := envInt("LISTEN_PID")
	if err != nil || !ok || pid != os.Getpid() {
		return nil, err
	}
	numFDs, ok, err := envInt("LISTEN_FDS")
	if err != nil || !ok || numFDs < 1 {
		return nil, err
	}

	listeners := make([]net.Listener, 0, numFDs)
	for i := 0; i < numFDs; i++ {
		l, err := fileListener(firstFD+i, i)
		if err != nil {
			closeAll(listeners)
			return nil, err
		}
		listeners = append(listeners, l)
	}

	// Child processes such as si must not inherit the sockets
	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return listeners, nil
}

// envInt reads an integer variable; ok is false when it is unset.
func envInt(name string) (int, bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return n, true, nil
}

func fileListener(fd, index int) (net.Listener, error) {
	file := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", index))
	if file == nil {
		return nil, fmt.Errorf("failed to create file for fd %d", fd)
	}
	defer func() {
		_ = file.Close()
	}()

	l, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
	}
	return l, nil
}

func closeAll(listeners []net.Listener) {
	for _, l := range listeners {
		_ = l.Close()
	}
}

// Listener returns the first socket-activated listener, or listens on addr
// when the process was not activated. The bool reports activation. Extra
// activated sockets are closed.
func Listener(addr string) (net.Listener, bool, error) {
	listeners, err := Listeners()
	if err != nil {
		return nil, false, err
	}
	if len(listeners) > 0 {
		closeAll(listeners[1:])
		return listeners[0], true, nil
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return l, false, nil
}
