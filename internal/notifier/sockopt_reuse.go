//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package notifier

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets the notifying server and a listening client share the
// multicast port on one host.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
