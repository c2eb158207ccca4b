//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package notifier

import "syscall"

func reuseAddr(string, string, syscall.RawConn) error {
	return nil
}
