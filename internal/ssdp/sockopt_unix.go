//go:build !windows

package ssdp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuseAddr enables SO_REUSEADDR before bind so multiple SSDP
// listeners can share the well-known port.
func controlReuseAddr(network, address string, c syscall.RawConn) error {
	var soErr error
	err := c.Control(func(fd uintptr) {
		soErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return soErr
}
