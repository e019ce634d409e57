//go:build windows

package ssdp

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// controlReuseAddr enables SO_REUSEADDR before bind so multiple SSDP
// listeners can share the well-known port.
func controlReuseAddr(network, address string, c syscall.RawConn) error {
	var soErr error
	err := c.Control(func(fd uintptr) {
		soErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return soErr
}
