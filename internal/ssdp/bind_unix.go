//go:build !windows

package ssdp

import "net"

// listenAddress picks the bind address for a (source, target) pair. On POSIX
// systems a socket receiving multicast binds the group address itself; the
// Windows build binds the source address instead.
func listenAddress(source, target *net.UDPAddr) *net.UDPAddr {
	if !target.IP.IsMulticast() {
		return source
	}
	zone := source.Zone
	if zone == "" {
		zone = target.Zone
	}
	return &net.UDPAddr{IP: target.IP, Port: target.Port, Zone: zone}
}
