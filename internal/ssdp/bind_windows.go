//go:build windows

package ssdp

import "net"

// listenAddress picks the bind address for a (source, target) pair. Windows
// refuses to bind a multicast group address, so the source address is bound
// and the group join routes traffic to the socket.
func listenAddress(source, target *net.UDPAddr) *net.UDPAddr {
	addr := &net.UDPAddr{IP: source.IP, Port: source.Port, Zone: source.Zone}
	if target.IP.IsMulticast() {
		addr.Port = target.Port
	}
	return addr
}
