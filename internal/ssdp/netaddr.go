package ssdp

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HostString formats the IP of addr, embedding the IPv6 zone when present.
func HostString(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	if addr.Zone != "" {
		return addr.IP.String() + "%" + addr.Zone
	}
	return addr.IP.String()
}

// HostPortString formats addr as host:port, bracketing IPv6 hosts.
func HostPortString(addr *net.UDPAddr) string {
	host := addr.IP.String()
	if addr.Zone != "" {
		host += "%" + addr.Zone
	}
	if strings.Contains(host, ":") {
		return fmt.Sprintf("[%s]:%d", host, addr.Port)
	}
	return fmt.Sprintf("%s:%d", host, addr.Port)
}

// AdjustURLForScope rewrites the host of rawURL to embed the zone of addr
// when addr carries one and the URL host is a link-local IPv6 address. Other
// URLs are returned unchanged. A link-local description URL is unreachable
// without the zone selecting the interface it was learned on.
func AdjustURLForScope(rawURL string, addr *net.UDPAddr) string {
	if addr == nil || addr.Zone == "" {
		return rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	hostname := parsed.Hostname()
	if strings.Contains(hostname, "%") {
		return rawURL
	}
	ip := net.ParseIP(hostname)
	if ip == nil || !ip.IsLinkLocalUnicast() || ip.To4() != nil {
		return rawURL
	}

	host := fmt.Sprintf("[%s%%%s]", hostname, addr.Zone)
	if port := parsed.Port(); port != "" {
		host += ":" + port
	}
	parsed.Host = host
	return parsed.String()
}

// usableLocation reports whether a LOCATION header value points at an
// address worth tracking. Loopback and IPv4 link-local locations indicate a
// misconfigured or self-originating device and are rejected.
func usableLocation(location string) bool {
	if !strings.HasPrefix(location, "http") {
		return false
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return false
	}
	hostname := parsed.Hostname()
	if zoneless, _, found := strings.Cut(hostname, "%"); found {
		hostname = zoneless
	}
	ip := net.ParseIP(hostname)
	if ip == nil {
		return true
	}
	if ip.IsLoopback() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil && ip.IsLinkLocalUnicast() {
		return false
	}
	return true
}

// locationFamily classifies the host of a location URL so that locations are
// only compared within the same IP family.
func locationFamily(location string) string {
	parsed, err := url.Parse(location)
	if err != nil {
		return "name"
	}
	hostname := parsed.Hostname()
	if zoneless, _, found := strings.Cut(hostname, "%"); found {
		hostname = zoneless
	}
	ip := net.ParseIP(hostname)
	switch {
	case ip == nil:
		return "name"
	case ip.To4() != nil:
		return "ipv4"
	default:
		return "ipv6"
	}
}

// externalProbeAddr is dialled (without traffic) to learn the local IP used
// to reach the outside world for the given family.
func externalProbeAddr(ipv6 bool) string {
	if ipv6 {
		return "[2001::1]:80"
	}
	return "1.1.1.1:80"
}

// SourceAddressForTarget derives a local source address suitable for talking
// to target. The port is left at zero so the OS assigns one; the zone of an
// IPv6 target is carried over to the source.
func SourceAddressForTarget(target *net.UDPAddr) (*net.UDPAddr, error) {
	ipv6 := target.IP.To4() == nil

	probe := HostPortString(target)
	if target.IP.IsMulticast() || target.IP.IsUnspecified() {
		probe = externalProbeAddr(ipv6)
	}

	conn, err := net.Dial("udp", probe)
	if err != nil {
		conn, err = net.Dial("udp", externalProbeAddr(ipv6))
	}
	if err != nil {
		// No route at all; fall back to the unspecified address.
		ip := net.IPv4zero
		if ipv6 {
			ip = net.IPv6unspecified
		}
		return &net.UDPAddr{IP: ip, Zone: target.Zone}, nil
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("ssdp: unexpected local address type %T", conn.LocalAddr())
	}
	source := &net.UDPAddr{IP: local.IP, Zone: local.Zone}
	if source.Zone == "" {
		source.Zone = target.Zone
	}
	return source, nil
}

// ResolveTarget parses a "host", "host:port" or "[host%zone]:port" string
// into a UDP address, defaulting the port to the SSDP port.
func ResolveTarget(target string) (*net.UDPAddr, error) {
	if target == "" {
		return DefaultIPv4Target(), nil
	}
	if !strings.Contains(target, ":") || (strings.Contains(target, ":") && !strings.Contains(target, "[") && strings.Count(target, ":") > 1) {
		// Bare host (IPv4 name or unbracketed IPv6): default the port.
		target = net.JoinHostPort(target, fmt.Sprintf("%d", Port))
	}
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target, err)
	}
	if addr.Port == 0 {
		addr.Port = Port
	}
	return addr, nil
}
