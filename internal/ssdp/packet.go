package ssdp

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	requestLineNotify  = "NOTIFY * HTTP/1.1"
	requestLineMSearch = "M-SEARCH * HTTP/1.1"
	statusLineOK       = "HTTP/1.1 200 OK"
)

// Packet is a decoded SSDP datagram: the wire headers plus receive metadata.
// The metadata fields correspond to the synthetic underscore-prefixed entries
// the protocol layer derives on receipt; they are never re-encoded.
type Packet struct {
	RequestLine string
	Headers     *Headers

	// Timestamp is the receipt time, used for cache-control expiry.
	Timestamp time.Time
	// RemoteAddr and LocalAddr are the sender and receiver socket addresses.
	RemoteAddr *net.UDPAddr
	LocalAddr  *net.UDPAddr
	// Host is the sender host, scope-adjusted for link-local IPv6.
	Host string
	Port int
	// UDN is the unique device name parsed from the USN header, if any.
	UDN string
	// Source tags which listener channel produced the packet.
	Source Source
	// OriginalLocation holds the LOCATION value before scope adjustment,
	// when an adjustment was applied.
	OriginalLocation string
}

// Clone returns a copy of the packet with an independent header map.
func (p *Packet) Clone() *Packet {
	clone := *p
	if p.Headers != nil {
		clone.Headers = p.Headers.Clone()
	}
	return &clone
}

// Encode serialises a status or request line and headers into an SSDP
// datagram: CRLF-joined lines terminated by a blank line, no body.
func Encode(startLine string, headers *Headers) []byte {
	var b bytes.Buffer
	b.WriteString(startLine)
	b.WriteString("\r\n")
	if headers != nil {
		headers.Each(func(key, value string) {
			b.WriteString(key)
			b.WriteString(":")
			b.WriteString(value)
			b.WriteString("\r\n")
		})
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// BuildSearchPacket constructs an M-SEARCH request for the given multicast
// target, maximum response delay and search target.
func BuildSearchPacket(target *net.UDPAddr, mx int, searchTarget string) []byte {
	headers := HeadersFrom(
		"HOST", HostPortString(target),
		"MAN", `"ssdp:discover"`,
		"MX", fmt.Sprintf("%d", mx),
		"ST", searchTarget,
	)
	return Encode(requestLineMSearch, headers)
}

// IsValidPacket reports whether data looks like a decodable SSDP message.
// Foreign UDP traffic sharing the port fails this check and is dropped.
func IsValidPacket(data []byte) bool {
	return len(data) > 0 &&
		bytes.ContainsRune(data, '\n') &&
		(bytes.HasPrefix(data, []byte(requestLineNotify)) ||
			bytes.HasPrefix(data, []byte(requestLineMSearch)) ||
			bytes.HasPrefix(data, []byte(statusLineOK)))
}

// Decode parses an SSDP datagram received from remoteAddr on localAddr.
// The first line is kept verbatim as the request line; remaining lines are
// parsed as colon-separated headers. A missing terminating blank line is
// tolerated. Beyond the wire headers, the returned packet carries receipt
// metadata and, when a USN header is parseable, the device's UDN. A LOCATION
// header is adjusted for link-local IPv6 scope.
func Decode(data []byte, localAddr, remoteAddr *net.UDPAddr) (*Packet, error) {
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("ssdp: packet too short")
	}

	pkt := &Packet{
		RequestLine: strings.TrimSpace(lines[0]),
		Headers:     NewHeaders(),
		Timestamp:   time.Now(),
		LocalAddr:   localAddr,
		RemoteAddr:  remoteAddr,
	}

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("ssdp: invalid header line %q", line)
		}
		pkt.Headers.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	if remoteAddr != nil {
		pkt.Host = HostString(remoteAddr)
		pkt.Port = remoteAddr.Port
	}

	if location, ok := pkt.Headers.Lookup("location"); ok {
		adjusted := AdjustURLForScope(location, remoteAddr)
		if adjusted != location {
			pkt.OriginalLocation = location
			pkt.Headers.Set(pkt.Headers.CanonicalKey("location"), adjusted)
		}
	}

	pkt.UDN = UDNFromUSN(pkt.Headers.Get("usn"))

	return pkt, nil
}

// UDNFromUSN extracts the unique device name from a USN header value: the
// part before the first "::", accepted only when it carries the uuid: prefix.
// Non-UPnP chatter seen on the shared port must not yield a UDN.
func UDNFromUSN(usn string) string {
	if !strings.HasPrefix(usn, "uuid:") {
		return ""
	}
	udn, _, _ := strings.Cut(usn, "::")
	return udn
}
