package ssdp

import (
	"net"
	"strings"
	"testing"
)

func remote(host string, port int, zone string) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(host), Port: port, Zone: zone}
}

func decode(t *testing.T, lines ...string) *Packet {
	t.Helper()
	raw := strings.Join(lines, "\r\n") + "\r\n\r\n"
	pkt, err := Decode([]byte(raw), nil, remote("192.168.1.50", 1900, ""))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	return pkt
}

func TestDecodeSearchResponse(t *testing.T) {
	pkt := decode(t,
		"HTTP/1.1 200 OK",
		"Cache-Control: max-age=1800",
		"Location: http://192.168.1.50:80/description.xml",
		"ST: upnp:rootdevice",
		"USN: uuid:e3a28f2c-9a1b-4a6f-a9d1-0123456789ab::upnp:rootdevice",
	)

	if pkt.RequestLine != "HTTP/1.1 200 OK" {
		t.Fatalf("unexpected request line %q", pkt.RequestLine)
	}
	if got := pkt.Headers.Get("location"); got != "http://192.168.1.50:80/description.xml" {
		t.Fatalf("unexpected location %q", got)
	}
	if pkt.UDN != "uuid:e3a28f2c-9a1b-4a6f-a9d1-0123456789ab" {
		t.Fatalf("unexpected UDN %q", pkt.UDN)
	}
	if pkt.Host != "192.168.1.50" || pkt.Port != 1900 {
		t.Fatalf("unexpected remote %s:%d", pkt.Host, pkt.Port)
	}
	if pkt.Timestamp.IsZero() {
		t.Fatalf("expected receipt timestamp to be set")
	}
}

func TestDecodeToleratesMissingBlankLine(t *testing.T) {
	raw := "NOTIFY * HTTP/1.1\r\nNT: upnp:rootdevice\r\nNTS: ssdp:alive"
	pkt, err := Decode([]byte(raw), nil, remote("10.0.0.7", 50000, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pkt.Headers.Get("nts"); got != "ssdp:alive" {
		t.Fatalf("unexpected nts %q", got)
	}
}

func TestDecodeRejectsInvalidHeaderLine(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nthis is not a header\r\n\r\n"
	if _, err := Decode([]byte(raw), nil, remote("10.0.0.7", 50000, "")); err == nil {
		t.Fatalf("expected error for colonless header line")
	}
}

func TestDecodeAdjustsLinkLocalLocation(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Location: http://[fe80::a1b2]:8080/desc.xml\r\n" +
		"ST: ssdp:all\r\n" +
		"USN: uuid:1::ssdp:all\r\n\r\n"
	pkt, err := Decode([]byte(raw), nil, remote("fe80::a1b2", 1900, "eth0"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pkt.Headers.Get("location"); got != "http://[fe80::a1b2%eth0]:8080/desc.xml" {
		t.Fatalf("location not scope-adjusted: %q", got)
	}
	if pkt.OriginalLocation != "http://[fe80::a1b2]:8080/desc.xml" {
		t.Fatalf("original location not preserved: %q", pkt.OriginalLocation)
	}
	if pkt.Host != "fe80::a1b2%eth0" {
		t.Fatalf("host not scope-adjusted: %q", pkt.Host)
	}
}

func TestBuildSearchPacketRoundTrip(t *testing.T) {
	target := DefaultIPv4Target()
	data := BuildSearchPacket(target, 4, "ssdp:all")

	if !IsValidPacket(data) {
		t.Fatalf("generated search packet fails validation")
	}
	pkt, err := Decode(data, nil, remote("192.168.1.2", 40000, ""))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if pkt.RequestLine != "M-SEARCH * HTTP/1.1" {
		t.Fatalf("unexpected request line %q", pkt.RequestLine)
	}
	if got := pkt.Headers.Get("host"); got != "239.255.255.250:1900" {
		t.Fatalf("unexpected HOST %q", got)
	}
	if got := pkt.Headers.Get("man"); got != `"ssdp:discover"` {
		t.Fatalf("unexpected MAN %q", got)
	}
	if got := pkt.Headers.Get("mx"); got != "4" {
		t.Fatalf("unexpected MX %q", got)
	}
	if got := pkt.Headers.Get("st"); got != "ssdp:all" {
		t.Fatalf("unexpected ST %q", got)
	}
}

func TestIsValidPacket(t *testing.T) {
	valid := [][]byte{
		[]byte("NOTIFY * HTTP/1.1\r\nNT: upnp:rootdevice\r\n\r\n"),
		[]byte("M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\n\r\n"),
		[]byte("HTTP/1.1 200 OK\r\nST: ssdp:all\r\n\r\n"),
	}
	for _, data := range valid {
		if !IsValidPacket(data) {
			t.Fatalf("expected valid packet: %q", data)
		}
	}

	invalid := [][]byte{
		nil,
		[]byte(""),
		[]byte("HTTP/1.1 200 OK"),
		[]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
		[]byte("\x00\x01\x02\x03"),
	}
	for _, data := range invalid {
		if IsValidPacket(data) {
			t.Fatalf("expected invalid packet: %q", data)
		}
	}
}

func TestUDNFromUSN(t *testing.T) {
	cases := []struct {
		usn  string
		want string
	}{
		{"uuid:e3a28f2c::upnp:rootdevice", "uuid:e3a28f2c"},
		{"uuid:e3a28f2c::urn:schemas-upnp-org:service:WANCommonInterfaceConfig:1", "uuid:e3a28f2c"},
		{"uuid:e3a28f2c", "uuid:e3a28f2c"},
		{"e3a28f2c::upnp:rootdevice", ""},
		{"urn:schemas-upnp-org:device:Basic:1", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := UDNFromUSN(c.usn); got != c.want {
			t.Fatalf("UDNFromUSN(%q): expected %q, got %q", c.usn, c.want, got)
		}
	}
}

func TestPacketClone(t *testing.T) {
	pkt := decode(t,
		"HTTP/1.1 200 OK",
		"ST: ssdp:all",
		"USN: uuid:1::ssdp:all",
	)
	clone := pkt.Clone()
	clone.Headers.Set("ST", "upnp:rootdevice")
	if got := pkt.Headers.Get("st"); got != "ssdp:all" {
		t.Fatalf("clone mutated original headers, got %q", got)
	}
}
