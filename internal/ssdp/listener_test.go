package ssdp

import (
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSearchListenerDispatch(t *testing.T) {
	var received []*Packet
	l := &SearchListener{
		Callback: func(pkt *Packet) { received = append(received, pkt) },
		Target:   DefaultIPv4Target(),
		log:      zerolog.Nop(),
	}

	// Our own M-SEARCH echoed back via multicast loopback is dropped.
	l.onPacket(decode(t,
		"M-SEARCH * HTTP/1.1",
		"MAN: \"ssdp:discover\"",
		"ST: ssdp:all",
	))
	// Advertisements leaking in via the shared group are dropped.
	l.onPacket(decode(t,
		"NOTIFY * HTTP/1.1",
		"NT: upnp:rootdevice",
		"NTS: ssdp:alive",
		"USN: uuid:1::upnp:rootdevice",
	))
	if len(received) != 0 {
		t.Fatalf("expected non-responses to be dropped, got %d", len(received))
	}

	l.onPacket(decode(t,
		"HTTP/1.1 200 OK",
		"ST: ssdp:all",
		"USN: uuid:1::ssdp:all",
		"Location: http://192.168.1.50/desc.xml",
	))
	if len(received) != 1 {
		t.Fatalf("expected search response to dispatch, got %d", len(received))
	}
	if received[0].Source != SourceSearch {
		t.Fatalf("expected source %v, got %v", SourceSearch, received[0].Source)
	}
}

func TestSearchListenerUnicastTargetFiltersHosts(t *testing.T) {
	var received []*Packet
	l := &SearchListener{
		Callback: func(pkt *Packet) { received = append(received, pkt) },
		Target:   &net.UDPAddr{IP: net.ParseIP("192.168.1.50"), Port: Port},
		log:      zerolog.Nop(),
	}

	response := []string{
		"HTTP/1.1 200 OK",
		"ST: ssdp:all",
		"USN: uuid:1::ssdp:all",
		"Location: http://192.168.1.50/desc.xml",
	}

	// A response from a different host than the unicast target is dropped.
	raw := []byte("HTTP/1.1 200 OK\r\nST: ssdp:all\r\nUSN: uuid:2::ssdp:all\r\n\r\n")
	pkt, err := Decode(raw, nil, remote("192.168.1.99", 1900, ""))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	l.onPacket(pkt)
	if len(received) != 0 {
		t.Fatalf("expected response from unexpected host to be dropped")
	}

	l.onPacket(decode(t, response...))
	if len(received) != 1 {
		t.Fatalf("expected response from the targeted host to dispatch")
	}
}

func TestSearchListenerSearchRequiresStart(t *testing.T) {
	l := &SearchListener{}
	if err := l.Search(nil); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestAdvertisementListenerDispatch(t *testing.T) {
	var alive, byebye, update []*Packet
	l := &AdvertisementListener{
		OnAlive:  func(pkt *Packet) { alive = append(alive, pkt) },
		OnByebye: func(pkt *Packet) { byebye = append(byebye, pkt) },
		OnUpdate: func(pkt *Packet) { update = append(update, pkt) },
		log:      zerolog.Nop(),
	}

	dispatch := func(nts string) {
		l.onPacket(decode(t,
			"NOTIFY * HTTP/1.1",
			"NT: upnp:rootdevice",
			"NTS: "+nts,
			"USN: uuid:1::upnp:rootdevice",
			"Location: http://192.168.1.50/desc.xml",
		))
	}

	dispatch("ssdp:alive")
	dispatch("ssdp:byebye")
	dispatch("ssdp:update")
	dispatch("ssdp:unknown")

	if len(alive) != 1 || len(byebye) != 1 || len(update) != 1 {
		t.Fatalf("unexpected dispatch counts alive=%d byebye=%d update=%d",
			len(alive), len(byebye), len(update))
	}
	if alive[0].Source != SourceAdvertisement {
		t.Fatalf("expected source %v, got %v", SourceAdvertisement, alive[0].Source)
	}

	// A search request on the group and a NOTIFY without NTS are both dropped.
	l.onPacket(decode(t,
		"M-SEARCH * HTTP/1.1",
		"MAN: \"ssdp:discover\"",
		"ST: ssdp:all",
	))
	l.onPacket(decode(t,
		"NOTIFY * HTTP/1.1",
		"NT: upnp:rootdevice",
		"USN: uuid:1::upnp:rootdevice",
	))
	if len(alive) != 1 || len(byebye) != 1 || len(update) != 1 {
		t.Fatalf("expected malformed packets to be dropped")
	}
}

func TestListenerEventClassification(t *testing.T) {
	type event struct {
		udn    string
		dst    string
		source Source
	}
	var events []event
	l := &Listener{
		Callback: func(device *Device, dst string, source Source) {
			events = append(events, event{device.UDN, dst, source})
		},
		tracker: NewDeviceTracker(nil),
	}

	usn := "uuid:1::upnp:rootdevice"
	l.onSearch(decode(t,
		"HTTP/1.1 200 OK",
		"ST: upnp:rootdevice",
		"USN: "+usn,
		"Location: http://192.168.1.50/desc.xml",
		"BOOTID.UPNP.ORG: 1",
	))
	l.onSearch(decode(t,
		"HTTP/1.1 200 OK",
		"ST: upnp:rootdevice",
		"USN: "+usn,
		"Location: http://192.168.1.50/desc.xml",
		"BOOTID.UPNP.ORG: 1",
	))
	l.onAlive(notify(t, time.Time{}, Alive, "upnp:rootdevice", usn,
		"http://192.168.1.50/desc.xml", "BOOTID.UPNP.ORG: 3"))
	l.onByebye(notify(t, time.Time{}, Byebye, "upnp:rootdevice", usn, ""))

	expected := []event{
		{"uuid:1", "upnp:rootdevice", SourceSearchChanged},
		{"uuid:1", "upnp:rootdevice", SourceSearchAlive},
		{"uuid:1", "upnp:rootdevice", SourceAdvertisementAlive},
		{"uuid:1", "upnp:rootdevice", SourceAdvertisementByebye},
	}
	if len(events) != len(expected) {
		t.Fatalf("expected %d events, got %d: %v", len(expected), len(events), events)
	}
	for i, want := range expected {
		if events[i] != want {
			t.Fatalf("event %d: expected %v, got %v", i, want, events[i])
		}
	}

	if devices := l.Devices(); len(devices) != 0 {
		t.Fatalf("expected no devices after byebye, got %d", len(devices))
	}
}

func TestListenerSharedTracker(t *testing.T) {
	tracker := NewDeviceTracker(nil)
	var sources []Source
	callback := func(_ *Device, _ string, source Source) {
		sources = append(sources, source)
	}
	v4 := &Listener{Callback: callback, tracker: tracker}
	v6 := &Listener{Callback: callback, tracker: tracker}

	usn := "uuid:dual::upnp:rootdevice"
	v4.onSearch(decode(t,
		"HTTP/1.1 200 OK",
		"ST: upnp:rootdevice",
		"USN: "+usn,
		"Location: http://192.168.1.50/desc.xml",
	))
	// The IPv6 listener sees the same device at its IPv6 URL; the shared
	// tracker recognises it instead of reporting a second new device.
	v6.onSearch(decode(t,
		"HTTP/1.1 200 OK",
		"ST: upnp:rootdevice",
		"USN: "+usn,
		"Location: http://[2001:db8::50]/desc.xml",
	))

	if len(sources) != 2 || sources[0] != SourceSearchChanged || sources[1] != SourceSearchAlive {
		t.Fatalf("unexpected source sequence %v", sources)
	}
	if len(tracker.Devices()) != 1 {
		t.Fatalf("expected one shared device, got %d", len(tracker.Devices()))
	}
}

func TestSearchHostNamesWellKnownGroup(t *testing.T) {
	cases := []struct {
		target string
		want   string
	}{
		{"239.255.255.250:1900", "239.255.255.250:1900"},
		{"FF02::C", "[ff02::c]:1900"},
		{"FF05::C", "[ff05::c]:1900"},
		// Unicast listeners still put the group of their family in HOST.
		{"192.168.1.20:1900", "239.255.255.250:1900"},
		{"[fe80::1%eth0]:1900", "[ff02::c%eth0]:1900"},
	}
	for _, tc := range cases {
		target, err := ResolveTarget(tc.target)
		if err != nil {
			t.Fatalf("unexpected resolve error for %q: %v", tc.target, err)
		}
		if got := HostPortString(searchHost(target)); got != tc.want {
			t.Fatalf("searchHost(%q) = %q, want %q", tc.target, got, tc.want)
		}
	}
}

func TestListenerSearchRequiresStart(t *testing.T) {
	l := &Listener{}
	if err := l.Search(nil); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestListenAddress(t *testing.T) {
	source := &net.UDPAddr{IP: net.ParseIP("192.168.1.2")}
	multicast := DefaultIPv4Target()
	unicast := &net.UDPAddr{IP: net.ParseIP("192.168.1.50"), Port: Port}

	bound := listenAddress(source, multicast)
	if runtime.GOOS == "windows" {
		if !bound.IP.Equal(source.IP) || bound.Port != Port {
			t.Fatalf("expected source bind with group port, got %v", bound)
		}
	} else {
		if !bound.IP.Equal(multicast.IP) || bound.Port != Port {
			t.Fatalf("expected group bind, got %v", bound)
		}
	}

	bound = listenAddress(source, unicast)
	if !bound.IP.Equal(source.IP) {
		t.Fatalf("expected source bind for unicast target, got %v", bound)
	}
}
