package ssdp

import (
	"net"
	"testing"
)

func TestUsableLocation(t *testing.T) {
	cases := []struct {
		location string
		want     bool
	}{
		{"http://192.168.1.2:80/description.xml", true},
		{"https://192.168.1.2/description.xml", true},
		{"http://[2001:db8::1]/description.xml", true},
		{"http://[fe80::1%eth0]/description.xml", true},
		{"http://media-server.local/description.xml", true},
		{"http://127.0.0.1:80/description.xml", false},
		{"http://[::1]/description.xml", false},
		{"http://169.254.10.10/description.xml", false},
		{"uuid:not-a-url", false},
		{"", false},
	}
	for _, c := range cases {
		if got := usableLocation(c.location); got != c.want {
			t.Fatalf("usableLocation(%q): expected %v, got %v", c.location, c.want, got)
		}
	}
}

func TestLocationFamily(t *testing.T) {
	cases := []struct {
		location string
		want     string
	}{
		{"http://192.168.1.2/desc.xml", "ipv4"},
		{"http://[2001:db8::1]/desc.xml", "ipv6"},
		{"http://[fe80::1%eth0]/desc.xml", "ipv6"},
		{"http://media-server.local/desc.xml", "name"},
	}
	for _, c := range cases {
		if got := locationFamily(c.location); got != c.want {
			t.Fatalf("locationFamily(%q): expected %s, got %s", c.location, c.want, got)
		}
	}
}

func TestAdjustURLForScope(t *testing.T) {
	linkLocal := remote("fe80::1", 1900, "eth0")

	cases := []struct {
		rawURL string
		addr   *net.UDPAddr
		want   string
	}{
		{"http://[fe80::1]:8080/desc.xml", linkLocal, "http://[fe80::1%eth0]:8080/desc.xml"},
		{"http://[fe80::1]/desc.xml", linkLocal, "http://[fe80::1%eth0]/desc.xml"},
		{"http://[fe80::1%eth0]/desc.xml", linkLocal, "http://[fe80::1%eth0]/desc.xml"},
		{"http://[2001:db8::1]/desc.xml", linkLocal, "http://[2001:db8::1]/desc.xml"},
		{"http://192.168.1.2/desc.xml", linkLocal, "http://192.168.1.2/desc.xml"},
		{"http://[fe80::1]/desc.xml", remote("192.168.1.2", 1900, ""), "http://[fe80::1]/desc.xml"},
		{"http://[fe80::1]/desc.xml", nil, "http://[fe80::1]/desc.xml"},
	}
	for _, c := range cases {
		if got := AdjustURLForScope(c.rawURL, c.addr); got != c.want {
			t.Fatalf("AdjustURLForScope(%q): expected %q, got %q", c.rawURL, c.want, got)
		}
	}
}

func TestHostPortString(t *testing.T) {
	cases := []struct {
		addr *net.UDPAddr
		want string
	}{
		{remote("239.255.255.250", 1900, ""), "239.255.255.250:1900"},
		{remote("FF02::C", 1900, ""), "[ff02::c]:1900"},
		{remote("fe80::1", 1900, "eth0"), "[fe80::1%eth0]:1900"},
	}
	for _, c := range cases {
		if got := HostPortString(c.addr); got != c.want {
			t.Fatalf("HostPortString: expected %q, got %q", c.want, got)
		}
	}
}

func TestHostString(t *testing.T) {
	if got := HostString(nil); got != "" {
		t.Fatalf("expected empty host for nil addr, got %q", got)
	}
	if got := HostString(remote("fe80::1", 1900, "eth0")); got != "fe80::1%eth0" {
		t.Fatalf("unexpected host %q", got)
	}
}

func TestResolveTarget(t *testing.T) {
	cases := []struct {
		target   string
		wantIP   string
		wantPort int
	}{
		{"", "239.255.255.250", 1900},
		{"239.255.255.250", "239.255.255.250", 1900},
		{"239.255.255.250:5000", "239.255.255.250", 5000},
		{"FF02::C", "ff02::c", 1900},
		{"[ff02::c]:1900", "ff02::c", 1900},
		{"192.168.1.4", "192.168.1.4", 1900},
	}
	for _, c := range cases {
		addr, err := ResolveTarget(c.target)
		if err != nil {
			t.Fatalf("ResolveTarget(%q): unexpected error: %v", c.target, err)
		}
		if addr.IP.String() != c.wantIP || addr.Port != c.wantPort {
			t.Fatalf("ResolveTarget(%q): expected %s:%d, got %s:%d",
				c.target, c.wantIP, c.wantPort, addr.IP, addr.Port)
		}
	}

	if _, err := ResolveTarget("not a target at all::"); err == nil {
		t.Fatalf("expected error for unresolvable target")
	}
}

func TestDefaultTargets(t *testing.T) {
	v4 := DefaultIPv4Target()
	if v4.IP.String() != "239.255.255.250" || v4.Port != 1900 {
		t.Fatalf("unexpected IPv4 target %v", v4)
	}
	v6 := DefaultIPv6Target("eth0")
	if v6.IP.String() != "ff02::c" || v6.Port != 1900 || v6.Zone != "eth0" {
		t.Fatalf("unexpected IPv6 target %v", v6)
	}
}
