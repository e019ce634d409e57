package ssdp

import (
	"strings"
	"testing"
)

func TestHeadersCaseInsensitiveLookup(t *testing.T) {
	h := NewHeaders()
	h.Set("Cache-Control", "max-age=1800")

	for _, key := range []string{"cache-control", "CACHE-CONTROL", "Cache-Control"} {
		if got := h.Get(key); got != "max-age=1800" {
			t.Fatalf("Get(%q): expected max-age=1800, got %q", key, got)
		}
	}
	if !h.Has("cache-CONTROL") {
		t.Fatalf("expected Has to match any casing")
	}
}

func TestHeadersSetKeepsPositionAdoptsCasing(t *testing.T) {
	h := HeadersFrom("HOST", "239.255.255.250:1900", "NT", "upnp:rootdevice", "USN", "uuid:1")
	h.Set("nt", "urn:schemas-upnp-org:device:Basic:1")

	keys := h.Keys()
	expected := []string{"HOST", "nt", "USN"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %d keys, got %d", len(expected), len(keys))
	}
	for i, key := range expected {
		if keys[i] != key {
			t.Fatalf("key %d: expected %q, got %q", i, key, keys[i])
		}
	}
	if got := h.Get("NT"); got != "urn:schemas-upnp-org:device:Basic:1" {
		t.Fatalf("unexpected NT value %q", got)
	}
	if got := h.CanonicalKey("Nt"); got != "nt" {
		t.Fatalf("expected canonical key nt, got %q", got)
	}
}

func TestHeadersMergeDoesNotErase(t *testing.T) {
	h := HeadersFrom("USN", "uuid:1", "BOOTID.UPNP.ORG", "1", "LOCATION", "http://192.168.1.2/desc.xml")
	h.Merge(HeadersFrom("BOOTID.UPNP.ORG", "2"))

	if got := h.Get("bootid.upnp.org"); got != "2" {
		t.Fatalf("expected merged bootid 2, got %q", got)
	}
	if got := h.Get("location"); got != "http://192.168.1.2/desc.xml" {
		t.Fatalf("merge erased location, got %q", got)
	}
	if h.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", h.Len())
	}
}

func TestHeadersEqualIgnoresOrderAndCase(t *testing.T) {
	a := HeadersFrom("ST", "ssdp:all", "USN", "uuid:1")
	b := HeadersFrom("usn", "uuid:1", "st", "ssdp:all")
	if !a.Equal(b) {
		t.Fatalf("expected headers to compare equal")
	}

	b.Set("usn", "uuid:2")
	if a.Equal(b) {
		t.Fatalf("expected headers to differ after value change")
	}
	if a.Equal(nil) {
		t.Fatalf("expected inequality against nil")
	}
}

func TestHeadersDel(t *testing.T) {
	h := HeadersFrom("A", "1", "B", "2", "C", "3")
	h.Del("b")
	if h.Has("B") {
		t.Fatalf("expected B to be deleted")
	}
	if got := strings.Join(h.Keys(), ","); got != "A,C" {
		t.Fatalf("unexpected key order after delete: %s", got)
	}
	h.Del("missing")
	if h.Len() != 2 {
		t.Fatalf("expected delete of missing key to be a no-op")
	}
}

func TestHeadersCloneIndependent(t *testing.T) {
	h := HeadersFrom("ST", "ssdp:all")
	clone := h.Clone()
	clone.Set("ST", "upnp:rootdevice")
	if got := h.Get("st"); got != "ssdp:all" {
		t.Fatalf("clone mutated original, got %q", got)
	}
}
