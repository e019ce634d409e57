package ssdp

import (
	"fmt"
	"sort"
	"time"
)

// Device is one UPnP root device as seen on the network, merged from search
// responses and advertisements. All fields are owned by the tracker and must
// only be touched while holding the tracker lock.
type Device struct {
	// UDN is the unique device name, the identity key. Immutable.
	UDN string
	// ValidTo is the expiry of the most recent sighting.
	ValidTo time.Time

	lastSeen     time.Time
	lastLocation string
	// locations maps each known description URL to its own expiry.
	locations map[string]time.Time

	searchHeaders        map[string]*Packet
	advertisementHeaders map[string]*Packet
}

func newDevice(udn string, validTo time.Time) *Device {
	return &Device{
		UDN:                  udn,
		ValidTo:              validTo,
		locations:            make(map[string]time.Time),
		searchHeaders:        make(map[string]*Packet),
		advertisementHeaders: make(map[string]*Packet),
	}
}

// Location returns the most recently sighted description URL.
func (d *Device) Location() string {
	return d.lastLocation
}

// Locations returns the non-expired description URLs, sorted.
func (d *Device) Locations(now time.Time) []string {
	urls := make([]string, 0, len(d.locations))
	for location, validTo := range d.locations {
		if now.After(validTo) {
			continue
		}
		urls = append(urls, location)
	}
	sort.Strings(urls)
	return urls
}

// LastSeen returns the timestamp of the most recent sighting.
func (d *Device) LastSeen() time.Time {
	return d.lastSeen
}

// DeviceOrServiceTypes returns every type the device was seen under, via
// either channel, sorted.
func (d *Device) DeviceOrServiceTypes() []string {
	seen := make(map[string]struct{}, len(d.searchHeaders)+len(d.advertisementHeaders))
	for dst := range d.searchHeaders {
		seen[dst] = struct{}{}
	}
	for dst := range d.advertisementHeaders {
		seen[dst] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for dst := range seen {
		types = append(types, dst)
	}
	sort.Strings(types)
	return types
}

// CombinedHeaders merges the search and advertisement snapshots for one
// device-or-service type, advertisement values overriding search values.
func (d *Device) CombinedHeaders(deviceOrServiceType string) *Headers {
	combined := NewHeaders()
	if pkt := d.searchHeaders[deviceOrServiceType]; pkt != nil {
		combined.Merge(pkt.Headers)
	}
	if pkt := d.advertisementHeaders[deviceOrServiceType]; pkt != nil {
		combined.Merge(pkt.Headers)
	}
	return combined
}

// AllCombinedHeaders returns the combined snapshot for every known type.
func (d *Device) AllCombinedHeaders() map[string]*Headers {
	all := make(map[string]*Headers)
	for _, dst := range d.DeviceOrServiceTypes() {
		all[dst] = d.CombinedHeaders(dst)
	}
	return all
}

// addLocation records or refreshes a description URL with its own expiry and
// marks it as the most recent.
func (d *Device) addLocation(location string, validTo time.Time) {
	d.locations[location] = validTo
	d.lastLocation = location
}

// purgeLocations drops expired description URLs.
func (d *Device) purgeLocations(now time.Time) {
	for location, validTo := range d.locations {
		if now.After(validTo) {
			delete(d.locations, location)
		}
	}
}

// locationChanged reports whether a newly sighted location represents a
// change. Locations are compared within the same IP family only: a device
// reachable at both an IPv4 and an IPv6 URL is not "changed" merely because
// a sighting arrived via the other family.
func (d *Device) locationChanged(location string) bool {
	if len(d.locations) == 0 {
		return true
	}
	family := locationFamily(location)
	for tracked := range d.locations {
		if locationFamily(tracked) != family {
			continue
		}
		if tracked != location {
			return true
		}
	}
	return false
}

// mergeSnapshot folds pkt into the snapshot map for key. Fields present in
// the stored snapshot but absent from pkt survive, so a partial notification
// does not erase previously known headers.
func mergeSnapshot(snapshots map[string]*Packet, key string, pkt *Packet) {
	current := snapshots[key]
	if current == nil {
		snapshots[key] = pkt.Clone()
		return
	}
	headers := current.Headers
	headers.Merge(pkt.Headers)
	merged := *pkt
	merged.Headers = headers
	*current = merged
}

func (d *Device) String() string {
	return fmt.Sprintf("Device(%s)", d.UDN)
}
