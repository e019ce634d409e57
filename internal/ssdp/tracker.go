package ssdp

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var cacheControlRe = regexp.MustCompile(`max-age\s*=\s*(\d+)`)

// ignoredHeaders vary on every message or are handled specially, so they
// never count as an interesting change.
var ignoredHeaders = map[string]struct{}{
	"date":          {},
	"cache-control": {},
	"server":        {},
	"location":      {},
}

// DeviceTracker keeps the authoritative table of devices seen via search and
// advertisement, ages them out by CACHE-CONTROL lifetime, and classifies each
// sighting as new, changed or merely alive.
//
// The tracker exposes its lock so one instance can be shared by several
// listeners (e.g. an IPv4 and an IPv6 listener): callers bracket each
// see/propagate sequence with Lock/Unlock, which linearizes updates and keeps
// the callback's view consistent. Every method below requires the lock held.
type DeviceTracker struct {
	mu sync.Mutex

	devices     map[string]*Device
	nextValidTo time.Time
	log         zerolog.Logger
}

// NewDeviceTracker creates an empty tracker. logger may be nil.
func NewDeviceTracker(logger *zerolog.Logger) *DeviceTracker {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &DeviceTracker{
		devices: make(map[string]*Device),
		log:     log,
	}
}

// Lock acquires the tracker lock.
func (t *DeviceTracker) Lock() { t.mu.Lock() }

// Unlock releases the tracker lock.
func (t *DeviceTracker) Unlock() { t.mu.Unlock() }

// Devices returns the tracked devices keyed by UDN. The map is live; iterate
// it while holding the tracker lock.
func (t *DeviceTracker) Devices() map[string]*Device {
	return t.devices
}

// Device returns the tracked device for udn, if any.
func (t *DeviceTracker) Device(udn string) *Device {
	return t.devices[udn]
}

func validSearchPacket(pkt *Packet) bool {
	return pkt.UDN != "" &&
		pkt.Headers.Get("st") != "" &&
		usableLocation(pkt.Headers.Get("location"))
}

func validAdvertisementPacket(pkt *Packet) bool {
	return pkt.UDN != "" &&
		pkt.Headers.Get("nt") != "" &&
		pkt.Headers.Get("nts") != "" &&
		usableLocation(pkt.Headers.Get("location"))
}

// byebye advertisements carry no location.
func validByebyePacket(pkt *Packet) bool {
	return pkt.UDN != "" &&
		pkt.Headers.Get("nt") != "" &&
		pkt.Headers.Get("nts") != ""
}

// maxAge extracts the advertised lifetime from a CACHE-CONTROL value,
// defaulting when absent or unparseable.
func maxAge(cacheControl string) time.Duration {
	match := cacheControlRe.FindStringSubmatch(cacheControl)
	if match == nil {
		return DefaultMaxAge
	}
	seconds, err := strconv.Atoi(match[1])
	if err != nil {
		return DefaultMaxAge
	}
	return time.Duration(seconds) * time.Second
}

// sameHeadersDiffer compares the headers present in the stored snapshot
// against a new packet. Ignored headers are skipped, and a header present in
// the snapshot but absent from the new packet does not count as a difference:
// partial updates must not look like changes.
func sameHeadersDiffer(current *Packet, pkt *Packet) bool {
	if current == nil {
		return false
	}
	differ := false
	current.Headers.Each(func(key, value string) {
		if differ {
			return
		}
		if _, ignored := ignoredHeaders[headerKey(key)]; ignored {
			return
		}
		newValue, ok := pkt.Headers.Lookup(key)
		if !ok {
			return
		}
		if newValue != value {
			differ = true
		}
	})
	return differ
}

// SeeSearch records a search response sighting. It reports whether the event
// should reach the application, the device, the search target it was seen
// under, and whether the sighting was a change (SourceSearchChanged) or a
// plain re-sighting (SourceSearchAlive). Once validation passes the event
// always propagates; the source tells the caller whether anything changed.
func (t *DeviceTracker) SeeSearch(pkt *Packet) (bool, *Device, string, Source) {
	if !validSearchPacket(pkt) {
		t.log.Debug().Stringer("headers", pkt.Headers).Msg("invalid search headers")
		return false, nil, "", SourceSearch
	}

	isNewDevice := t.devices[pkt.UDN] == nil

	device, locationChanged := t.seeDevice(pkt)
	if device == nil {
		return false, nil, "", SourceSearch
	}

	searchTarget := pkt.Headers.Get("st")
	isNewService := device.searchHeaders[searchTarget] == nil &&
		device.advertisementHeaders[searchTarget] == nil
	if isNewService {
		t.log.Debug().Stringer("device", device).Str("type", searchTarget).Msg("see new service")
	}

	changed := isNewDevice ||
		isNewService ||
		locationChanged ||
		sameHeadersDiffer(device.searchHeaders[searchTarget], pkt) ||
		sameHeadersDiffer(device.advertisementHeaders[searchTarget], pkt)

	source := SourceSearchAlive
	if changed {
		source = SourceSearchChanged
	}

	mergeSnapshot(device.searchHeaders, searchTarget, pkt)

	return true, device, searchTarget, source
}

// SeeAdvertisement records an alive or update advertisement sighting. The
// event propagates when it is an update (changed boot/config ids must always
// reach the application), when the device or service is new, or when the
// headers or location changed.
func (t *DeviceTracker) SeeAdvertisement(pkt *Packet) (bool, *Device, string) {
	if !validAdvertisementPacket(pkt) {
		t.log.Debug().Stringer("headers", pkt.Headers).Msg("invalid advertisement headers")
		return false, nil, ""
	}

	isNewDevice := t.devices[pkt.UDN] == nil

	device, locationChanged := t.seeDevice(pkt)
	if device == nil {
		return false, nil, ""
	}

	notificationType := pkt.Headers.Get("nt")
	isNewService := device.searchHeaders[notificationType] == nil &&
		device.advertisementHeaders[notificationType] == nil
	if isNewService {
		t.log.Debug().Stringer("device", device).Str("type", notificationType).Msg("see new service")
	}

	propagate := NotificationSubType(pkt.Headers.Get("nts")) == Update ||
		isNewDevice ||
		isNewService ||
		locationChanged ||
		sameHeadersDiffer(device.advertisementHeaders[notificationType], pkt) ||
		sameHeadersDiffer(device.searchHeaders[notificationType], pkt)

	mergeSnapshot(device.advertisementHeaders, notificationType, pkt)

	return propagate, device, notificationType
}

// UnseeAdvertisement removes a device on a byebye advertisement. A byebye for
// a known device always propagates; a byebye for an unknown device never
// does (the second byebye in a row finds the device already deleted).
func (t *DeviceTracker) UnseeAdvertisement(pkt *Packet) (bool, *Device, string) {
	if !validByebyePacket(pkt) {
		return false, nil, ""
	}

	device := t.devices[pkt.UDN]
	if device == nil {
		return false, nil, ""
	}
	delete(t.devices, pkt.UDN)
	t.log.Debug().Stringer("device", device).Msg("device said byebye")

	// Refresh the snapshot so downstream consumers see the byebye headers.
	notificationType := pkt.Headers.Get("nt")
	mergeSnapshot(device.advertisementHeaders, notificationType, pkt)

	return true, device, notificationType
}

// seeDevice creates or refreshes the device for a validated sighting and
// reports whether its location changed.
func (t *DeviceTracker) seeDevice(pkt *Packet) (*Device, bool) {
	t.purgeLocked(pkt.Timestamp)

	if pkt.UDN == "" {
		return nil, false
	}

	validTo := pkt.Timestamp.Add(maxAge(pkt.Headers.Get("cache-control")))

	device := t.devices[pkt.UDN]
	if device == nil {
		device = newDevice(pkt.UDN, validTo)
		t.log.Debug().Stringer("device", device).Msg("see new device")
		t.devices[pkt.UDN] = device
	} else {
		device.ValidTo = validTo
		device.purgeLocations(pkt.Timestamp)
	}

	location := pkt.Headers.Get("location")
	locationChanged := device.locationChanged(location)
	device.addLocation(location, validTo)
	device.lastSeen = pkt.Timestamp

	if t.nextValidTo.IsZero() || device.ValidTo.Before(t.nextValidTo) {
		t.nextValidTo = device.ValidTo
	}

	return device, locationChanged
}

// PurgeDevices removes every device whose advertised lifetime has passed.
// The zero time means "now". The scan short-circuits on the cached earliest
// expiry, so calling it on every sighting stays cheap.
func (t *DeviceTracker) PurgeDevices(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	t.purgeLocked(now)
}

func (t *DeviceTracker) purgeLocked(now time.Time) {
	if !t.nextValidTo.IsZero() && t.nextValidTo.After(now) {
		return
	}
	t.nextValidTo = time.Time{}

	var remove []string
	for udn, device := range t.devices {
		if now.After(device.ValidTo) {
			remove = append(remove, udn)
			continue
		}
		device.purgeLocations(now)
		if len(device.locations) == 0 {
			// A device with no reachable description is gone.
			remove = append(remove, udn)
			continue
		}
		if t.nextValidTo.IsZero() || device.ValidTo.Before(t.nextValidTo) {
			t.nextValidTo = device.ValidTo
		}
	}
	for _, udn := range remove {
		t.log.Debug().Str("udn", udn).Msg("purging device")
		delete(t.devices, udn)
	}
}
