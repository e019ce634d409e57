package ssdp

import (
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Callback receives tracker-classified device events.
type Callback func(device *Device, deviceOrServiceType string, source Source)

// Listener composes an advertisement listener and a search listener bound to
// the same source/target pair behind one device tracker and one callback.
type Listener struct {
	// Callback receives every propagated device event. It runs while the
	// tracker lock is held, so it must not call back into the tracker.
	Callback Callback
	// Source is the local address; derived from Target when nil.
	Source *net.UDPAddr
	// Target is the multicast group; the IPv4 SSDP group when nil.
	Target *net.UDPAddr
	// SearchTarget is the ST used for searches; ssdp:all when empty.
	SearchTarget string
	// MX is the maximum search response delay; DefaultMX when zero.
	MX int
	// Tracker may be supplied to share one device table between listeners,
	// e.g. an IPv4 and an IPv6 listener running side by side. A private
	// tracker is created when nil.
	Tracker *DeviceTracker
	// Logger receives protocol-level debug logs.
	Logger *zerolog.Logger

	mu            sync.Mutex
	state         listenerState
	tracker       *DeviceTracker
	search        *SearchListener
	advertisement *AdvertisementListener
}

// Start brings up the advertisement and search listeners.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateIdle {
		return ErrAlreadyStarted
	}

	if l.Target == nil {
		l.Target = DefaultIPv4Target()
	}
	if l.Source == nil {
		source, err := SourceAddressForTarget(l.Target)
		if err != nil {
			return err
		}
		l.Source = source
	}
	l.tracker = l.Tracker
	if l.tracker == nil {
		l.tracker = NewDeviceTracker(l.Logger)
	}

	l.advertisement = &AdvertisementListener{
		OnAlive:  l.onAlive,
		OnByebye: l.onByebye,
		OnUpdate: l.onUpdate,
		Source:   l.Source,
		Target:   l.Target,
		Logger:   l.Logger,
	}
	if err := l.advertisement.Start(); err != nil {
		return err
	}

	l.search = &SearchListener{
		Callback:     l.onSearch,
		Source:       l.Source,
		Target:       l.Target,
		SearchTarget: l.SearchTarget,
		MX:           l.MX,
		Logger:       l.Logger,
	}
	if err := l.search.Start(); err != nil {
		l.advertisement.Stop()
		return err
	}

	l.state = stateStarted
	return nil
}

// Stop shuts both listeners down. Idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == stateStarted {
		l.advertisement.Stop()
		l.search.Stop()
	}
	l.state = stateStopped
}

// Search sends one M-SEARCH, to the configured target or to override.
func (l *Listener) Search(override *net.UDPAddr) error {
	l.mu.Lock()
	search := l.search
	started := l.state == stateStarted
	l.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	return search.Search(override)
}

// Devices returns a snapshot copy of the tracked devices keyed by UDN.
func (l *Listener) Devices() map[string]*Device {
	l.mu.Lock()
	tracker := l.tracker
	l.mu.Unlock()
	if tracker == nil {
		return nil
	}

	tracker.Lock()
	defer tracker.Unlock()
	devices := make(map[string]*Device, len(tracker.Devices()))
	for udn, device := range tracker.Devices() {
		devices[udn] = device
	}
	return devices
}

func (l *Listener) onSearch(pkt *Packet) {
	l.tracker.Lock()
	defer l.tracker.Unlock()

	propagate, device, deviceOrServiceType, source := l.tracker.SeeSearch(pkt)
	if propagate && l.Callback != nil {
		l.Callback(device, deviceOrServiceType, source)
	}
}

func (l *Listener) onAlive(pkt *Packet) {
	l.tracker.Lock()
	defer l.tracker.Unlock()

	propagate, device, deviceOrServiceType := l.tracker.SeeAdvertisement(pkt)
	if propagate && l.Callback != nil {
		l.Callback(device, deviceOrServiceType, SourceAdvertisementAlive)
	}
}

func (l *Listener) onUpdate(pkt *Packet) {
	l.tracker.Lock()
	defer l.tracker.Unlock()

	propagate, device, deviceOrServiceType := l.tracker.SeeAdvertisement(pkt)
	if propagate && l.Callback != nil {
		l.Callback(device, deviceOrServiceType, SourceAdvertisementUpdate)
	}
}

func (l *Listener) onByebye(pkt *Packet) {
	l.tracker.Lock()
	defer l.tracker.Unlock()

	propagate, device, deviceOrServiceType := l.tracker.UnseeAdvertisement(pkt)
	if propagate && l.Callback != nil {
		l.Callback(device, deviceOrServiceType, SourceAdvertisementByebye)
	}
}
