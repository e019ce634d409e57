// Package ssdp implements the Simple Service Discovery Protocol used by UPnP:
// active M-SEARCH discovery, passive NOTIFY advertisement listening, and a
// device tracker that merges both channels into a deduplicated, TTL-aged view
// of the devices on the network.
package ssdp

import (
	"errors"
	"net"
	"time"
)

const (
	// IPv4Group is the well-known SSDP multicast group for IPv4.
	IPv4Group = "239.255.255.250"
	// IPv6LinkLocalGroup is the link-local SSDP multicast group for IPv6.
	IPv6LinkLocalGroup = "FF02::C"
	// IPv6SiteLocalGroup is the site-local SSDP multicast group for IPv6.
	IPv6SiteLocalGroup = "FF05::C"

	// Port is the UDP port SSDP traffic is exchanged on.
	Port = 1900

	// DefaultMX is the default maximum response delay, in seconds, requested
	// from devices by an M-SEARCH.
	DefaultMX = 4

	// SearchTargetAll asks every device and service to respond to a search.
	SearchTargetAll = "ssdp:all"
	// SearchTargetRootDevice asks only root devices to respond to a search.
	SearchTargetRootDevice = "upnp:rootdevice"
)

// DefaultMaxAge is the assumed advertisement lifetime when a message carries
// no parseable CACHE-CONTROL max-age.
const DefaultMaxAge = 900 * time.Second

var (
	// ErrAlreadyStarted indicates a listener was started twice.
	ErrAlreadyStarted = errors.New("listener already started")
	// ErrNotStarted indicates an operation that requires a started listener.
	ErrNotStarted = errors.New("listener not started")
)

// NotificationSubType is the NTS header value of a NOTIFY advertisement.
type NotificationSubType string

const (
	// Alive announces a device or service joining or refreshing itself.
	Alive NotificationSubType = "ssdp:alive"
	// Byebye announces a device or service leaving the network.
	Byebye NotificationSubType = "ssdp:byebye"
	// Update announces changed boot or configuration identifiers.
	Update NotificationSubType = "ssdp:update"
)

// Source identifies which channel and change classification produced a packet
// or a tracker event.
type Source int

const (
	// SourceSearch marks a raw search response before tracker classification.
	SourceSearch Source = iota
	// SourceSearchAlive marks a search re-sighting with no interesting change.
	SourceSearchAlive
	// SourceSearchChanged marks a search sighting that is new or changed.
	SourceSearchChanged
	// SourceAdvertisement marks a raw advertisement before classification.
	SourceAdvertisement
	// SourceAdvertisementAlive marks an ssdp:alive advertisement.
	SourceAdvertisementAlive
	// SourceAdvertisementByebye marks an ssdp:byebye advertisement.
	SourceAdvertisementByebye
	// SourceAdvertisementUpdate marks an ssdp:update advertisement.
	SourceAdvertisementUpdate
)

func (s Source) String() string {
	switch s {
	case SourceSearch:
		return "search"
	case SourceSearchAlive:
		return "search:alive"
	case SourceSearchChanged:
		return "search:changed"
	case SourceAdvertisement:
		return "advertisement"
	case SourceAdvertisementAlive:
		return "advertisement:alive"
	case SourceAdvertisementByebye:
		return "advertisement:byebye"
	case SourceAdvertisementUpdate:
		return "advertisement:update"
	default:
		return "unknown"
	}
}

// DefaultIPv4Target returns the IPv4 multicast group address searched and
// listened on when no target is configured.
func DefaultIPv4Target() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(IPv4Group), Port: Port}
}

// DefaultIPv6Target returns the link-local IPv6 multicast group address with
// the given zone selecting the egress interface.
func DefaultIPv6Target(zone string) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(IPv6LinkLocalGroup), Port: Port, Zone: zone}
}
