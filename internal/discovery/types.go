package discovery

import (
	"errors"
	"net"
	"time"

	"upnpscan/internal/ssdp"
)

// Config describes the parameters of a discovery session.
type Config struct {
	// Source is the local address to bind, as "ip" or "ip:port". Derived
	// from the routing table when empty.
	Source string `json:"source,omitempty"`
	// Target is the SSDP group searched and listened on, as "host" or
	// "host:port". The IPv4 group is used when empty.
	Target string `json:"target"`
	// SearchTarget is the ST header of issued searches; ssdp:all when empty.
	SearchTarget string `json:"searchTarget"`
	// SearchInterval is the period between automatic search rounds. Zero
	// disables periodic searching; advertisements still arrive.
	SearchInterval time.Duration `json:"searchInterval"`
	// EnableEnrichment turns on per-device network lookups.
	EnableEnrichment bool `json:"enableEnrichment"`
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SearchInterval < 0 {
		return errors.New("searchInterval cannot be negative")
	}
	if c.Source != "" {
		if _, err := resolveSource(c.Source); err != nil {
			return err
		}
	}
	if c.Target != "" {
		if _, err := ssdp.ResolveTarget(c.Target); err != nil {
			return err
		}
	}
	return nil
}

// resolveSource parses a local bind address, defaulting to an ephemeral
// port when none is given.
func resolveSource(value string) (*net.UDPAddr, error) {
	host, port := value, "0"
	if h, p, err := net.SplitHostPort(value); err == nil {
		host, port = h, p
	}
	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
}

// Status represents the lifecycle state of a discovery session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// DeviceInfo captures everything gathered about a single UPnP device.
type DeviceInfo struct {
	UDN       string    `json:"udn"`
	Location  string    `json:"location,omitempty"`
	Locations []string  `json:"locations,omitempty"`
	Types     []string  `json:"types,omitempty"`
	Host      string    `json:"host,omitempty"`
	Server    string    `json:"server,omitempty"`
	BootID    string    `json:"bootId,omitempty"`
	ConfigID  string    `json:"configId,omitempty"`
	LastSeen  time.Time `json:"lastSeen"`
	ValidTo   time.Time `json:"validTo"`
	LastEvent string    `json:"lastEvent,omitempty"`

	// Fields below are filled by enrichment.
	DeviceName       string   `json:"deviceName,omitempty"`
	FriendlyName     string   `json:"friendlyName,omitempty"`
	Manufacturer     string   `json:"manufacturer,omitempty"`
	ModelName        string   `json:"modelName,omitempty"`
	Reachable        bool     `json:"reachable,omitempty"`
	LatencyMs        float64  `json:"latencyMs,omitempty"`
	Hostnames        []string `json:"hostnames,omitempty"`
	MDNSNames        []string `json:"mdnsNames,omitempty"`
	MacAddress       string   `json:"macAddress,omitempty"`
	MacVendor        string   `json:"macVendor,omitempty"`
	DiscoverySources []string `json:"discoverySources,omitempty"`
	InsightScore     int      `json:"insightScore,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Progress contains a summary of the current discovery session.
type Progress struct {
	Devices  int    `json:"devices"`
	Searches int    `json:"searches"`
	Status   Status `json:"status"`
}

// Snapshot is a point-in-time view of the session's configuration, devices
// and progress.
type Snapshot struct {
	Config   Config       `json:"config"`
	Progress Progress     `json:"progress"`
	Devices  []DeviceInfo `json:"devices"`
	Updated  time.Time    `json:"updated"`
}

// Update represents an incremental device event.
type Update struct {
	Device   DeviceInfo `json:"device"`
	Event    string     `json:"event"`
	Progress Progress   `json:"progress"`
}

// EventExpired marks a device aged out by its advertised lifetime, as opposed
// to the SSDP-sourced events named after their tracker classification.
const EventExpired = "expired"

var (
	// ErrDiscoveryRunning indicates a session is already running.
	ErrDiscoveryRunning = errors.New("discovery already running")
	// ErrNoActiveDiscovery indicates there is no running session to control.
	ErrNoActiveDiscovery = errors.New("no active discovery")
)
