package discovery

import (
	"bytes"
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upnpscan/internal/ssdp"
	"upnpscan/internal/upnp"
)

const (
	// descriptionFailureTTL keeps a failed description fetch cached briefly,
	// so a flapping device is retried without hammering it on every sighting.
	descriptionFailureTTL = time.Minute

	enrichmentTimeout = 10 * time.Second
)

// Manager runs a continuous discovery session and tracks the devices it
// yields.
type Manager struct {
	mu       sync.Mutex
	config   Config
	status   Status
	devices  map[string]DeviceInfo
	order    []string
	searches int

	listener *ssdp.Listener
	tracker  *ssdp.DeviceTracker

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	cache *upnp.DescriptionCache
	log   zerolog.Logger

	updateHandler func(Update)
	statusHandler func(Progress)
}

// NewManager creates a Manager with default values. logger may be nil.
func NewManager(logger *zerolog.Logger) *Manager {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Manager{
		status:  StatusIdle,
		devices: make(map[string]DeviceInfo),
		cache:   upnp.NewDescriptionCache(&upnp.HTTPRequester{}, 0, descriptionFailureTTL, logger),
		log:     log,
	}
}

// Start begins discovery with the provided configuration. The update handler
// receives every device event; the status handler receives progress changes.
func (m *Manager) Start(ctx context.Context, config Config, update func(Update), status func(Progress)) (Snapshot, error) {
	if err := config.Validate(); err != nil {
		return Snapshot{}, err
	}
	target, err := ssdp.ResolveTarget(config.Target)
	if err != nil {
		return Snapshot{}, err
	}
	var source *net.UDPAddr
	if config.Source != "" {
		if source, err = resolveSource(config.Source); err != nil {
			return Snapshot{}, err
		}
	}
	if config.SearchTarget == "" {
		config.SearchTarget = ssdp.SearchTargetAll
	}

	m.mu.Lock()
	if m.status == StatusRunning {
		snapshot := m.snapshotLocked()
		m.mu.Unlock()
		return snapshot, ErrDiscoveryRunning
	}

	m.runCtx, m.runCancel = context.WithCancel(ctx)
	m.config = config
	m.devices = make(map[string]DeviceInfo)
	m.order = nil
	m.searches = 0
	m.updateHandler = update
	m.statusHandler = status

	m.tracker = ssdp.NewDeviceTracker(&m.log)
	m.listener = &ssdp.Listener{
		Callback:     m.onEvent,
		Source:       source,
		Target:       target,
		SearchTarget: config.SearchTarget,
		Tracker:      m.tracker,
		Logger:       &m.log,
	}
	if err := m.listener.Start(); err != nil {
		m.runCancel()
		m.mu.Unlock()
		return Snapshot{}, err
	}
	m.status = StatusRunning

	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.emitStatus(snapshot.Progress)

	if err := m.Search(); err != nil {
		m.log.Debug().Err(err).Msg("initial search failed")
	}

	m.wg.Add(1)
	go m.run(m.runCtx)

	return snapshot, nil
}

// Stop ends the running session. Tracked devices remain available through
// GetSnapshot and Export.
func (m *Manager) Stop() (Progress, error) {
	m.mu.Lock()
	if m.status != StatusRunning {
		progress := m.progressLocked()
		m.mu.Unlock()
		return progress, ErrNoActiveDiscovery
	}
	m.runCancel()
	listener := m.listener
	m.status = StatusStopped
	progress := m.progressLocked()
	m.mu.Unlock()

	// Listener teardown waits for in-flight receive callbacks, and those
	// callbacks take m.mu, so it must run outside the locked section.
	listener.Stop()
	m.wg.Wait()
	m.emitStatus(progress)
	return progress, nil
}

// Search issues one extra M-SEARCH round immediately.
func (m *Manager) Search() error {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return ErrNoActiveDiscovery
	}
	listener := m.listener
	m.searches++
	progress := m.progressLocked()
	m.mu.Unlock()

	m.emitStatus(progress)
	return listener.Search(nil)
}

// GetSnapshot returns the latest view of the session state.
func (m *Manager) GetSnapshot() Snapshot {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	return snapshot
}

// Export serialises the current session to a versioned JSON snapshot.
func (m *Manager) Export() ([]byte, error) {
	snapshot := m.GetSnapshot()
	var buf bytes.Buffer
	if err := Save(&buf, snapshot.Config, snapshot.Devices); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Import loads a previously exported snapshot, replacing the current device
// table. A running session is stopped first.
func (m *Manager) Import(data []byte) (Snapshot, error) {
	config, devices, err := Load(bytes.NewReader(data))
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	var listener *ssdp.Listener
	if m.status == StatusRunning {
		m.runCancel()
		listener = m.listener
	}
	m.config = config
	m.devices = make(map[string]DeviceInfo, len(devices))
	m.order = make([]string, 0, len(devices))
	for _, info := range devices {
		m.order = append(m.order, info.UDN)
		m.devices[info.UDN] = info
	}
	m.searches = 0
	m.status = StatusStopped
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if listener != nil {
		listener.Stop()
	}
	m.wg.Wait()
	m.emitStatus(snapshot.Progress)
	return snapshot, nil
}

// run drives periodic searches and expiry reconciliation until the session
// context is cancelled.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	interval := m.config.SearchInterval
	reconcile := time.NewTicker(time.Minute)
	defer reconcile.Stop()

	var search <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		search = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-search:
			if err := m.Search(); err != nil {
				return
			}
		case <-reconcile.C:
			m.reconcile()
		}
	}
}

// reconcile purges expired devices from the tracker and mirrors the removals
// into the device table.
func (m *Manager) reconcile() {
	m.tracker.Lock()
	m.tracker.PurgeDevices(time.Time{})
	alive := make(map[string]struct{}, len(m.tracker.Devices()))
	for udn := range m.tracker.Devices() {
		alive[udn] = struct{}{}
	}
	m.tracker.Unlock()

	var expired []Update

	m.mu.Lock()
	for udn, info := range m.devices {
		if _, ok := alive[udn]; ok {
			continue
		}
		info.LastEvent = EventExpired
		m.removeLocked(udn)
		expired = append(expired, Update{Device: info, Event: EventExpired})
	}
	progress := m.progressLocked()
	m.mu.Unlock()

	for _, update := range expired {
		update.Progress = progress
		m.emitUpdate(update)
	}
}

// onEvent is the listener callback. It runs while the tracker lock is held,
// so everything needed from the device is copied out before m.mu work.
func (m *Manager) onEvent(device *ssdp.Device, deviceOrServiceType string, source ssdp.Source) {
	now := time.Now()
	headers := device.CombinedHeaders(deviceOrServiceType)

	info := DeviceInfo{
		UDN:       device.UDN,
		Location:  device.Location(),
		Locations: device.Locations(now),
		Types:     device.DeviceOrServiceTypes(),
		Server:    headers.Get("server"),
		BootID:    headers.Get("bootid.upnp.org"),
		ConfigID:  headers.Get("configid.upnp.org"),
		LastSeen:  device.LastSeen(),
		ValidTo:   device.ValidTo,
		LastEvent: source.String(),
	}
	info.Host = locationHost(info.Location)

	if source == ssdp.SourceAdvertisementByebye {
		m.handleByebye(info)
		return
	}

	m.mu.Lock()
	if m.status == StatusStopped {
		// The listener keeps delivering until its teardown finishes; late
		// events must not touch a stopped or freshly imported table.
		m.mu.Unlock()
		return
	}
	previous, exists := m.devices[info.UDN]
	if exists {
		info = mergeEnrichment(previous, info)
	} else {
		m.order = append(m.order, info.UDN)
	}
	m.devices[info.UDN] = info
	enrich := !exists && m.config.EnableEnrichment && m.status == StatusRunning
	ctx := m.runCtx
	if enrich {
		m.wg.Add(1)
	}
	progress := m.progressLocked()
	m.mu.Unlock()

	m.emitUpdate(Update{Device: info, Event: info.LastEvent, Progress: progress})

	if enrich {
		go m.enrich(ctx, info.UDN, info.Host, info.Location)
	}
}

func (m *Manager) handleByebye(info DeviceInfo) {
	m.cache.Uncache(info.Location)

	m.mu.Lock()
	if m.status == StatusStopped {
		m.mu.Unlock()
		return
	}
	stored, exists := m.devices[info.UDN]
	if exists {
		info = mergeEnrichment(stored, info)
		m.removeLocked(info.UDN)
	}
	progress := m.progressLocked()
	m.mu.Unlock()

	m.emitUpdate(Update{Device: info, Event: info.LastEvent, Progress: progress})
}

// enrich runs the network lookups for a newly discovered device and folds
// the outcome back into the device table.
func (m *Manager) enrich(ctx context.Context, udn, host, location string) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, enrichmentTimeout)
	defer cancel()

	details := collectDeviceDetails(ctx, m.cache, host, location)

	m.mu.Lock()
	info, ok := m.devices[udn]
	if !ok {
		// Device said byebye while enrichment was in flight.
		m.mu.Unlock()
		return
	}
	details.apply(&info)
	enrichInsightMetadata(&info)
	m.devices[udn] = info
	progress := m.progressLocked()
	m.mu.Unlock()

	m.emitUpdate(Update{Device: info, Event: info.LastEvent, Progress: progress})
}

func (m *Manager) removeLocked(udn string) {
	delete(m.devices, udn)
	for i, key := range m.order {
		if key == udn {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Manager) emitUpdate(update Update) {
	if handler := m.updateHandler; handler != nil {
		handler(update)
	}
}

func (m *Manager) emitStatus(progress Progress) {
	if handler := m.statusHandler; handler != nil {
		handler(progress)
	}
}

func (m *Manager) progressLocked() Progress {
	return Progress{Devices: len(m.devices), Searches: m.searches, Status: m.status}
}

func (m *Manager) snapshotLocked() Snapshot {
	devices := make([]DeviceInfo, 0, len(m.order))
	for _, udn := range m.order {
		if info, ok := m.devices[udn]; ok {
			devices = append(devices, info)
		}
	}
	return Snapshot{
		Config:   m.config,
		Progress: m.progressLocked(),
		Devices:  devices,
		Updated:  time.Now().UTC(),
	}
}

// mergeEnrichment carries previously gathered enrichment fields over to a
// refreshed sighting, which only knows the SSDP-level data.
func mergeEnrichment(previous, next DeviceInfo) DeviceInfo {
	next.DeviceName = previous.DeviceName
	next.FriendlyName = previous.FriendlyName
	next.Manufacturer = previous.Manufacturer
	next.ModelName = previous.ModelName
	next.Reachable = previous.Reachable
	next.LatencyMs = previous.LatencyMs
	next.Hostnames = previous.Hostnames
	next.MDNSNames = previous.MDNSNames
	next.MacAddress = previous.MacAddress
	next.MacVendor = previous.MacVendor
	next.DiscoverySources = previous.DiscoverySources
	next.InsightScore = previous.InsightScore
	next.Error = previous.Error
	return next
}

// locationHost extracts the bare host of a description URL, dropping any
// IPv6 zone so the host is usable for pings and DNS lookups.
func locationHost(location string) string {
	if location == "" {
		return ""
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	if zoneless, _, found := strings.Cut(host, "%"); found {
		host = zoneless
	}
	return host
}
