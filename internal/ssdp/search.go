package ssdp

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type listenerState int

const (
	stateIdle listenerState = iota
	stateStarted
	stateStopped
)

// SearchListener issues M-SEARCH queries on demand and delivers the
// responses. Configure the exported fields before calling Start.
type SearchListener struct {
	// Callback receives every valid search response.
	Callback func(*Packet)
	// Source is the local address to send from; derived from Target when nil.
	Source *net.UDPAddr
	// Target is the address searches go to; the IPv4 SSDP group when nil.
	// A non-multicast target restricts delivery to responses from that host.
	Target *net.UDPAddr
	// SearchTarget is the ST header value; ssdp:all when empty.
	SearchTarget string
	// MX is the maximum response delay requested; DefaultMX when zero.
	MX int
	// Logger receives protocol-level debug logs.
	Logger *zerolog.Logger

	mu    sync.Mutex
	state listenerState
	tr    *Transport
	log   zerolog.Logger
}

func (l *SearchListener) logger() zerolog.Logger {
	if l.Logger != nil {
		return *l.Logger
	}
	return zerolog.Nop()
}

// Start resolves the source/target pair and binds the transport. Bind
// failures are returned to the caller; they are not recoverable in place.
func (l *SearchListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateIdle {
		return ErrAlreadyStarted
	}

	l.log = l.logger()
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
	if l.SearchTarget == "" {
		l.SearchTarget = SearchTargetAll
	}
	if l.MX <= 0 {
		l.MX = DefaultMX
	}

	tr, err := newTransport(l.Source, l.Target, l.log, l.onPacket)
	if err != nil {
		return err
	}
	l.tr = tr
	l.state = stateStarted
	l.log.Debug().Str("source", HostPortString(l.Source)).Str("target", HostPortString(l.Target)).Msg("search listener started")
	return nil
}

// Search sends one M-SEARCH, to the configured target or to override when
// given. Overriding allows probing a known device directly via unicast.
func (l *SearchListener) Search(override *net.UDPAddr) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateStarted {
		return ErrNotStarted
	}

	// The request always names a well-known group in HOST; many devices
	// ignore a search whose HOST differs from the group they joined.
	packet := BuildSearchPacket(searchHost(l.Target), l.MX, l.SearchTarget)
	to := override
	if to == nil {
		to = l.Target
	}
	l.log.Debug().Str("to", HostPortString(to)).Str("st", l.SearchTarget).Msg("sending search")
	return l.tr.Send(packet, to)
}

// searchHost returns the HOST header value for an M-SEARCH. Responses come
// back to the sending socket either way, so even a unicast probe of a known
// device names the well-known group of its address family.
func searchHost(target *net.UDPAddr) *net.UDPAddr {
	if target == nil || target.IP.IsMulticast() {
		return target
	}
	if target.IP.To4() != nil {
		return DefaultIPv4Target()
	}
	return DefaultIPv6Target(target.Zone)
}

func (l *SearchListener) onPacket(pkt *Packet) {
	if strings.Contains(pkt.Headers.Get("man"), "ssdp:discover") {
		// Another client's search request, not a response.
		return
	}
	if pkt.Headers.Has("nts") {
		// Advertisement leaking in via the shared group.
		return
	}

	pkt.Source = SourceSearch

	if l.Target != nil && !l.Target.IP.IsMulticast() {
		if pkt.RemoteAddr == nil || !pkt.RemoteAddr.IP.Equal(l.Target.IP) {
			l.log.Debug().Str("host", pkt.Host).Msg("ignoring response from unexpected host")
			return
		}
	}

	if l.Callback != nil {
		l.Callback(pkt)
	}
}

// Stop closes the transport. Stop is idempotent; the listener cannot be
// restarted afterwards.
func (l *SearchListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateStarted {
		l.state = stateStopped
		return
	}
	l.tr.Close()
	l.state = stateStopped
	l.log.Debug().Msg("search listener stopped")
}

// SearchOptions configures the one-shot Search helper.
type SearchOptions struct {
	// Timeout is the response collection window; MX seconds when zero.
	Timeout time.Duration
	// SearchTarget is the ST header value; ssdp:all when empty.
	SearchTarget string
	// Source and Target follow SearchListener semantics.
	Source *net.UDPAddr
	Target *net.UDPAddr
	// MX is the maximum response delay requested; DefaultMX when zero.
	MX     int
	Logger *zerolog.Logger
}

// Search performs a single discovery round: it starts a listener, sends one
// M-SEARCH, collects responses into callback for the duration of the window
// and stops. The fixed window is the contract; there is no earlier "done"
// signal, devices may respond at any point within their MX delay.
func Search(ctx context.Context, callback func(*Packet), opts SearchOptions) error {
	mx := opts.MX
	if mx <= 0 {
		mx = DefaultMX
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(mx) * time.Second
	}

	listener := &SearchListener{
		Callback:     callback,
		Source:       opts.Source,
		Target:       opts.Target,
		SearchTarget: opts.SearchTarget,
		MX:           mx,
		Logger:       opts.Logger,
	}
	if err := listener.Start(); err != nil {
		return err
	}
	defer listener.Stop()

	if err := listener.Search(nil); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
