package ssdp

import (
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// AdvertisementListener passively receives NOTIFY multicast packets and
// dispatches them by notification subtype. It never sends.
type AdvertisementListener struct {
	// OnAlive, OnByebye and OnUpdate receive classified advertisements.
	OnAlive  func(*Packet)
	OnByebye func(*Packet)
	OnUpdate func(*Packet)
	// Source is the local address; derived from Target when nil.
	Source *net.UDPAddr
	// Target is the multicast group; the IPv4 SSDP group when nil.
	Target *net.UDPAddr
	// Logger receives protocol-level debug logs.
	Logger *zerolog.Logger

	mu    sync.Mutex
	state listenerState
	tr    *Transport
	log   zerolog.Logger
}

func (l *AdvertisementListener) logger() zerolog.Logger {
	if l.Logger != nil {
		return *l.Logger
	}
	return zerolog.Nop()
}

// Start binds the transport and begins receiving advertisements.
func (l *AdvertisementListener) Start() error {
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

	tr, err := newTransport(l.Source, l.Target, l.log, l.onPacket)
	if err != nil {
		return err
	}
	l.tr = tr
	l.state = stateStarted
	l.log.Debug().Str("source", HostPortString(l.Source)).Str("target", HostPortString(l.Target)).Msg("advertisement listener started")
	return nil
}

func (l *AdvertisementListener) onPacket(pkt *Packet) {
	if strings.Contains(pkt.Headers.Get("man"), "ssdp:discover") {
		// A search request straying in via the shared group.
		return
	}
	nts, ok := pkt.Headers.Lookup("nts")
	if !ok {
		l.log.Debug().Str("request_line", pkt.RequestLine).Msg("ignoring packet without NTS")
		return
	}

	pkt.Source = SourceAdvertisement

	switch NotificationSubType(nts) {
	case Alive:
		if l.OnAlive != nil {
			l.OnAlive(pkt)
		}
	case Byebye:
		if l.OnByebye != nil {
			l.OnByebye(pkt)
		}
	case Update:
		if l.OnUpdate != nil {
			l.OnUpdate(pkt)
		}
	default:
		l.log.Debug().Str("nts", nts).Msg("ignoring unknown notification subtype")
	}
}

// Stop closes the transport. Idempotent.
func (l *AdvertisementListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateStarted {
		l.state = stateStopped
		return
	}
	l.tr.Close()
	l.state = stateStopped
	l.log.Debug().Msg("advertisement listener stopped")
}
