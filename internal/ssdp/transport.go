package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// multicastTTL bounds how far SSDP multicast travels beyond the local link.
const multicastTTL = 2

const maxDatagramSize = 4096

// Transport owns one UDP socket bound for a (source, target) address pair.
// When the target is a multicast group the socket joins it. Every received
// datagram that passes IsValidPacket is decoded and handed to the packet
// callback; everything else is dropped silently.
type Transport struct {
	source *net.UDPAddr
	target *net.UDPAddr
	conn   *net.UDPConn
	log    zerolog.Logger

	onPacket func(*Packet)

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func newTransport(source, target *net.UDPAddr, log zerolog.Logger, onPacket func(*Packet)) (*Transport, error) {
	if source == nil || target == nil {
		return nil, errors.New("ssdp: transport requires source and target addresses")
	}

	network := "udp4"
	if target.IP.To4() == nil {
		network = "udp6"
	}

	lc := net.ListenConfig{Control: controlReuseAddr}
	bindAddr := listenAddress(source, target)
	pc, err := lc.ListenPacket(context.Background(), network, HostPortString(bindAddr))
	if err != nil {
		return nil, fmt.Errorf("ssdp: bind %s: %w", HostPortString(bindAddr), err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("ssdp: unexpected connection type %T", pc)
	}

	t := &Transport{
		source:   source,
		target:   target,
		conn:     conn,
		log:      log,
		onPacket: onPacket,
		done:     make(chan struct{}),
	}

	if target.IP.IsMulticast() {
		if err := t.configureMulticast(network); err != nil {
			conn.Close()
			return nil, err
		}
	}

	t.wg.Add(1)
	go t.readLoop()

	return t, nil
}

// configureMulticast joins the target group and sets TTL/hop-limit and
// loopback options. IPv4 and IPv6 need distinct option sequences; IPv6
// additionally needs a zone to select the egress interface and skips the
// interface selection, with a log line, when none is available.
func (t *Transport) configureMulticast(network string) error {
	group := &net.UDPAddr{IP: t.target.IP}

	if network == "udp4" {
		pc := ipv4.NewPacketConn(t.conn)
		ifi := interfaceForIP(t.source.IP)
		if err := joinGroup4(pc, ifi, group); err != nil {
			return fmt.Errorf("ssdp: join group %s: %w", t.target.IP, err)
		}
		if err := pc.SetMulticastTTL(multicastTTL); err != nil {
			t.log.Debug().Err(err).Msg("set multicast ttl")
		}
		if err := pc.SetMulticastLoopback(true); err != nil {
			t.log.Debug().Err(err).Msg("set multicast loopback")
		}
		if ifi != nil {
			if err := pc.SetMulticastInterface(ifi); err != nil {
				t.log.Debug().Err(err).Str("interface", ifi.Name).Msg("set multicast interface")
			}
		}
		return nil
	}

	pc := ipv6.NewPacketConn(t.conn)
	ifi := interfaceForZone(t.source.Zone, t.target.Zone)
	if err := joinGroup6(pc, ifi, group); err != nil {
		return fmt.Errorf("ssdp: join group %s: %w", t.target.IP, err)
	}
	if err := pc.SetMulticastHopLimit(multicastTTL); err != nil {
		t.log.Debug().Err(err).Msg("set multicast hop limit")
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		t.log.Debug().Err(err).Msg("set multicast loopback")
	}
	if ifi == nil {
		t.log.Debug().Msg("no zone for IPv6 multicast, skipping interface selection")
	} else if err := pc.SetMulticastInterface(ifi); err != nil {
		t.log.Debug().Err(err).Str("interface", ifi.Name).Msg("set multicast interface")
	}
	return nil
}

// joinGroup4 joins on the given interface, or on every multicast-capable
// interface when none was resolved.
func joinGroup4(pc *ipv4.PacketConn, ifi *net.Interface, group *net.UDPAddr) error {
	if ifi != nil {
		return pc.JoinGroup(ifi, group)
	}
	return joinAllInterfaces(func(candidate *net.Interface) error {
		return pc.JoinGroup(candidate, group)
	})
}

func joinGroup6(pc *ipv6.PacketConn, ifi *net.Interface, group *net.UDPAddr) error {
	if ifi != nil {
		return pc.JoinGroup(ifi, group)
	}
	return joinAllInterfaces(func(candidate *net.Interface) error {
		return pc.JoinGroup(candidate, group)
	})
}

func joinAllInterfaces(join func(*net.Interface) error) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return err
	}
	joined := 0
	var lastErr error
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := join(ifi); err != nil {
			lastErr = err
			continue
		}
		joined++
	}
	if joined == 0 {
		if lastErr != nil {
			return lastErr
		}
		return errors.New("no multicast-capable interface")
	}
	return nil
}

// interfaceForIP finds the interface carrying ip, if any.
func interfaceForIP(ip net.IP) *net.Interface {
	if ip == nil || ip.IsUnspecified() {
		return nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if ok && ipNet.IP.Equal(ip) {
				return &ifaces[i]
			}
		}
	}
	return nil
}

// interfaceForZone resolves an IPv6 zone (interface name or index) to an
// interface, preferring the source zone over the target zone.
func interfaceForZone(zones ...string) *net.Interface {
	for _, zone := range zones {
		if zone == "" {
			continue
		}
		if ifi, err := net.InterfaceByName(zone); err == nil {
			return ifi
		}
		var index int
		if _, err := fmt.Sscanf(zone, "%d", &index); err == nil {
			if ifi, err := net.InterfaceByIndex(index); err == nil {
				return ifi
			}
		}
	}
	return nil
}

func (t *Transport) readLoop() {
	defer t.wg.Done()

	localAddr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	buf := make([]byte, maxDatagramSize)
	for {
		n, remoteAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
			default:
				t.log.Debug().Err(err).Msg("read error")
			}
			return
		}

		data := buf[:n]
		if !IsValidPacket(data) {
			continue
		}
		pkt, err := Decode(append([]byte(nil), data...), localAddr, remoteAddr)
		if err != nil {
			t.log.Debug().Err(err).Str("remote", remoteAddr.String()).Msg("dropping undecodable packet")
			continue
		}
		t.log.Debug().Str("remote", remoteAddr.String()).Str("request_line", pkt.RequestLine).Msg("received packet")
		if t.onPacket != nil {
			t.onPacket(pkt)
		}
	}
}

// Send writes a datagram to the given address, or to the configured target
// when to is nil.
func (t *Transport) Send(data []byte, to *net.UDPAddr) error {
	if to == nil {
		to = t.target
	}
	_, err := t.conn.WriteToUDP(data, to)
	return err
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() *net.UDPAddr {
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Close shuts the socket down. No callbacks fire after Close returns.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.conn.Close()
	})
	t.wg.Wait()
}
