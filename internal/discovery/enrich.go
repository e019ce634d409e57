package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/endobit/oui"
	ping "github.com/go-ping/ping"
	"github.com/grandcat/zeroconf"

	"upnpscan/internal/upnp"
)

// deviceDetails is the outcome of the enrichment lookups for one device.
type deviceDetails struct {
	reachable   bool
	latencyMs   float64
	hostnames   []string
	mdnsNames   []string
	mac         string
	macVendor   string
	description *upnp.DeviceDescription
	err         error
}

// apply folds the gathered details into a device record.
func (d deviceDetails) apply(info *DeviceInfo) {
	info.Reachable = d.reachable
	info.LatencyMs = d.latencyMs
	info.Hostnames = d.hostnames
	info.MDNSNames = d.mdnsNames
	info.MacAddress = d.mac
	info.MacVendor = d.macVendor
	if d.description != nil {
		info.FriendlyName = d.description.FriendlyName
		info.Manufacturer = d.description.Manufacturer
		info.ModelName = d.description.ModelName
	}
	if d.err != nil {
		info.Error = d.err.Error()
	}
	info.DeviceName = selectDeviceName(info.FriendlyName, info.MDNSNames, info.Hostnames)
}

// collectDeviceDetails runs all lookup operations for host in parallel: the
// description document, ICMP reachability, reverse DNS, mDNS names and the
// ARP/OUI pair. Individual lookups failing leave their fields empty.
func collectDeviceDetails(ctx context.Context, cache *upnp.DescriptionCache, host, location string) deviceDetails {
	var details deviceDetails
	if host == "" {
		return details
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		description, err := cache.Get(ctx, location)
		details.description = description
		if err != nil && !errors.Is(err, upnp.ErrNoLocation) {
			details.err = err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		summary, err := pingHost(ctx, host, 3)
		if err != nil || !summary.Reachable {
			return
		}
		details.reachable = true
		details.latencyMs = summary.AvgLatency.Seconds() * 1000
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		details.hostnames = lookupHostnames(ctx, host)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		details.mdnsNames = lookupMDNS(ctx, host)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		details.mac = lookupMACAddress(ctx, host)
		details.macVendor = lookupVendor(details.mac)
	}()

	wg.Wait()
	return details
}

// selectDeviceName picks the best display name: the UPnP friendlyName when
// the description yielded one, then mDNS, then reverse DNS.
func selectDeviceName(friendlyName string, mdns, hostnames []string) string {
	if friendlyName != "" {
		return friendlyName
	}
	if len(mdns) > 0 {
		return mdns[0]
	}
	if len(hostnames) > 0 {
		return hostnames[0]
	}
	return ""
}

type pingSummary struct {
	Reachable  bool
	AvgLatency time.Duration
	Attempts   int
}

func pingHost(ctx context.Context, host string, attempts int) (pingSummary, error) {
	summary := pingSummary{Attempts: attempts}

	pinger, err := ping.NewPinger(host)
	if err != nil {
		return summary, err
	}
	if runtime.GOOS == "windows" {
		pinger.SetPrivileged(true)
	}

	if attempts <= 0 {
		attempts = 1
	}
	pinger.Count = attempts
	pinger.Timeout = time.Duration(attempts) * 2 * time.Second

	statsCh := make(chan *ping.Statistics, 1)
	pinger.OnFinish = func(stats *ping.Statistics) {
		statsCh <- stats
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		return summary, ctx.Err()
	case err := <-errCh:
		if err != nil {
			return summary, err
		}
	}

	var stats *ping.Statistics
	select {
	case stats = <-statsCh:
	case <-ctx.Done():
		return summary, ctx.Err()
	}
	if stats == nil {
		return summary, errors.New("no statistics available")
	}
	summary.Attempts = stats.PacketsSent
	if stats.PacketsRecv == 0 {
		return summary, fmt.Errorf("no ping response from %s", host)
	}

	summary.Reachable = true
	summary.AvgLatency = stats.AvgRtt
	return summary, nil
}

func lookupHostnames(ctx context.Context, host string) []string {
	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(lookupCtx, host)
	if err != nil {
		return nil
	}
	return uniqueStrings(names)
}

func lookupMDNS(ctx context.Context, host string) []string {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil
	}

	entries := make(chan *zeroconf.ServiceEntry)

	ctx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()

	resultsMu := sync.Mutex{}
	results := make(map[string]struct{})

	go func() {
		for entry := range entries {
			for _, addr := range append(entry.AddrIPv4, entry.AddrIPv6...) {
				if addr.String() != host {
					continue
				}
				resultsMu.Lock()
				if entry.Instance != "" {
					results[entry.Instance] = struct{}{}
				}
				if entry.HostName != "" {
					results[entry.HostName] = struct{}{}
				}
				resultsMu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, "_services._dns-sd._udp", "local.", entries); err != nil {
		return nil
	}
	<-ctx.Done()

	resultsMu.Lock()
	defer resultsMu.Unlock()
	if len(results) == 0 {
		return nil
	}
	out := make([]string, 0, len(results))
	for key := range results {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func lookupMACAddress(ctx context.Context, host string) string {
	if mac := lookupMACFromProc(host); mac != "" {
		return mac
	}
	return lookupMACViaARPCommand(ctx, host)
}

func lookupMACFromProc(host string) string {
	data, err := os.ReadFile("/proc/net/arp")
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) < 4 {
			continue
		}
		if fields[0] == host {
			if mac := normaliseMAC(fields[3]); mac != "" {
				return mac
			}
		}
	}
	return ""
}

func lookupMACViaARPCommand(ctx context.Context, host string) string {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "arp", "-a", host)
	} else {
		cmd = exec.CommandContext(ctx, "arp", "-n", host)
	}
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	match := macLinePattern.FindString(string(output))
	return normaliseMAC(match)
}

func lookupVendor(mac string) string {
	if mac == "" {
		return ""
	}
	return oui.Vendor(strings.ToLower(mac))
}
