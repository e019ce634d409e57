package discovery

import (
	"sort"
	"strings"
)

// enrichInsightMetadata derives the discovery sources involved in a device
// record and an approximate insight score the UI can use for filtering and
// prioritisation.
func enrichInsightMetadata(info *DeviceInfo) {
	if info == nil {
		return
	}

	score := 0
	sources := make(map[string]struct{})

	addSource := func(name string) {
		if name == "" {
			return
		}
		sources[name] = struct{}{}
	}

	// Every tracked device was seen via SSDP by definition.
	addSource("ssdp")
	score += len(info.Types)

	if info.FriendlyName != "" {
		score += 2
		addSource("description")
	}
	if info.ModelName != "" {
		score++
	}
	if info.Manufacturer != "" {
		score++
	}

	if info.Reachable {
		score += 2
		addSource("icmp")
	}

	if len(info.Hostnames) > 0 {
		score += len(info.Hostnames)
		addSource("dns")
	}

	if len(info.MDNSNames) > 0 {
		score += len(info.MDNSNames) * 2
		addSource("mdns")
	}

	if info.MacAddress != "" {
		score += 2
		addSource("arp")
	}

	if info.MacVendor != "" && !strings.EqualFold(info.MacVendor, "unknown") {
		score++
		addSource("oui")
	}

	info.InsightScore = score

	ordered := make([]string, 0, len(sources))
	for key := range sources {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)
	info.DiscoverySources = ordered
}
