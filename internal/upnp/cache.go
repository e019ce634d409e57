package upnp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoLocation is returned for devices that never advertised a description
// URL.
var ErrNoLocation = errors.New("no description location")

type cacheEntry struct {
	done    chan struct{}
	device  *DeviceDescription
	err     error
	expires time.Time
}

// DescriptionCache caches description fetch results per location URL.
// Failures are cached too, so an unreachable device is not hammered on every
// sighting. Concurrent callers for the same location share one fetch.
type DescriptionCache struct {
	requester  Requester
	successTTL time.Duration
	failureTTL time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewDescriptionCache creates a cache around requester. A zero TTL keeps the
// corresponding results until Uncache is called. logger may be nil.
func NewDescriptionCache(requester Requester, successTTL, failureTTL time.Duration, logger *zerolog.Logger) *DescriptionCache {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &DescriptionCache{
		requester:  requester,
		successTTL: successTTL,
		failureTTL: failureTTL,
		log:        log,
		entries:    make(map[string]*cacheEntry),
	}
}

// Get returns the description at location, fetching it at most once per TTL
// window. Callers arriving while a fetch is in flight wait for its result.
func (c *DescriptionCache) Get(ctx context.Context, location string) (*DeviceDescription, error) {
	if location == "" {
		return nil, ErrNoLocation
	}

	c.mu.Lock()
	entry := c.entries[location]
	if entry != nil {
		select {
		case <-entry.done:
			if entry.expires.IsZero() || time.Now().Before(entry.expires) {
				c.mu.Unlock()
				return entry.device, entry.err
			}
			// Expired; fall through and refetch.
			entry = nil
		default:
			// Fetch in flight; wait for it below.
		}
	}
	if entry == nil {
		entry = &cacheEntry{done: make(chan struct{})}
		c.entries[location] = entry
		c.mu.Unlock()
		c.fetch(ctx, location, entry)
		return entry.device, entry.err
	}
	c.mu.Unlock()

	select {
	case <-entry.done:
		return entry.device, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *DescriptionCache) fetch(ctx context.Context, location string, entry *cacheEntry) {
	device, err := FetchDescription(ctx, c.requester, location)
	entry.device = device
	entry.err = err

	ttl := c.successTTL
	if err != nil {
		ttl = c.failureTTL
		c.log.Debug().Str("location", location).Err(err).Msg("caching description failure")
	}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	close(entry.done)
}

// Uncache drops the cached result for location, forcing the next Get to
// fetch again. A byebye or a changed location invalidates the description.
func (c *DescriptionCache) Uncache(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, location)
}

// Len returns the number of cached locations, in flight included.
func (c *DescriptionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
