package upnp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDescriptionCacheCachesSuccess(t *testing.T) {
	requester := newFakeRequester()
	location := "http://192.168.1.1:49152/gatedesc.xml"
	requester.serve(location, 200, igdDescriptionXML)

	cache := NewDescriptionCache(requester, 0, 0, nil)
	for i := 0; i < 3; i++ {
		device, err := cache.Get(context.Background(), location)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if device.UDN != "uuid:igd-1" {
			t.Fatalf("unexpected UDN %q", device.UDN)
		}
	}
	if got := requester.count(location); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}

func TestDescriptionCacheCachesFailure(t *testing.T) {
	requester := newFakeRequester()
	location := "http://192.168.1.66/desc.xml"
	requester.fail(location, errors.New("connection refused"))

	cache := NewDescriptionCache(requester, 0, 0, nil)
	for i := 0; i < 3; i++ {
		if _, err := cache.Get(context.Background(), location); err == nil {
			t.Fatalf("expected cached failure")
		}
	}
	if got := requester.count(location); got != 1 {
		t.Fatalf("failure not cached, got %d fetches", got)
	}
}

func TestDescriptionCacheFailureTTL(t *testing.T) {
	requester := newFakeRequester()
	location := "http://192.168.1.66/desc.xml"
	requester.fail(location, errors.New("connection refused"))

	cache := NewDescriptionCache(requester, 0, time.Nanosecond, nil)
	if _, err := cache.Get(context.Background(), location); err == nil {
		t.Fatalf("expected failure")
	}
	time.Sleep(time.Millisecond)

	// The device came back in the meantime.
	requester.serve(location, 200, igdDescriptionXML)
	device, err := cache.Get(context.Background(), location)
	if err != nil {
		t.Fatalf("expected refetch after failure TTL, got %v", err)
	}
	if device == nil || device.UDN != "uuid:igd-1" {
		t.Fatalf("unexpected device %v", device)
	}
	if got := requester.count(location); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
}

func TestDescriptionCacheUncache(t *testing.T) {
	requester := newFakeRequester()
	location := "http://192.168.1.1:49152/gatedesc.xml"
	requester.serve(location, 200, igdDescriptionXML)

	cache := NewDescriptionCache(requester, 0, 0, nil)
	if _, err := cache.Get(context.Background(), location); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache.Uncache(location)
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after Uncache")
	}
	if _, err := cache.Get(context.Background(), location); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := requester.count(location); got != 2 {
		t.Fatalf("expected refetch after Uncache, got %d fetches", got)
	}
}

func TestDescriptionCacheConcurrentCallersShareFetch(t *testing.T) {
	requester := newFakeRequester()
	location := "http://192.168.1.1:49152/gatedesc.xml"
	requester.serve(location, 200, igdDescriptionXML)

	cache := NewDescriptionCache(requester, 0, 0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), location); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := requester.count(location); got != 1 {
		t.Fatalf("expected concurrent callers to share one fetch, got %d", got)
	}
}

func TestDescriptionCacheNoLocation(t *testing.T) {
	cache := NewDescriptionCache(newFakeRequester(), 0, 0, nil)
	if _, err := cache.Get(context.Background(), ""); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
}
