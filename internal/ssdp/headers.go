package ssdp

import (
	"fmt"
	"strings"
)

type headerItem struct {
	key   string
	value string
}

// Headers is an insertion-ordered, case-insensitive mapping of SSDP header
// names to values. Lookups succeed for any letter-casing of a key; the
// last-written casing of a key is retained as the canonical key.
type Headers struct {
	order []string
	items map[string]headerItem
}

// NewHeaders creates an empty header map.
func NewHeaders() *Headers {
	return &Headers{items: make(map[string]headerItem)}
}

// HeadersFrom creates a header map from key/value pairs, preserving pair order.
func HeadersFrom(pairs ...string) *Headers {
	if len(pairs)%2 != 0 {
		panic("ssdp: HeadersFrom requires an even number of arguments")
	}
	h := NewHeaders()
	for i := 0; i < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func headerKey(key string) string {
	return strings.ToLower(key)
}

// Set stores value under key. An existing entry keeps its insertion position
// but adopts the new casing of key as canonical.
func (h *Headers) Set(key, value string) {
	ci := headerKey(key)
	if _, ok := h.items[ci]; !ok {
		h.order = append(h.order, ci)
	}
	h.items[ci] = headerItem{key: key, value: value}
}

// Get returns the value for key, or the empty string when absent.
func (h *Headers) Get(key string) string {
	value, _ := h.Lookup(key)
	return value
}

// Lookup returns the value for key and whether it is present.
func (h *Headers) Lookup(key string) (string, bool) {
	item, ok := h.items[headerKey(key)]
	return item.value, ok
}

// Has reports whether key is present under any casing.
func (h *Headers) Has(key string) bool {
	_, ok := h.items[headerKey(key)]
	return ok
}

// CanonicalKey returns the stored casing for key, or key itself when absent.
func (h *Headers) CanonicalKey(key string) string {
	if item, ok := h.items[headerKey(key)]; ok {
		return item.key
	}
	return key
}

// Del removes key under any casing.
func (h *Headers) Del(key string) {
	ci := headerKey(key)
	if _, ok := h.items[ci]; !ok {
		return
	}
	delete(h.items, ci)
	for i, k := range h.order {
		if k == ci {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (h *Headers) Len() int {
	return len(h.items)
}

// Keys returns the canonical keys in insertion order.
func (h *Headers) Keys() []string {
	keys := make([]string, 0, len(h.order))
	for _, ci := range h.order {
		keys = append(keys, h.items[ci].key)
	}
	return keys
}

// Each calls fn for every entry in insertion order.
func (h *Headers) Each(fn func(key, value string)) {
	for _, ci := range h.order {
		item := h.items[ci]
		fn(item.key, item.value)
	}
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	clone := &Headers{
		order: append([]string(nil), h.order...),
		items: make(map[string]headerItem, len(h.items)),
	}
	for ci, item := range h.items {
		clone.items[ci] = item
	}
	return clone
}

// Merge updates h in place with every entry of other. Entries absent from
// other are left untouched, so a partial update does not erase known fields.
func (h *Headers) Merge(other *Headers) {
	if other == nil {
		return
	}
	other.Each(func(key, value string) {
		h.Set(key, value)
	})
}

// Equal compares two header maps case-insensitively, ignoring order.
func (h *Headers) Equal(other *Headers) bool {
	if other == nil || len(h.items) != len(other.items) {
		return false
	}
	for ci, item := range h.items {
		o, ok := other.items[ci]
		if !ok || o.value != item.value {
			return false
		}
	}
	return true
}

func (h *Headers) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, ci := range h.order {
		if i > 0 {
			b.WriteString(", ")
		}
		item := h.items[ci]
		fmt.Fprintf(&b, "%s: %s", item.key, item.value)
	}
	b.WriteString("}")
	return b.String()
}
