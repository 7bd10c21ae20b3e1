// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Registry holds every statically-compiled adapter the process links in
// and routes a search, URL import or scheduled-refresh request to the
// right one by name or by domain (spec.md §4.3's "pluggable adapter"
// redesign: adapters self-declare their manifest at Register time rather
// than being looked up from a database table of enabled scrapers).
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Adapter
	byDomain map[string]Adapter
	order    []string
}

// NewRegistry returns an empty Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Adapter),
		byDomain: make(map[string]Adapter),
	}
}

// Register validates a's manifest and adds it to the registry. It panics
// on a malformed manifest (duplicate name, empty HandledDomains) since
// that's a programming error in the adapter's own init, not a runtime
// condition any caller can recover from — the same posture promauto
// metric registration takes at package init.
func (r *Registry) Register(a Adapter) {
	meta := a.Meta()
	if err := validateMeta(meta); err != nil {
		panic(fmt.Sprintf("provider: invalid manifest for adapter %q: %v", meta.Name, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[meta.Name]; exists {
		panic(fmt.Sprintf("provider: adapter %q registered twice", meta.Name))
	}

	r.byName[meta.Name] = a
	r.order = append(r.order, meta.Name)
	for _, domain := range meta.HandledDomains {
		r.byDomain[strings.ToLower(domain)] = a
	}
}

func validateMeta(m Meta) error {
	if m.Name == "" {
		return fmt.Errorf("Name must not be empty")
	}
	if len(m.HandledDomains) == 0 {
		return fmt.Errorf("%s: HandledDomains must not be empty", m.Name)
	}
	if m.RateLimitQuota != nil && *m.RateLimitQuota < 0 {
		return fmt.Errorf("%s: RateLimitQuota must be nil or >= 0", m.Name)
	}
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// RouteByURL returns the adapter whose HandledDomains includes rawURL's
// host, matching subdomains against their registered parent (e.g.
// "www.bilibili.com" and "m.bilibili.com" both route to a "bilibili.com"
// registration).
func (r *Registry) RouteByURL(rawURL string) (Adapter, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for {
		if a, ok := r.byDomain[host]; ok {
			return a, true
		}
		idx := strings.Index(host, ".")
		if idx == -1 {
			return nil, false
		}
		host = host[idx+1:]
	}
}

// Names returns every registered adapter name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// All returns every registered adapter's Meta, for the admin UI's
// provider-configuration listing.
func (r *Registry) All() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Meta, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Meta())
	}
	return out
}
