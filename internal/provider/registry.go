package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps provider names to adapter instances and tracks which
// one is active. It is constructed at startup and passed down
// explicitly; there is no package-global instance. Writes happen at
// startup or on operator settings changes only.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	active    string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its lower-cased name. The first
// registered provider becomes active automatically.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(p.Name())
	r.providers[name] = p
	if r.active == "" {
		r.active = name
	}
}

// Unregister removes a provider. If it was active, an arbitrary
// remaining provider is promoted; active is cleared when none remain.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.ToLower(name)
	delete(r.providers, name)

	if r.active == name {
		r.active = ""
		for n := range r.providers {
			r.active = n
			break
		}
	}
}

// Get returns a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return p, nil
}

// Active returns the active provider
func (r *Registry) Active() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == "" {
		return nil, fmt.Errorf("no email provider registered")
	}
	return r.providers[r.active], nil
}

// ActiveName returns the active provider's name, empty if none
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive switches the active provider
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.ToLower(name)
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.active = name
	return nil
}

// SetProviderConfig pushes configuration into a registered adapter.
// Configuring an unregistered name is a programmer error, not a
// recoverable condition: it panics.
func (r *Registry) SetProviderConfig(name string, cfg Config) {
	r.mu.RLock()
	p, ok := r.providers[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("provider: SetProviderConfig on unregistered provider %q", name))
	}
	p.Configure(cfg)
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
