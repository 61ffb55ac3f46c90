package llm

import "strings"

// Registry holds the model backends a deployment has configured, keyed by
// normalized provider name. Populated once at startup; lookups are read-only.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its own normalized name. Providers without a
// usable name are ignored; registering the same name twice keeps the latest.
func (r *Registry) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	name := normalizeProviderName(p.Name())
	if name == "" {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[name] = p
}

// Get returns the provider registered under the given name, matching
// case-insensitively.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil || r.providers == nil {
		return nil, false
	}
	name = normalizeProviderName(name)
	if name == "" {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

func normalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
