package application

import (
	"fmt"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
)

// AdapterRegistry resolves the ProviderAdapter variant for a provider. It is
// built once at startup and is read-only afterwards.
type AdapterRegistry struct {
	adapters map[model.Provider]driven.ProviderAdapter
}

// NewAdapterRegistry creates a registry holding exactly one adapter per
// supported provider. A missing, duplicate or unknown variant is a
// *model.ConfigError so misconfiguration fails at startup.
func NewAdapterRegistry(adapters ...driven.ProviderAdapter) (*AdapterRegistry, error) {
	r := &AdapterRegistry{adapters: make(map[model.Provider]driven.ProviderAdapter, len(adapters))}

	for _, a := range adapters {
		if a == nil {
			return nil, &model.ConfigError{Key: "provider adapter", Reason: "nil adapter"}
		}
		p := a.Provider()
		if !p.Valid() {
			return nil, &model.ConfigError{Key: "provider adapter", Reason: fmt.Sprintf("unknown provider %q", p)}
		}
		if _, dup := r.adapters[p]; dup {
			return nil, &model.ConfigError{Key: "provider adapter", Reason: fmt.Sprintf("duplicate adapter for %s", p)}
		}
		r.adapters[p] = a
	}

	for _, p := range model.Providers() {
		if _, ok := r.adapters[p]; !ok {
			return nil, &model.ConfigError{Key: "provider adapter", Reason: fmt.Sprintf("no adapter for %s", p)}
		}
	}

	return r, nil
}

// Get returns the adapter for p, or *model.UnsupportedProviderError.
func (r *AdapterRegistry) Get(p model.Provider) (driven.ProviderAdapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, &model.UnsupportedProviderError{Provider: string(p)}
	}
	return a, nil
}

// Providers returns the registered providers in canonical order.
func (r *AdapterRegistry) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(r.adapters))
	for _, p := range model.Providers() {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
