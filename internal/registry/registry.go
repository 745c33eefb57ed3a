// Package registry resolves a canonical request's model identifier to
// the Provider instance that should serve it. Construction is grounded
// in original_source/src/providers/registry.rs's ProviderRegistry: one
// entry per configured provider, keyed by provider name, plus a flat
// model -> provider-name index built from each provider's configured
// model list. Resolution is exact match then prefix match, same order
// the Rust original's get_provider_for_model uses. Once built, a
// Registry is read-only and safe for concurrent use without locking.
package registry

import (
	"sort"
	"strings"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/policy"
	"github.com/corvidlabs/aigateway/internal/provider"
)

// Registry maps model identifiers to the Provider that serves them.
type Registry struct {
	providers map[string]provider.Provider
	modelToProvider map[string]string
	router    *policy.Router
}

// New builds a Registry from a set of constructed providers and each
// provider's configured (or discovered) model list. It fails if no
// providers are given, mirroring the Rust original's empty-providers
// check in ProviderRegistry::new.
func New(providers map[string]provider.Provider, modelsByProvider map[string][]string, router *policy.Router) (*Registry, error) {
	if len(providers) == 0 {
		return nil, apierr.New(apierr.KindConfiguration, "registry requires at least one provider")
	}

	r := &Registry{
		providers:       providers,
		modelToProvider: make(map[string]string),
		router:          router,
	}

	for name, models := range modelsByProvider {
		if _, ok := providers[name]; !ok {
			continue
		}
		for _, m := range models {
			r.modelToProvider[m] = name
		}
	}

	return r, nil
}

// Resolve returns the Provider that should serve model, trying (in
// order): the optional Lua routing policy, an exact model match, then a
// provider-name prefix match (e.g. "openai/gpt-4o" resolves to the
// "openai" provider with model "gpt-4o" stripped by the caller's
// convention only if it chooses to use one — the gateway itself does not
// require prefixed model names). Returns a model_not_found apierr.Error
// listing the known models when nothing matches.
func (r *Registry) Resolve(model string) (provider.Provider, error) {
	if r.router != nil {
		if name, err := r.router.Route(model); err != nil {
			return nil, err
		} else if name != "" {
			if p, ok := r.providers[name]; ok {
				return p, nil
			}
		}
	}

	if name, ok := r.modelToProvider[model]; ok {
		return r.providers[name], nil
	}

	for name, p := range r.providers {
		if strings.HasPrefix(model, name+"/") || strings.HasPrefix(model, name+"-") {
			return p, nil
		}
	}

	return nil, apierr.New(apierr.KindModelNotFound, "model %q not found; known models: %s", model, strings.Join(r.knownModels(), ", "))
}

// Provider returns the named provider directly, used by health-check and
// list-models fanouts that need every backend rather than one resolved
// by model.
func (r *Registry) Provider(name string) (provider.Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Providers returns every configured provider, in a deterministic
// (name-sorted) order.
func (r *Registry) Providers() []provider.Provider {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]provider.Provider, 0, len(names))
	for _, name := range names {
		out = append(out, r.providers[name])
	}
	return out
}

func (r *Registry) knownModels() []string {
	models := make([]string, 0, len(r.modelToProvider))
	for m := range r.modelToProvider {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
