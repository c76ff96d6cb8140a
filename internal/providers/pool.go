package providers

import "fmt"

// TierEntry binds a tier name to a concrete model and the handle used to
// reach it.
type TierEntry struct {
	Model        CompletionModel
	ModelName    string
	ProviderName string
}

// Pool maps tier → (model handle, model name, provider name). The
// "default" tier must be present; unknown tiers fall back to it.
type Pool struct {
	tiers     map[string]TierEntry
	overrides *ModelOverrides
}

// NewPool constructs a Pool. Construction fails if "default" is absent.
func NewPool(tiers map[string]TierEntry) (*Pool, error) {
	if _, ok := tiers["default"]; !ok {
		return nil, fmt.Errorf("model pool requires a %q tier", "default")
	}
	return &Pool{tiers: tiers, overrides: NewModelOverrides()}, nil
}

// Overrides exposes the pool's ModelOverrides so callers can register
// additional patterns from configuration.
func (p *Pool) Overrides() *ModelOverrides { return p.overrides }

// Get resolves a tier, falling back to "default" when tier is empty or
// unknown.
func (p *Pool) Get(tier string) TierEntry {
	if entry, ok := p.tiers[tier]; ok {
		return entry
	}
	return p.tiers["default"]
}

// ResolveParams applies ModelOverrides for the tier's model name on top
// of requested temperature/max_tokens.
func (p *Pool) ResolveParams(tier string, temperature float64, maxTokens int) (float64, int) {
	entry := p.Get(tier)
	return p.overrides.Resolve(entry.ModelName, temperature, maxTokens)
}
