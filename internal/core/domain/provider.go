package domain

import (
	"fmt"
	"sort"
)

// Provider identifies an embedding source with a fixed output vector length.
type Provider string

// Available embedding providers.
const (
	// ProviderRemote is a hosted embedding API (OpenAI-compatible).
	ProviderRemote Provider = "remote"

	// ProviderLocal is an embedding model running on this machine (Ollama).
	ProviderLocal Provider = "local"
)

// AllProviders lists every provider in search order.
var AllProviders = []Provider{ProviderRemote, ProviderLocal}

// IsValid returns true if the provider is recognised.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderRemote, ProviderLocal:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (p Provider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p Provider) Description() string {
	switch p {
	case ProviderRemote:
		return "Remote (hosted API)"
	case ProviderLocal:
		return "Local (on-device model)"
	default:
		return unknownDescription
	}
}

// ProviderDimensions maps each provider to its fixed vector length.
type ProviderDimensions map[Provider]int

// Match returns the providers whose dimension equals n, in AllProviders order.
func (d ProviderDimensions) Match(n int) []Provider {
	var out []Provider
	for _, p := range AllProviders {
		if dim, ok := d[p]; ok && dim > 0 && dim == n {
			out = append(out, p)
		}
	}
	return out
}

// Check verifies that vec has exactly the dimension configured for p.
func (d ProviderDimensions) Check(p Provider, vec []float32) error {
	if !p.IsValid() {
		return fmt.Errorf("provider %q: %w", p, ErrInvalidInput)
	}
	want, ok := d[p]
	if !ok || want <= 0 {
		return fmt.Errorf("provider %s not configured: %w", p, ErrUnknownEmbeddingDimension)
	}
	if len(vec) != want {
		return fmt.Errorf("provider %s expects %d dimensions, got %d: %w",
			p, want, len(vec), ErrUnknownEmbeddingDimension)
	}
	return nil
}

// EmbeddingSet holds at most one vector per provider.
// A missing key or a nil vector both mean "absent for that provider".
type EmbeddingSet map[Provider][]float32

// Get returns the vector for p if present.
func (s EmbeddingSet) Get(p Provider) ([]float32, bool) {
	v, ok := s[p]
	if !ok || len(v) == 0 {
		return nil, false
	}
	return v, true
}

// Providers returns the providers with a present vector, sorted.
func (s EmbeddingSet) Providers() []Provider {
	out := make([]Provider, 0, len(s))
	for p, v := range s {
		if len(v) > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Split separates the usable vectors from those rejected by dims.
// Rejected providers map to the validation error.
func (s EmbeddingSet) Split(dims ProviderDimensions) (EmbeddingSet, map[Provider]error) {
	valid := make(EmbeddingSet, len(s))
	var rejected map[Provider]error
	for p, v := range s {
		if len(v) == 0 {
			continue
		}
		if err := dims.Check(p, v); err != nil {
			if rejected == nil {
				rejected = make(map[Provider]error)
			}
			rejected[p] = err
			continue
		}
		valid[p] = v
	}
	return valid, rejected
}
