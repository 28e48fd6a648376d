package trialproxy

import (
	"fmt"
	"os"
)

// Descriptor describes a single upstream provider. Descriptors are loaded
// once at startup and never change at runtime.
type Descriptor struct {
	ID               string
	DisplayName      string
	EndpointURL      string
	DefaultModel     string
	CredentialEnvKey string
}

// ActiveProvider pairs a descriptor with its resolved credential.
type ActiveProvider struct {
	Descriptor
	Credential string
}

// CredentialSource resolves a credential lookup key to a secret value.
// An empty result deactivates the descriptor rather than erroring.
type CredentialSource func(key string) string

// Registry holds the fixed, ordered list of provider descriptors.
// Iteration order is identical across calls for the process lifetime.
type Registry struct {
	descriptors []Descriptor
	credentials CredentialSource
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCredentialSource overrides the default os.Getenv credential lookup.
func WithCredentialSource(src CredentialSource) RegistryOption {
	return func(r *Registry) { r.credentials = src }
}

// NewRegistry creates a Registry from the given ordered descriptors.
func NewRegistry(descriptors []Descriptor, opts ...RegistryOption) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("trialproxy: at least one provider descriptor is required")
	}

	ids := make(map[string]bool, len(descriptors))
	for i, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("trialproxy: descriptor[%d]: id is required", i)
		}
		if ids[d.ID] {
			return nil, fmt.Errorf("trialproxy: duplicate provider id %q", d.ID)
		}
		ids[d.ID] = true

		if d.EndpointURL == "" {
			return nil, fmt.Errorf("trialproxy: descriptor[%d] (%s): endpoint URL is required", i, d.ID)
		}
		if d.CredentialEnvKey == "" {
			return nil, fmt.Errorf("trialproxy: descriptor[%d] (%s): credential key is required", i, d.ID)
		}
	}

	r := &Registry{
		descriptors: append([]Descriptor(nil), descriptors...),
		credentials: os.Getenv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// DefaultDescriptors returns the stock provider order. All three speak the
// OpenAI chat completion wire format.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:               "groq",
			DisplayName:      "Groq",
			EndpointURL:      "https://api.groq.com/openai/v1/chat/completions",
			DefaultModel:     "llama-3.3-70b-versatile",
			CredentialEnvKey: "GROQ_API_KEY",
		},
		{
			ID:               "openrouter",
			DisplayName:      "OpenRouter",
			EndpointURL:      "https://openrouter.ai/api/v1/chat/completions",
			DefaultModel:     "meta-llama/llama-3.3-70b-instruct:free",
			CredentialEnvKey: "OPENROUTER_API_KEY",
		},
		{
			ID:               "gemini",
			DisplayName:      "Gemini",
			EndpointURL:      "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
			DefaultModel:     "gemini-2.0-flash",
			CredentialEnvKey: "GEMINI_API_KEY",
		},
	}
}

// Descriptors returns a copy of the full registry order.
func (r *Registry) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descriptors...)
}

// Active returns descriptors with a non-empty configured credential,
// preserving registry order.
func (r *Registry) Active() []ActiveProvider {
	var active []ActiveProvider
	for _, d := range r.descriptors {
		cred := r.credentials(d.CredentialEnvKey)
		if cred == "" {
			continue
		}
		active = append(active, ActiveProvider{Descriptor: d, Credential: cred})
	}
	return active
}
