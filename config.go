package trialproxy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Listen                string           `yaml:"listen"`
	DailyLimit            int              `yaml:"daily_limit"`
	AnonymousID           string           `yaml:"anonymous_id"`
	AttemptTimeoutSeconds int              `yaml:"attempt_timeout_seconds"`
	Providers             []ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures a single provider entry. Entry order is the
// fallback order.
type ProviderConfig struct {
	ID            string `yaml:"id"`
	DisplayName   string `yaml:"display_name"`
	EndpointURL   string `yaml:"endpoint_url"`
	DefaultModel  string `yaml:"default_model"`
	CredentialEnv string `yaml:"credential_env"`
}

// DefaultConfig returns the configuration used when no file is given:
// the stock three-provider registry with compiled defaults.
func DefaultConfig() Config {
	return Config{
		Listen:                ":8787",
		DailyLimit:            DefaultDailyLimit,
		AnonymousID:           DefaultAnonymousCaller,
		AttemptTimeoutSeconds: int(DefaultAttemptTimeout / time.Second),
	}
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
// Omitted fields fall back to the compiled defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("trialproxy: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("trialproxy: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.DailyLimit < 0 {
		return fmt.Errorf("trialproxy: config: daily_limit must not be negative")
	}
	if c.AttemptTimeoutSeconds < 0 {
		return fmt.Errorf("trialproxy: config: attempt_timeout_seconds must not be negative")
	}

	ids := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("trialproxy: config: providers[%d]: id is required", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("trialproxy: config: duplicate provider id %q", p.ID)
		}
		ids[p.ID] = true

		if p.EndpointURL == "" {
			return fmt.Errorf("trialproxy: config: providers[%d] (%s): endpoint_url is required", i, p.ID)
		}
		if p.DefaultModel == "" {
			return fmt.Errorf("trialproxy: config: providers[%d] (%s): default_model is required", i, p.ID)
		}
		if p.CredentialEnv == "" {
			return fmt.Errorf("trialproxy: config: providers[%d] (%s): credential_env is required", i, p.ID)
		}
	}

	return nil
}

// AttemptTimeout returns the per-provider call timeout.
func (c Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}

// Descriptors returns the configured provider order, or the stock registry
// when the config names no providers.
func (c Config) Descriptors() []Descriptor {
	if len(c.Providers) == 0 {
		return DefaultDescriptors()
	}

	descs := make([]Descriptor, len(c.Providers))
	for i, p := range c.Providers {
		name := p.DisplayName
		if name == "" {
			name = p.ID
		}
		descs[i] = Descriptor{
			ID:               p.ID,
			DisplayName:      name,
			EndpointURL:      p.EndpointURL,
			DefaultModel:     p.DefaultModel,
			CredentialEnvKey: p.CredentialEnv,
		}
	}
	return descs
}
