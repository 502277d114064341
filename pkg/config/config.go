// Package config defines the orchestrator's typed configuration record
// (spec.md section 9, "Configuration object"), loaded from YAML the way
// the teacher's manifests are.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the recognized set of options, spec.md section 9.
type Config struct {
	MaxInstancesPerOffer int `yaml:"maxInstancesPerOffer"`

	MinReviveOffersInterval time.Duration `yaml:"minReviveOffersInterval"`

	ReconciliationInitialDelay time.Duration `yaml:"reconciliationInitialDelay"`
	ReconciliationInterval     time.Duration `yaml:"reconciliationInterval"`

	TaskLostExpungeInitialDelay time.Duration `yaml:"taskLostExpungeInitialDelay"`
	TaskLostExpungeInterval     time.Duration `yaml:"taskLostExpungeInterval"`
	TaskLostExpungeGC           time.Duration `yaml:"taskLostExpungeGc"`

	DefaultAcceptedResourceRoles []string `yaml:"defaultAcceptedResourceRoles"`
	DefaultNetworkName           *string  `yaml:"defaultNetworkName"`
	EnvVarsPrefix                *string  `yaml:"envVarsPrefix"`
	EnabledFeatures               []string `yaml:"enabledFeatures"`
}

// Default returns a Config with sensible defaults, matching the source's
// conservative timings.
func Default() Config {
	return Config{
		MaxInstancesPerOffer:       100,
		MinReviveOffersInterval:    5 * time.Second,
		ReconciliationInitialDelay: 15 * time.Second,
		ReconciliationInterval:     30 * time.Second,
		TaskLostExpungeInitialDelay: 5 * time.Minute,
		TaskLostExpungeInterval:     30 * time.Second,
		TaskLostExpungeGC:           15 * time.Minute,
		DefaultAcceptedResourceRoles: []string{"*"},
		EnabledFeatures:              []string{},
	}
}

// Load reads a YAML configuration file, applying it on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// HasFeature reports whether a named feature flag is enabled.
func (c Config) HasFeature(name string) bool {
	for _, f := range c.EnabledFeatures {
		if f == name {
			return true
		}
	}
	return false
}
