// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile loads declarative capability bundles from YAML or
// JSONC files. A profile names a set of token grants; minting a
// profile against a keyring yields one token per grant, ready to load
// into a scope.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/warden-project/warden/lib/capability"
)

// Duration wraps time.Duration for YAML, accepting Go duration
// strings ("30m", "1h15m") and bare integers (nanoseconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var nanos int64
	if err := value.Decode(&nanos); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(nanos)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Grant declares one token to mint. Empty constraint lists leave the
// corresponding dimension unrestricted.
type Grant struct {
	Type          string   `yaml:"type"`
	Resources     []string `yaml:"resources,omitempty"`
	Operations    []string `yaml:"operations,omitempty"`
	Hosts         []string `yaml:"hosts,omitempty"`
	Ports         []int    `yaml:"ports,omitempty"`
	ExpiresIn     Duration `yaml:"expires_in,omitempty"`
	MaxUsageCount int      `yaml:"max_usage_count,omitempty"`
	MaxFileSize   int64    `yaml:"max_file_size,omitempty"`
	MaxMemory     int64    `yaml:"max_memory,omitempty"`
	MaxCPUTime    Duration `yaml:"max_cpu_time,omitempty"`
}

// Profile is a named bundle of grants.
type Profile struct {
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description,omitempty"`
	Capabilities []Grant `yaml:"capabilities"`
}

// Load reads a profile from a YAML file, or a JSONC file when the
// path ends in .json or .jsonc.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		// Strip comments and trailing commas; JSON is a YAML subset
		// so the same decoder handles the result.
		data = jsonc.ToJSON(data)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks structural requirements: a name, at least one
// grant, known capability types, and host/port constraints only on
// network grants.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}
	if len(p.Capabilities) == 0 {
		return fmt.Errorf("profile %q grants no capabilities", p.Name)
	}
	for i, grant := range p.Capabilities {
		typ, err := capability.ParseType(grant.Type)
		if err != nil {
			return fmt.Errorf("profile %q, grant %d: %w", p.Name, i, err)
		}
		if typ != capability.TypeNetwork && (len(grant.Hosts) > 0 || len(grant.Ports) > 0) {
			return fmt.Errorf("profile %q, grant %d: hosts/ports on non-network type %q", p.Name, i, grant.Type)
		}
	}
	return nil
}

// Mint creates one token per grant. All-or-nothing: a mint failure
// returns without tokens.
func (p *Profile) Mint(keyring *capability.Keyring) ([]*capability.Token, error) {
	tokens := make([]*capability.Token, 0, len(p.Capabilities))
	for i, grant := range p.Capabilities {
		token, err := keyring.Mint(capability.TokenSpec{
			Type:              capability.Type(grant.Type),
			ResourcePatterns:  grant.Resources,
			AllowedOperations: grant.Operations,
			AllowedHosts:      grant.Hosts,
			AllowedPorts:      grant.Ports,
			ExpiresIn:         time.Duration(grant.ExpiresIn),
			MaxUsageCount:     grant.MaxUsageCount,
			MaxFileSize:       grant.MaxFileSize,
			MaxMemory:         grant.MaxMemory,
			MaxCPUTime:        time.Duration(grant.MaxCPUTime),
			CreatedBy:         "profile:" + p.Name,
			Description:       p.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("profile %q, grant %d: %w", p.Name, i, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}
