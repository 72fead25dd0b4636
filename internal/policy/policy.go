// Package policy decides the initial permission state of tools when a user
// connects an integration.
//
// A policy is a YAML document:
//
//	default: enabled
//	rules:
//	  - match: "gmail/send_*"
//	    state: verify
//	  - match: "*/delete_*"
//	    state: disabled
//
// Rules are glob patterns over "integration/tool" and are evaluated in order;
// the first match wins.
package policy

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxgate/internal/permission"
)

// Rule maps a glob pattern to a state.
type Rule struct {
	Match string           `yaml:"match"`
	State permission.State `yaml:"state"`
}

// Policy is a parsed default-state policy.
type Policy struct {
	Default permission.State `yaml:"default"`
	Rules   []Rule           `yaml:"rules"`
}

// Default returns the built-in policy: tools that send or create something
// need approval, everything else is enabled.
func Default() *Policy {
	return &Policy{
		Default: permission.StateEnabled,
		Rules: []Rule{
			{Match: "*/send_*", State: permission.StateVerify},
			{Match: "*/create_*", State: permission.StateVerify},
		},
	}
}

// Load reads a policy file. An empty path returns Default().
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a policy document. A missing default means enabled.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if p.Default == permission.StateNone {
		p.Default = permission.StateEnabled
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the default state and every rule.
func (p *Policy) Validate() error {
	if _, err := permission.ParseState(string(p.Default)); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	for i, r := range p.Rules {
		if r.Match == "" {
			return fmt.Errorf("rule %d: match is required", i)
		}
		if !doublestar.ValidatePattern(r.Match) {
			return fmt.Errorf("rule %d: invalid pattern %q", i, r.Match)
		}
		if _, err := permission.ParseState(string(r.State)); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// StateFor returns the state of the first rule matching integration/tool,
// or the policy default.
func (p *Policy) StateFor(integration, tool string) permission.State {
	name := integration + "/" + tool
	for _, r := range p.Rules {
		if ok, err := doublestar.Match(r.Match, name); err == nil && ok {
			return r.State
		}
	}
	return p.Default
}
