package authz

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Policy maps resource names to their permission entries.
type Policy map[string]models.PermissionEntry

type policyFile struct {
	Resources map[string]struct {
		Operations  []string `yaml:"operations"`
		RequireAuth bool     `yaml:"require_auth"`
	} `yaml:"resources"`
}

// ParsePolicy decodes a YAML permission table.
func ParsePolicy(data []byte) (Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if len(f.Resources) == 0 {
		return nil, fmt.Errorf("policy defines no resources")
	}

	p := make(Policy, len(f.Resources))
	for name, r := range f.Resources {
		if len(r.Operations) == 0 {
			return nil, fmt.Errorf("resource %q has no operations", name)
		}
		ops := make(map[string]struct{}, len(r.Operations))
		for _, op := range r.Operations {
			ops[op] = struct{}{}
		}
		p[name] = models.PermissionEntry{Operations: ops, RequireAuth: r.RequireAuth}
	}
	return p, nil
}

// DefaultPolicy returns the embedded permission table.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicy)
	if err != nil {
		panic(err)
	}
	return p
}
