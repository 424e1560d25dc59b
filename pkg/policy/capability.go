package policy

import (
	"github.com/helioscrm/agentgate/pkg/contract"
)

// CategoryPolicy defines which tool categories an actor can use.
// Deny overrides allow; "*" matches every category.
type CategoryPolicy struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// IsCategoryAllowed checks if a category is permitted by the policy.
// A nil policy allows everything.
func (cp *CategoryPolicy) IsCategoryAllowed(category contract.Category) bool {
	if cp == nil {
		return true
	}

	name := string(category)

	for _, denied := range cp.Deny {
		if denied == name || denied == "*" {
			return false
		}
	}

	for _, allowed := range cp.Allow {
		if allowed == name || allowed == "*" {
			return true
		}
	}

	return false
}

// Capabilities maps actor identifiers to their category policies.
// Actors without an entry fall back to the default policy; a nil
// default allows everything.
type Capabilities struct {
	Actors  map[string]*CategoryPolicy `json:"actors" mapstructure:"actors"`
	Default *CategoryPolicy            `json:"default" mapstructure:"default"`
}

// PolicyFor returns the policy applying to the actor
func (c *Capabilities) PolicyFor(actor string) *CategoryPolicy {
	if c == nil {
		return nil
	}
	if policy, ok := c.Actors[actor]; ok {
		return policy
	}
	return c.Default
}
