package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioscrm/agentgate/pkg/contract"
)

// TestDefaultConfig tests the default values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, time.Minute, cfg.Policy.RateWindow)
	assert.Equal(t, 20, cfg.Policy.RateConfirmThreshold)
	assert.Equal(t, 60, cfg.Policy.RateDenyThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Confirmation.TTL)
	assert.Equal(t, "* * * * *", cfg.Confirmation.SweepSchedule)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.DefaultTimeout)
	assert.NoError(t, cfg.Validate())
}

// TestConfigValidate tests rejection of invalid configs
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"zero rate window", func(c *Config) { c.Policy.RateWindow = 0 }},
		{"negative confirm threshold", func(c *Config) { c.Policy.RateConfirmThreshold = -1 }},
		{"confirm above deny", func(c *Config) {
			c.Policy.RateConfirmThreshold = 100
			c.Policy.RateDenyThreshold = 50
		}},
		{"zero confirmation TTL", func(c *Config) { c.Confirmation.TTL = 0 }},
		{"empty sweep schedule", func(c *Config) { c.Confirmation.SweepSchedule = "" }},
		{"zero dispatch timeout", func(c *Config) { c.Dispatch.DefaultTimeout = 0 }},
		{"metrics enabled without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestPolicyConfig_Capabilities tests the conversion to policy types
func TestPolicyConfig_Capabilities(t *testing.T) {
	empty := PolicyConfig{}
	assert.Nil(t, empty.Capabilities())

	pc := PolicyConfig{
		Actors: map[string]CapabilityConfig{
			"agent-junior": {Allow: []string{"ticket-management"}, Deny: []string{"business-action"}},
		},
		Default: &CapabilityConfig{Allow: []string{"*"}},
	}

	caps := pc.Capabilities()
	require.NotNil(t, caps)

	junior := caps.PolicyFor("agent-junior")
	assert.True(t, junior.IsCategoryAllowed(contract.CategoryTicketManagement))
	assert.False(t, junior.IsCategoryAllowed(contract.CategoryBusinessAction))

	other := caps.PolicyFor("agent-senior")
	assert.True(t, other.IsCategoryAllowed(contract.CategoryBusinessAction))
}

// TestConfigString tests the JSON rendering
func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"store"`)
	assert.Contains(t, s, `"policy"`)
}
