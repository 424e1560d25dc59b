package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/helioscrm/agentgate/internal/logger"
	"github.com/helioscrm/agentgate/pkg/policy"
)

// Config represents the main agentgate configuration
type Config struct {
	// Store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Policy
	Policy PolicyConfig `json:"policy" mapstructure:"policy"`

	// Confirmation
	Confirmation ConfirmationConfig `json:"confirmation" mapstructure:"confirmation"`

	// Dispatch
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// Logging
	Logging logger.Config `json:"logging" mapstructure:"logging"`

	// Audit log sink
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// StoreConfig selects and configures the invocation store
type StoreConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // memory, sqlite
	Path    string `json:"path" mapstructure:"path"`       // sqlite only
}

// CapabilityConfig defines the categories an actor may and may not use
type CapabilityConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// PolicyConfig holds policy thresholds and actor capabilities
type PolicyConfig struct {
	RateWindow           time.Duration               `json:"rate_window" mapstructure:"rate_window"`
	RateConfirmThreshold int                         `json:"rate_confirm_threshold" mapstructure:"rate_confirm_threshold"`
	RateDenyThreshold    int                         `json:"rate_deny_threshold" mapstructure:"rate_deny_threshold"`
	Actors               map[string]CapabilityConfig `json:"actors" mapstructure:"actors"`
	Default              *CapabilityConfig           `json:"default" mapstructure:"default"`
}

// EngineConfig converts the thresholds into a policy engine config
func (p PolicyConfig) EngineConfig() policy.Config {
	return policy.Config{
		RateWindow:           p.RateWindow,
		RateConfirmThreshold: p.RateConfirmThreshold,
		RateDenyThreshold:    p.RateDenyThreshold,
	}
}

// Capabilities converts the actor capability tables. Returns nil when
// no capabilities are configured, which allows everything.
func (p PolicyConfig) Capabilities() *policy.Capabilities {
	if len(p.Actors) == 0 && p.Default == nil {
		return nil
	}

	caps := &policy.Capabilities{Actors: make(map[string]*policy.CategoryPolicy, len(p.Actors))}
	for actor, cc := range p.Actors {
		caps.Actors[actor] = &policy.CategoryPolicy{Allow: cc.Allow, Deny: cc.Deny}
	}
	if p.Default != nil {
		caps.Default = &policy.CategoryPolicy{Allow: p.Default.Allow, Deny: p.Default.Deny}
	}
	return caps
}

// ConfirmationConfig controls pending confirmation lifetimes
type ConfirmationConfig struct {
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	SweepSchedule string        `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron expression
}

// DispatchConfig holds dispatcher settings
type DispatchConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout" mapstructure:"default_timeout"`
}

// AuditConfig points the audit mirror at a file; empty keeps stderr
type AuditConfig struct {
	File string `json:"file" mapstructure:"file"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Policy: PolicyConfig{
			RateWindow:           time.Minute,
			RateConfirmThreshold: 20,
			RateDenyThreshold:    60,
		},
		Confirmation: ConfirmationConfig{
			TTL:           30 * time.Minute,
			SweepSchedule: "* * * * *",
		},
		Dispatch: DispatchConfig{
			DefaultTimeout: 30 * time.Second,
		},
		Logging: logger.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
	default:
		return fmt.Errorf("invalid store backend %q (must be: memory, sqlite)", c.Store.Backend)
	}

	if c.Policy.RateWindow <= 0 {
		return fmt.Errorf("policy rate window must be positive")
	}
	if c.Policy.RateConfirmThreshold < 0 || c.Policy.RateDenyThreshold < 0 {
		return fmt.Errorf("policy rate thresholds must not be negative")
	}
	if c.Policy.RateDenyThreshold > 0 && c.Policy.RateConfirmThreshold > c.Policy.RateDenyThreshold {
		return fmt.Errorf("policy confirm threshold %d exceeds deny threshold %d",
			c.Policy.RateConfirmThreshold, c.Policy.RateDenyThreshold)
	}

	if c.Confirmation.TTL <= 0 {
		return fmt.Errorf("confirmation TTL must be positive")
	}
	if c.Confirmation.SweepSchedule == "" {
		return fmt.Errorf("confirmation sweep schedule is required")
	}

	if c.Dispatch.DefaultTimeout <= 0 {
		return fmt.Errorf("dispatch default timeout must be positive")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	return nil
}
