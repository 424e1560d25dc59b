package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/helioscrm/agentgate/pkg/contract"
)

// Decision is the policy verdict for one invocation
type Decision string

const (
	DecisionAutoExecute         Decision = "AUTO_EXECUTE"
	DecisionRequireConfirmation Decision = "REQUIRE_CONFIRMATION"
	DecisionDeny                Decision = "DENY"
)

// Outcome carries the decision plus the reason that produced it
type Outcome struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// Config holds the contextual override thresholds
type Config struct {
	// RateWindow is the sliding window for per-session counting
	RateWindow time.Duration `json:"rate_window" mapstructure:"rate_window"`
	// RateConfirmThreshold escalates AUTO tools to confirmation once a
	// session reaches this many invocations inside the window
	RateConfirmThreshold int `json:"rate_confirm_threshold" mapstructure:"rate_confirm_threshold"`
	// RateDenyThreshold denies outright at this count (0 disables)
	RateDenyThreshold int `json:"rate_deny_threshold" mapstructure:"rate_deny_threshold"`
}

// DefaultConfig returns the default policy thresholds
func DefaultConfig() Config {
	return Config{
		RateWindow:           time.Minute,
		RateConfirmThreshold: 20,
		RateDenyThreshold:    60,
	}
}

// Request is the invocation context the engine decides on
type Request struct {
	SessionID string
	TicketID  string
	Actor     string
	Timestamp time.Time
}

// Engine decides whether an invocation may execute without review.
// The risk tier is the floor: NEVER_AUTO and CONFIRM contracts always
// require confirmation, and contextual overrides can only tighten, not
// relax, what the tier permits.
type Engine struct {
	mu           sync.RWMutex
	cfg          Config
	capabilities *Capabilities
	rates        *SessionRateWindow
}

// NewEngine creates a policy engine with the given thresholds
func NewEngine(cfg Config, capabilities *Capabilities) *Engine {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultConfig().RateWindow
	}
	return &Engine{
		cfg:          cfg,
		capabilities: capabilities,
		rates:        NewSessionRateWindow(cfg.RateWindow),
	}
}

// SetOverrides swaps the thresholds and capabilities. Used by config
// hot-reload; in-flight decisions see either the old or new values.
func (e *Engine) SetOverrides(cfg Config, capabilities *Capabilities) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultConfig().RateWindow
	}
	if cfg.RateWindow != e.cfg.RateWindow {
		e.rates = NewSessionRateWindow(cfg.RateWindow)
	}
	e.cfg = cfg
	e.capabilities = capabilities

	log.Info().
		Dur("rate_window", cfg.RateWindow).
		Int("rate_confirm_threshold", cfg.RateConfirmThreshold).
		Int("rate_deny_threshold", cfg.RateDenyThreshold).
		Msg("Policy overrides updated")
}

// Decide maps a contract and invocation context to an execution
// decision. It records the invocation in the session rate window, so
// replaying an identical call sequence reproduces identical decisions.
func (e *Engine) Decide(tc *contract.ToolContract, req Request) Outcome {
	e.mu.RLock()
	cfg := e.cfg
	capabilities := e.capabilities
	rates := e.rates
	e.mu.RUnlock()

	// Hard floor: financial and other irreversible actions always go
	// through a human, regardless of actor or session state.
	if tc.RiskTier == contract.RiskNeverAuto {
		return Outcome{
			Decision: DecisionRequireConfirmation,
			Reason:   "risk tier NEVER_AUTO requires confirmation",
		}
	}

	if tc.RiskTier == contract.RiskConfirm {
		return Outcome{
			Decision: DecisionRequireConfirmation,
			Reason:   "risk tier CONFIRM requires confirmation",
		}
	}

	// AUTO tier: contextual overrides may escalate or deny.
	if !capabilities.PolicyFor(req.Actor).IsCategoryAllowed(tc.Category) {
		log.Warn().
			Str("tool", tc.Name).
			Str("actor", req.Actor).
			Str("category", string(tc.Category)).
			Msg("Invocation denied: actor lacks category capability")
		return Outcome{
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("actor %q lacks capability for category %q", req.Actor, tc.Category),
		}
	}

	count := rates.Observe(req.SessionID, req.Timestamp)
	if cfg.RateDenyThreshold > 0 && count >= cfg.RateDenyThreshold {
		log.Warn().
			Str("session", req.SessionID).
			Int("count", count).
			Msg("Invocation denied: session rate above deny threshold")
		return Outcome{
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("session invocation rate %d exceeds deny threshold %d", count, cfg.RateDenyThreshold),
		}
	}
	if cfg.RateConfirmThreshold > 0 && count >= cfg.RateConfirmThreshold {
		return Outcome{
			Decision: DecisionRequireConfirmation,
			Reason:   fmt.Sprintf("session invocation rate %d exceeds confirmation threshold %d", count, cfg.RateConfirmThreshold),
		}
	}

	return Outcome{
		Decision: DecisionAutoExecute,
		Reason:   "risk tier AUTO with no contextual override",
	}
}
