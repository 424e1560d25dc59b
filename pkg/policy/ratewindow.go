package policy

import (
	"sync"
	"time"
)

// SessionRateWindow counts invocations per session over a sliding
// window. Timestamps come from the invocations themselves so that
// replaying a call sequence reproduces identical counts.
type SessionRateWindow struct {
	window   time.Duration
	mu       sync.Mutex
	sessions map[string][]time.Time
}

// NewSessionRateWindow creates a rate window with the given span
func NewSessionRateWindow(window time.Duration) *SessionRateWindow {
	return &SessionRateWindow{
		window:   window,
		sessions: make(map[string][]time.Time),
	}
}

// Observe records one invocation for the session and returns how many
// invocations (including this one) fall inside the window ending at ts.
func (w *SessionRateWindow) Observe(sessionID string, ts time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := ts.Add(-w.window)
	valid := w.sessions[sessionID][:0]
	for _, seen := range w.sessions[sessionID] {
		if seen.After(cutoff) {
			valid = append(valid, seen)
		}
	}
	valid = append(valid, ts)
	w.sessions[sessionID] = valid

	return len(valid)
}

// Reset clears all recorded invocations for a session
func (w *SessionRateWindow) Reset(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, sessionID)
}

// Prune drops sessions whose newest invocation predates the window
// ending at now. Called periodically so idle sessions do not leak.
func (w *SessionRateWindow) Prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	for sessionID, seen := range w.sessions {
		if len(seen) == 0 || !seen[len(seen)-1].After(cutoff) {
			delete(w.sessions, sessionID)
		}
	}
}
