package engine

import (
	"strings"
	"time"
)

const (
	// DefaultFocusLossThreshold is the number of focus losses that ends an exam.
	DefaultFocusLossThreshold = 3
	// DefaultWarningWindow is how long a focus-loss warning stays on screen.
	DefaultWarningWindow = 5 * time.Second
)

// Signal is the monitor's reaction to a focus-loss event.
type Signal int

const (
	SignalNone Signal = iota
	SignalWarning
	SignalForceTerminate
)

func (s Signal) String() string {
	switch s {
	case SignalWarning:
		return "warning"
	case SignalForceTerminate:
		return "force_terminate"
	default:
		return "none"
	}
}

// RestrictedAction is an input the exam page suppresses.
type RestrictedAction string

const (
	ActionContextMenu RestrictedAction = "context_menu"
	ActionCopy        RestrictedAction = "copy"
	ActionPaste       RestrictedAction = "paste"
	ActionDevTools    RestrictedAction = "dev_tools"
	ActionViewSource  RestrictedAction = "view_source"
)

// Valid reports whether a is a known restricted action.
func (a RestrictedAction) Valid() bool {
	switch a {
	case ActionContextMenu, ActionCopy, ActionPaste, ActionDevTools, ActionViewSource:
		return true
	}
	return false
}

// ClassifyKey maps a keyboard shortcut to a restricted action. The second
// return value is false for keys the exam page lets through.
func ClassifyKey(key string, ctrl, shift bool) (RestrictedAction, bool) {
	if key == "F12" {
		return ActionDevTools, true
	}
	if !ctrl {
		return "", false
	}
	switch {
	case shift && strings.EqualFold(key, "i"):
		return ActionDevTools, true
	case strings.EqualFold(key, "u"):
		return ActionViewSource, true
	case strings.EqualFold(key, "c"):
		return ActionCopy, true
	case strings.EqualFold(key, "v"):
		return ActionPaste, true
	}
	return "", false
}

// IntegrityMonitor counts focus-loss infractions and escalates to forced
// termination at the threshold. Restricted-action attempts are suppressed and
// tallied separately; they never count toward termination.
type IntegrityMonitor struct {
	threshold  int
	count      int
	restricted int
	fired      bool
	stopped    bool
}

// NewIntegrityMonitor returns a monitor that terminates after threshold focus losses.
func NewIntegrityMonitor(threshold int) (*IntegrityMonitor, error) {
	if threshold <= 0 {
		return nil, ErrInvalidThreshold
	}
	return &IntegrityMonitor{threshold: threshold}, nil
}

// FocusLost records one focus-loss event.
func (m *IntegrityMonitor) FocusLost() Signal {
	if !m.Active() {
		return SignalNone
	}
	m.count++
	if m.count >= m.threshold {
		m.fired = true
		return SignalForceTerminate
	}
	return SignalWarning
}

// Restricted records a restricted-action attempt and reports whether the
// default action must be suppressed. Once the monitor is inert nothing is
// recorded and nothing is suppressed.
func (m *IntegrityMonitor) Restricted(action RestrictedAction) bool {
	if !m.Active() || !action.Valid() {
		return false
	}
	m.restricted++
	return true
}

// Count is the number of recorded focus-loss infractions.
func (m *IntegrityMonitor) Count() int { return m.count }

// RestrictedCount is the number of suppressed restricted-action attempts.
func (m *IntegrityMonitor) RestrictedCount() int { return m.restricted }

// Threshold returns the configured termination threshold.
func (m *IntegrityMonitor) Threshold() int { return m.threshold }

// Active reports whether events still affect state.
func (m *IntegrityMonitor) Active() bool { return !m.fired && !m.stopped }

// Stop makes the monitor inert.
func (m *IntegrityMonitor) Stop() { m.stopped = true }
