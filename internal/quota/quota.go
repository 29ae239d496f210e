package quota

import (
	"errors"
	"time"
)

// ErrQuotaExceeded means a scan was denied by a tier's rolling-window
// limit or by the code's hard scan cap.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Limit is the per-tier scan allowance inside one rolling window. A zero
// Scans value means unlimited.
type Limit struct {
	Scans  int64
	Window time.Duration
}

// Unlimited reports whether the limit allows any volume.
func (l Limit) Unlimited() bool {
	return l.Scans <= 0
}

// Enforcer resolves tier names to limits and applies them. Windows are
// evaluated against event time, not wall-clock "today", so a process
// restart mid-window changes nothing.
type Enforcer struct {
	limits      map[string]Limit
	defaultTier string
}

// DefaultLimits is the built-in tier table.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"free":      {Scans: 100, Window: 24 * time.Hour},
		"standard":  {Scans: 5000, Window: 24 * time.Hour},
		"unlimited": {},
	}
}

func NewEnforcer(limits map[string]Limit, defaultTier string) *Enforcer {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Enforcer{limits: limits, defaultTier: defaultTier}
}

// Resolve returns the limit for a tier, falling back to the default tier
// for names the table does not know.
func (e *Enforcer) Resolve(tier string) Limit {
	if l, ok := e.limits[tier]; ok {
		return l
	}
	return e.limits[e.defaultTier]
}

// Check decides whether one more scan fits under the limit given the
// number already recorded inside the window.
func (e *Enforcer) Check(tier string, scansInWindow int64) error {
	l := e.Resolve(tier)
	if l.Unlimited() {
		return nil
	}
	if scansInWindow >= l.Scans {
		return ErrQuotaExceeded
	}
	return nil
}
