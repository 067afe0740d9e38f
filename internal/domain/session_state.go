package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type SessionState string

const (
	SessionClosed SessionState = "CLOSED"
	SessionOpen   SessionState = "OPEN"
)

type SessionEvent string

const (
	EventOpen       SessionEvent = "open"
	EventClose      SessionEvent = "close"
	EventForceClose SessionEvent = "force_close"
	// EventAccept covers sales, movements and audits: work the drawer only
	// takes while open.
	EventAccept SessionEvent = "accept"
)

// State maps the persisted flag onto the lifecycle state. A nil session is
// CLOSED, which is also the initial state of every scope.
func (s *CashSession) State() SessionState {
	if s == nil || !s.IsOpen {
		return SessionClosed
	}
	return SessionOpen
}

// NextSessionState applies ev to from. It is the single source of truth for
// which lifecycle transitions are legal.
func NextSessionState(from SessionState, ev SessionEvent) (SessionState, error) {
	switch from {
	case SessionClosed:
		switch ev {
		case EventOpen:
			return SessionOpen, nil
		case EventClose, EventForceClose, EventAccept:
			return SessionClosed, ErrNotOpen
		}
	case SessionOpen:
		switch ev {
		case EventOpen:
			return SessionOpen, ErrConflict
		case EventClose, EventForceClose:
			return SessionClosed, nil
		case EventAccept:
			return SessionOpen, nil
		}
	}
	return from, fmt.Errorf("%w: unknown transition %s on %s", ErrValidation, ev, from)
}

// CheckCloseAllowed is the gate for a normal close. latest is the most
// recent audit of the session (nil when none exists) and version is the
// session's current ledger version.
func CheckCloseAllowed(latest *CashAudit, version int64) error {
	if latest == nil {
		return fmt.Errorf("%w: no audit recorded", ErrAuditRequired)
	}
	if latest.Type != AuditTypeZ {
		return fmt.Errorf("%w: latest audit is type %s", ErrAuditRequired, latest.Type)
	}
	if !latest.Validated {
		return fmt.Errorf("%w: difference exceeds tolerance: %s", ErrAuditRequired, latest.Difference.StringFixed(2))
	}
	if latest.SessionVersion != version {
		return fmt.Errorf("%w: ledger changed since Z audit", ErrAuditRequired)
	}
	return nil
}

// WithinTolerance reports whether |diff| <= tolerance.
func WithinTolerance(diff decimal.Decimal, tolerance decimal.Decimal) bool {
	return diff.Abs().LessThanOrEqual(tolerance)
}
