package service

import (
	"context"
	"fmt"
	"strings"

	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/metrics"
)

func (s *Service) OpenSession(ctx context.Context, req domain.OpenSessionRequest) (domain.SessionResponse, error) {
	session, err := s.openSessionTx(ctx, req)
	metrics.IncSessionEvent(string(domain.EventOpen), metrics.Result(err))
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) openSessionTx(ctx context.Context, req domain.OpenSessionRequest) (*domain.CashSession, error) {
	storeID, terminalID, err := s.scope(req.StoreID, req.TerminalID)
	if err != nil {
		return nil, err
	}
	if req.OpeningAmount.IsNegative() {
		return nil, fmt.Errorf("%w: opening_amount must not be negative", domain.ErrValidation)
	}

	current, err := s.repo.GetOpenSession(ctx, storeID, terminalID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if _, err := domain.NextSessionState(current.State(), domain.EventOpen); err != nil {
		return nil, fmt.Errorf("%w: session %s", err, current.ID)
	}

	// The store re-checks atomically; a racing open loses with ErrConflict.
	saved, err := s.repo.CreateSession(ctx, domain.CashSession{
		StoreID:       storeID,
		TerminalID:    terminalID,
		Owner:         actorName(ctx),
		OpeningAmount: req.OpeningAmount,
		OpenedAt:      s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, storeID, "cash_open", "cash_session", saved.ID, fmt.Sprintf("terminal=%s,opening=%s", terminalID, saved.OpeningAmount.StringFixed(2)))
	return saved, nil
}

// GetOpenSession returns the open session of the scope or ErrNotOpen.
func (s *Service) GetOpenSession(ctx context.Context, storeID string, terminalID string) (domain.SessionResponse, error) {
	storeID, terminalID, err := s.scope(storeID, terminalID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	session, err := s.openSession(ctx, storeID, terminalID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

// CloseSession closes the open session of the scope. The latest audit must
// be a validated Z computed against the current ledger version; the check
// runs inside the store's close so no movement can slip in between.
func (s *Service) CloseSession(ctx context.Context, req domain.CloseSessionRequest) (domain.SessionResponse, error) {
	session, err := s.closeSession(ctx, req.StoreID, req.TerminalID, false, "")
	metrics.IncSessionEvent(string(domain.EventClose), metrics.Result(err))
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

// ForceCloseSession closes the open session without the audit gate. The
// session is flagged force_closed and the override is audit-logged.
func (s *Service) ForceCloseSession(ctx context.Context, req domain.ForceCloseRequest) (domain.SessionResponse, error) {
	session, err := s.closeSession(ctx, req.StoreID, req.TerminalID, true, strings.TrimSpace(req.Reason))
	metrics.IncSessionEvent(string(domain.EventForceClose), metrics.Result(err))
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) closeSession(ctx context.Context, storeID string, terminalID string, force bool, reason string) (*domain.CashSession, error) {
	storeID, terminalID, err := s.scope(storeID, terminalID)
	if err != nil {
		return nil, err
	}
	current, err := s.openSession(ctx, storeID, terminalID)
	if err != nil {
		return nil, err
	}

	event := domain.EventClose
	if force {
		event = domain.EventForceClose
	}
	guard := func(locked domain.CashSession, latest *domain.CashAudit) error {
		if _, err := domain.NextSessionState(locked.State(), event); err != nil {
			return err
		}
		if force {
			return nil
		}
		return domain.CheckCloseAllowed(latest, locked.Version)
	}

	closed, err := s.repo.CloseSession(ctx, current.ID, s.now(), force, guard)
	if err != nil {
		return nil, err
	}

	if force {
		s.logAudit(ctx, storeID, "cash_force_close", "cash_session", closed.ID, fmt.Sprintf("terminal=%s,reason=%s", terminalID, reason))
	} else {
		s.logAudit(ctx, storeID, "cash_close", "cash_session", closed.ID, fmt.Sprintf("terminal=%s,version=%d", terminalID, closed.Version))
	}
	return closed, nil
}

// ListSessions lists the sessions of a store, newest first. Cashiers only
// see the sessions they opened.
func (s *Service) ListSessions(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.CashSession, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 50
	}
	owner := ""
	if actor, ok := ActorFromContext(ctx); ok && actor.Role != "admin" {
		owner = actor.Username
	}
	return s.repo.ListSessions(ctx, storeID, strings.TrimSpace(terminalID), owner, limit)
}
