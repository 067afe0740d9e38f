package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/metrics"
)

// RecordMovement appends a manual IN or OUT movement to the open session of
// the scope. Movements are never edited; a mistake is corrected with a
// compensating movement.
func (s *Service) RecordMovement(ctx context.Context, req domain.MovementRequest) (domain.CashMovement, error) {
	movementType := strings.ToUpper(strings.TrimSpace(req.Type))
	movement, err := s.recordMovement(ctx, movementType, req)
	amount, _ := req.Amount.Float64()
	metrics.ObserveMovement(movementType, metrics.Result(err), amount)
	if err != nil {
		return domain.CashMovement{}, err
	}
	return *movement, nil
}

func (s *Service) recordMovement(ctx context.Context, movementType string, req domain.MovementRequest) (*domain.CashMovement, error) {
	storeID, terminalID, err := s.scope(req.StoreID, req.TerminalID)
	if err != nil {
		return nil, err
	}
	if movementType != domain.MovementIn && movementType != domain.MovementOut {
		return nil, fmt.Errorf("%w: type must be IN or OUT", domain.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", domain.ErrValidation)
	}

	session, err := s.openSession(ctx, storeID, terminalID)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.AppendMovement(ctx, domain.CashMovement{
		SessionID: session.ID,
		Type:      movementType,
		Amount:    req.Amount,
		Reason:    reason,
		CreatedBy: actorName(ctx),
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, storeID, "cash_movement", "cash_movement", saved.ID, fmt.Sprintf("session=%s,type=%s,amount=%s,reason=%s", session.ID, saved.Type, saved.Amount.StringFixed(2), reason))
	return saved, nil
}

func (s *Service) ListMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	if _, err := s.sessionFor(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, sessionID)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
