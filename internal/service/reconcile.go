package service

import (
	"context"
	"fmt"
	"strings"

	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/metrics"
)

// Summarize recomputes the expected drawer balance of a session from its
// persisted movements and the cash sales made in its window. Nothing
// derived here is stored.
func (s *Service) Summarize(ctx context.Context, sessionID string) (domain.CashSummary, error) {
	session, err := s.sessionFor(ctx, sessionID)
	if err != nil {
		return domain.CashSummary{}, err
	}
	return s.summarize(ctx, session)
}

func (s *Service) CurrentSummary(ctx context.Context, storeID string, terminalID string) (domain.CashSummary, error) {
	storeID, terminalID, err := s.scope(storeID, terminalID)
	if err != nil {
		return domain.CashSummary{}, err
	}
	session, err := s.openSession(ctx, storeID, terminalID)
	if err != nil {
		return domain.CashSummary{}, err
	}
	return s.summarize(ctx, session)
}

func (s *Service) summarize(ctx context.Context, session *domain.CashSession) (domain.CashSummary, error) {
	in, out, err := s.repo.SumMovements(ctx, session.ID)
	if err != nil {
		return domain.CashSummary{}, err
	}
	salesCash, err := s.repo.SumCashPayments(ctx, s.saleWindow(session))
	if err != nil {
		return domain.CashSummary{}, err
	}

	return domain.CashSummary{
		OpeningAmount:  session.OpeningAmount,
		MovementsIn:    in,
		MovementsOut:   out,
		SalesCash:      salesCash,
		ExpectedAmount: session.OpeningAmount.Add(in).Sub(out).Add(salesCash),
	}, nil
}

func (s *Service) saleWindow(session *domain.CashSession) domain.SaleWindow {
	to := s.now()
	if session.ClosedAt != nil {
		to = *session.ClosedAt
	}
	return domain.SaleWindow{
		StoreID:    session.StoreID,
		TerminalID: session.TerminalID,
		From:       session.OpenedAt,
		To:         to,
	}
}

// Audit counts the drawer against the expected balance and records the
// outcome. An out-of-tolerance count is still persisted with
// validated=false; only the close gate reacts to it.
func (s *Service) Audit(ctx context.Context, req domain.AuditRequest) (domain.CashAudit, error) {
	auditType := strings.ToUpper(strings.TrimSpace(req.Type))
	audit, err := s.audit(ctx, auditType, req)
	switch {
	case err != nil:
		metrics.IncAudit(auditType, metrics.ResultError)
	case audit.Validated:
		metrics.IncAudit(auditType, "balanced")
	default:
		metrics.IncAudit(auditType, "unbalanced")
	}
	if err != nil {
		return domain.CashAudit{}, err
	}
	return *audit, nil
}

func (s *Service) audit(ctx context.Context, auditType string, req domain.AuditRequest) (*domain.CashAudit, error) {
	storeID, terminalID, err := s.scope(req.StoreID, req.TerminalID)
	if err != nil {
		return nil, err
	}
	if auditType != domain.AuditTypeX && auditType != domain.AuditTypeZ {
		return nil, fmt.Errorf("%w: type must be X or Z", domain.ErrValidation)
	}
	if req.CountedAmount.IsNegative() {
		return nil, fmt.Errorf("%w: counted_amount must not be negative", domain.ErrValidation)
	}

	// The version is read before the sums. A movement landing in between is
	// then counted in expected but not in the version, which only makes a
	// later close demand a fresh audit.
	session, err := s.openSession(ctx, storeID, terminalID)
	if err != nil {
		return nil, err
	}
	summary, err := s.summarize(ctx, session)
	if err != nil {
		return nil, err
	}

	difference := req.CountedAmount.Sub(summary.ExpectedAmount)
	saved, err := s.repo.AppendAudit(ctx, domain.CashAudit{
		SessionID:      session.ID,
		Type:           auditType,
		ExpectedAmount: summary.ExpectedAmount,
		CountedAmount:  req.CountedAmount,
		Difference:     difference,
		Validated:      domain.WithinTolerance(difference, s.tolerance),
		SessionVersion: session.Version,
		CreatedBy:      actorName(ctx),
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, storeID, "cash_audit", "cash_audit", saved.ID, fmt.Sprintf("session=%s,type=%s,expected=%s,counted=%s,diff=%s,validated=%t",
		session.ID, saved.Type, saved.ExpectedAmount.StringFixed(2), saved.CountedAmount.StringFixed(2), saved.Difference.StringFixed(2), saved.Validated))
	return saved, nil
}

func (s *Service) ListAudits(ctx context.Context, sessionID string) ([]domain.CashAudit, error) {
	if _, err := s.sessionFor(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListAudits(ctx, sessionID)
}
