package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/metrics"
)

const (
	noteNoMovements       = "no manual movements recorded"
	noteNoAudits          = "no audits recorded"
	notePartial           = "session still open; report is partial"
	noteForcedUnvalidated = "force-closed without validated Z audit"
	noteForcedValidated   = "force-closed after validated Z audit"
	noteZValidatedClean   = "Z audit validated with no difference"
	noteStaleZ            = "ledger changed since latest Z audit"
)

// BuildReport assembles the session, its summary, movements and audits into
// a read-only report. Reports of closed sessions are cached.
func (s *Service) BuildReport(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	start := time.Now()
	report, err := s.buildReport(ctx, sessionID)
	metrics.ObserveReportBuild(metrics.Result(err), time.Since(start))
	if err != nil {
		return domain.SessionReport{}, err
	}
	return *report, nil
}

func (s *Service) buildReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	session, err := s.sessionFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsOpen {
		cached, ok, err := s.reports.Get(ctx, session.ID)
		if err != nil {
			log.Printf("[service] WARN: report cache get session=%s: %v", session.ID, err)
		}
		if ok && cached != nil {
			metrics.IncReportCache("hit")
			return cached, nil
		}
		metrics.IncReportCache("miss")
	}

	summary, err := s.summarize(ctx, session)
	if err != nil {
		return nil, err
	}
	movements, err := s.repo.ListMovements(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	audits, err := s.repo.ListAudits(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	window := s.saleWindow(session)
	report := &domain.SessionReport{
		Session:     *session,
		PeriodStart: window.From,
		PeriodEnd:   window.To,
		Summary:     summary,
		Movements:   movements,
		Audits:      audits,
		Validation:  s.validate(session, movements, audits),
	}

	if !session.IsOpen {
		if err := s.reports.Set(ctx, session.ID, report, s.reportTTL); err != nil {
			log.Printf("[service] WARN: report cache set session=%s: %v", session.ID, err)
		}
	}
	return report, nil
}

func (s *Service) validate(session *domain.CashSession, movements []domain.CashMovement, audits []domain.CashAudit) domain.ReportValidation {
	validation := domain.ReportValidation{
		MovementCount: len(movements),
		AuditCount:    len(audits),
		Notes:         make([]string, 0, 4),
	}

	if len(movements) == 0 {
		validation.Notes = append(validation.Notes, noteNoMovements)
	}
	if len(audits) == 0 {
		validation.Notes = append(validation.Notes, noteNoAudits)
	} else {
		last := audits[len(audits)-1]
		lastType := last.Type
		lastDiff := last.Difference
		validation.LastAuditType = &lastType
		validation.LastDifference = &lastDiff
	}
	if session.IsOpen {
		validation.Notes = append(validation.Notes, notePartial)
	}

	var latestZ *domain.CashAudit
	for i := len(audits) - 1; i >= 0; i-- {
		if audits[i].Type == domain.AuditTypeZ {
			latestZ = &audits[i]
			break
		}
	}
	// A Z audit only vouches for the ledger version it counted.
	current := latestZ != nil && latestZ.SessionVersion == session.Version
	withinTolerance := latestZ != nil && domain.WithinTolerance(latestZ.Difference, s.tolerance)
	validation.IsBalanced = current && withinTolerance

	if session.ForceClosed {
		if validation.IsBalanced {
			validation.Notes = append(validation.Notes, noteForcedValidated)
		} else {
			validation.Notes = append(validation.Notes, noteForcedUnvalidated)
		}
	}

	if latestZ != nil {
		switch {
		case !withinTolerance:
			validation.Notes = append(validation.Notes, fmt.Sprintf("difference exceeds tolerance: %s", latestZ.Difference.StringFixed(2)))
		case latestZ.Difference.IsZero():
			validation.Notes = append(validation.Notes, noteZValidatedClean)
		default:
			validation.Notes = append(validation.Notes, fmt.Sprintf("Z audit validated within tolerance: %s", latestZ.Difference.StringFixed(2)))
		}
		if !current {
			validation.Notes = append(validation.Notes, noteStaleZ)
		}
	}

	return validation
}
