package cache

import (
	"context"
	"time"

	"kasirinaja/cashdesk/internal/domain"
)

// ReportCache stores built reports of closed sessions. A closed session's
// ledger can no longer change, so entries never need invalidation.
type ReportCache interface {
	Get(ctx context.Context, sessionID string) (*domain.SessionReport, bool, error)
	Set(ctx context.Context, sessionID string, value *domain.SessionReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SessionReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SessionReport, _ time.Duration) error {
	return nil
}

func reportKey(sessionID string) string {
	return "cashdesk:report:" + sessionID
}
