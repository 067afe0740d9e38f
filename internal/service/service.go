package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirinaja/cashdesk/internal/cache"
	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/store"
	"kasirinaja/cashdesk/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var DefaultTolerance = decimal.RequireFromString("0.01")

type Options struct {
	DefaultStoreID string
	// Tolerance is the largest |counted - expected| an audit may show and
	// still validate. Nil means DefaultTolerance; zero demands an exact count.
	Tolerance      *decimal.Decimal
	TaxRatePercent decimal.Decimal
	TaxIncluded    bool
	ReportCache    cache.ReportCache
	ReportCacheTTL time.Duration
}

type Service struct {
	repo           store.Repository
	reports        cache.ReportCache
	reportTTL      time.Duration
	defaultStoreID string
	tolerance      decimal.Decimal
	taxRate        decimal.Decimal
	taxIncluded    bool
	now            func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	tolerance := DefaultTolerance
	if opts.Tolerance != nil && !opts.Tolerance.IsNegative() {
		tolerance = *opts.Tolerance
	}
	if opts.ReportCache == nil {
		opts.ReportCache = cache.NoopReportCache{}
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 5 * time.Minute
	}

	return &Service{
		repo:           repo,
		reports:        opts.ReportCache,
		reportTTL:      opts.ReportCacheTTL,
		defaultStoreID: opts.DefaultStoreID,
		tolerance:      tolerance,
		taxRate:        opts.TaxRatePercent,
		taxIncluded:    opts.TaxIncluded,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Tolerance() decimal.Decimal {
	return s.tolerance
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

// scope normalizes the (store, terminal) pair that identifies a drawer.
func (s *Service) scope(storeID string, terminalID string) (string, string, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return "", "", fmt.Errorf("%w: terminal_id is required", domain.ErrValidation)
	}
	return storeID, terminalID, nil
}

// openSession is the explicit "current open session" lookup. A missing
// session is reported as ErrNotOpen rather than ErrNotFound.
func (s *Service) openSession(ctx context.Context, storeID string, terminalID string) (*domain.CashSession, error) {
	session, err := s.repo.GetOpenSession(ctx, storeID, terminalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: store=%s terminal=%s", domain.ErrNotOpen, storeID, terminalID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// authorizeSession lets admins and the session's owner through. Calls
// without an actor come from inside the process and are not restricted.
func authorizeSession(ctx context.Context, session *domain.CashSession) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == "admin" || actor.Username == session.Owner {
		return nil
	}
	return fmt.Errorf("%w: session %s belongs to another operator", domain.ErrForbidden, session.ID)
}

// sessionFor loads a session by id for the caller.
func (s *Service) sessionFor(ctx context.Context, sessionID string) (*domain.CashSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func actorName(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return "system"
	}
	return actor.Username
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
