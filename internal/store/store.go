package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kasirinaja/cashdesk/internal/domain"
)

// CloseGuard runs inside the close transaction with the session locked. A
// non-nil error aborts the close and is returned unchanged.
type CloseGuard func(session domain.CashSession, latest *domain.CashAudit) error

// Repository is the persistence boundary of the cash desk. Movements and
// audits are append-only; there are no update or delete methods for them.
type Repository interface {
	CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	GetSession(ctx context.Context, id string) (*domain.CashSession, error)
	GetOpenSession(ctx context.Context, storeID string, terminalID string) (*domain.CashSession, error)
	CloseSession(ctx context.Context, sessionID string, closedAt time.Time, force bool, guard CloseGuard) (*domain.CashSession, error)
	ListSessions(ctx context.Context, storeID string, terminalID string, owner string, limit int) ([]domain.CashSession, error)

	AppendMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error)
	SumMovements(ctx context.Context, sessionID string) (in decimal.Decimal, out decimal.Decimal, err error)

	AppendAudit(ctx context.Context, audit domain.CashAudit) (*domain.CashAudit, error)
	ListAudits(ctx context.Context, sessionID string) ([]domain.CashAudit, error)
	LatestAudit(ctx context.Context, sessionID string) (*domain.CashAudit, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error)
	SumCashPayments(ctx context.Context, window domain.SaleWindow) (decimal.Decimal, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
