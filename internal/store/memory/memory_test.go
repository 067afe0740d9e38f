package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashdesk/internal/domain"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func openTestSession(t *testing.T, s *Store, terminal string) *domain.CashSession {
	t.Helper()
	session, err := s.CreateSession(context.Background(), domain.CashSession{
		StoreID:       "store-1",
		TerminalID:    terminal,
		Owner:         "cashier",
		OpeningAmount: decimal.NewFromInt(100),
		OpenedAt:      base,
	})
	require.NoError(t, err)
	return session
}

func TestCreateSessionEnforcesOneOpenPerScope(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := openTestSession(t, s, "T1")
	assert.True(t, first.IsOpen)
	assert.Zero(t, first.Version)

	_, err := s.CreateSession(ctx, domain.CashSession{StoreID: "store-1", TerminalID: "T1", OpeningAmount: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrConflict)

	other := openTestSession(t, s, "T2")
	assert.NotEqual(t, first.ID, other.ID)

	open, err := s.GetOpenSession(ctx, "store-1", "T1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	_, err = s.GetOpenSession(ctx, "store-2", "T1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerWritesBumpVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	session := openTestSession(t, s, "T1")

	_, err := s.AppendMovement(ctx, domain.CashMovement{SessionID: session.ID, Type: domain.MovementIn, Amount: decimal.NewFromInt(5), Reason: "float"})
	require.NoError(t, err)
	sale, err := s.CreateSale(ctx, domain.Sale{
		SessionID:  session.ID,
		StoreID:    "store-1",
		TerminalID: "T1",
		Lines:      []domain.SaleLine{{UnitPrice: decimal.NewFromInt(10), Qty: 1}},
		Payments:   []domain.Payment{{Method: domain.PaymentCash, Amount: decimal.NewFromInt(10)}},
		Total:      decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	_, err = s.VoidSale(ctx, sale.ID, "mistake", time.Time{})
	require.NoError(t, err)

	_, err = s.AppendAudit(ctx, domain.CashAudit{SessionID: session.ID, Type: domain.AuditTypeX})
	require.NoError(t, err)

	current, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), current.Version, "audits must not bump the version")
}

func TestCloseSessionRunsGuardWithLatestAudit(t *testing.T) {
	s := New()
	ctx := context.Background()
	session := openTestSession(t, s, "T1")

	_, err := s.AppendAudit(ctx, domain.CashAudit{SessionID: session.ID, Type: domain.AuditTypeX})
	require.NoError(t, err)
	_, err = s.AppendAudit(ctx, domain.CashAudit{SessionID: session.ID, Type: domain.AuditTypeZ, Validated: true})
	require.NoError(t, err)

	blocked := errors.New("blocked")
	var seen *domain.CashAudit
	_, err = s.CloseSession(ctx, session.ID, base.Add(time.Hour), false, func(_ domain.CashSession, latest *domain.CashAudit) error {
		seen = latest
		return blocked
	})
	assert.ErrorIs(t, err, blocked)
	require.NotNil(t, seen)
	assert.Equal(t, domain.AuditTypeZ, seen.Type)

	still, err := s.GetOpenSession(ctx, "store-1", "T1")
	require.NoError(t, err)
	assert.True(t, still.IsOpen)

	closed, err := s.CloseSession(ctx, session.ID, base.Add(time.Hour), false, nil)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.ClosedAt.Equal(base.Add(time.Hour)))

	_, err = s.CloseSession(ctx, session.ID, base.Add(2*time.Hour), true, nil)
	assert.ErrorIs(t, err, domain.ErrNotOpen)

	_, err = s.AppendMovement(ctx, domain.CashMovement{SessionID: session.ID, Type: domain.MovementOut, Amount: decimal.NewFromInt(1), Reason: "late"})
	assert.ErrorIs(t, err, domain.ErrNotOpen)

	reopened := openTestSession(t, s, "T1")
	assert.NotEqual(t, session.ID, reopened.ID)
}

func TestCloseSessionNeverPrecedesItsSales(t *testing.T) {
	s := New()
	ctx := context.Background()
	session := openTestSession(t, s, "T1")

	saleAt := base.Add(10 * time.Minute)
	_, err := s.CreateSale(ctx, domain.Sale{
		SessionID:  session.ID,
		StoreID:    "store-1",
		TerminalID: "T1",
		Lines:      []domain.SaleLine{{UnitPrice: decimal.NewFromInt(40), Qty: 1}},
		Payments:   []domain.Payment{{Method: domain.PaymentCash, Amount: decimal.NewFromInt(40)}},
		CreatedAt:  saleAt,
	})
	require.NoError(t, err)

	closed, err := s.CloseSession(ctx, session.ID, base.Add(5*time.Minute), true, nil)
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.ClosedAt.Equal(saleAt), "closed_at %s", closed.ClosedAt)

	total, err := s.SumCashPayments(ctx, domain.SaleWindow{StoreID: "store-1", TerminalID: "T1", From: session.OpenedAt, To: *closed.ClosedAt})
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(40)), "got %s", total)
}

func TestListSessionsFiltersByOwner(t *testing.T) {
	s := New()
	ctx := context.Background()

	openTestSession(t, s, "T1")
	_, err := s.CreateSession(ctx, domain.CashSession{StoreID: "store-1", TerminalID: "T2", Owner: "kasir2", OpenedAt: base})
	require.NoError(t, err)

	mine, err := s.ListSessions(ctx, "store-1", "", "kasir2", 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "T2", mine[0].TerminalID)

	all, err := s.ListSessions(ctx, "store-1", "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLatestAudit(t *testing.T) {
	s := New()
	ctx := context.Background()
	session := openTestSession(t, s, "T1")

	_, err := s.LatestAudit(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.AppendAudit(ctx, domain.CashAudit{SessionID: session.ID, Type: domain.AuditTypeZ})
	require.NoError(t, err)
	_, err = s.AppendAudit(ctx, domain.CashAudit{SessionID: session.ID, Type: domain.AuditTypeX})
	require.NoError(t, err)

	latest, err := s.LatestAudit(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditTypeX, latest.Type)
}

func TestSumCashPaymentsHonoursWindowScopeAndStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	session := openTestSession(t, s, "T1")
	other := openTestSession(t, s, "T2")

	sale := func(sessionID string, terminal string, at time.Time, cash int64, change int64) *domain.Sale {
		saved, err := s.CreateSale(ctx, domain.Sale{
			SessionID:  sessionID,
			StoreID:    "store-1",
			TerminalID: terminal,
			Lines:      []domain.SaleLine{{UnitPrice: decimal.NewFromInt(cash - change), Qty: 1}},
			Payments:   []domain.Payment{{Method: domain.PaymentCash, Amount: decimal.NewFromInt(cash)}, {Method: domain.PaymentCard, Amount: decimal.NewFromInt(7)}},
			Change:     decimal.NewFromInt(change),
			CreatedAt:  at,
		})
		require.NoError(t, err)
		return saved
	}

	sale(session.ID, "T1", base, 20, 5)
	sale(session.ID, "T1", base.Add(30*time.Minute), 10, 0)
	voided := sale(session.ID, "T1", base.Add(40*time.Minute), 50, 0)
	sale(other.ID, "T2", base.Add(10*time.Minute), 99, 0)
	sale(session.ID, "T1", base.Add(2*time.Hour), 30, 0)

	_, err := s.VoidSale(ctx, voided.ID, "", time.Time{})
	require.NoError(t, err)

	total, err := s.SumCashPayments(ctx, domain.SaleWindow{
		StoreID:    "store-1",
		TerminalID: "T1",
		From:       base,
		To:         base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(25)), "got %s", total)
}

func TestCreateSaleRejectsScopeMismatch(t *testing.T) {
	s := New()
	session := openTestSession(t, s, "T1")

	_, err := s.CreateSale(context.Background(), domain.Sale{
		SessionID:  session.ID,
		StoreID:    "store-1",
		TerminalID: "T9",
		Lines:      []domain.SaleLine{{UnitPrice: decimal.NewFromInt(1), Qty: 1}},
		Payments:   []domain.Payment{{Method: domain.PaymentCash, Amount: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, terminal := range []string{"T1", "T2", "T3"} {
		_, err := s.CreateSession(ctx, domain.CashSession{
			StoreID:    "store-1",
			TerminalID: terminal,
			OpenedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	sessions, err := s.ListSessions(ctx, "store-1", "", "", 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "T3", sessions[0].TerminalID)
	assert.Equal(t, "T2", sessions[1].TerminalID)

	only, err := s.ListSessions(ctx, "store-1", "T1", "", 0)
	require.NoError(t, err)
	require.Len(t, only, 1)
}

func TestSeededUsersHaveHashedPasswords(t *testing.T) {
	s := NewSeeded()
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, user := range users {
		assert.Contains(t, user.Password, "$2")
	}
}
