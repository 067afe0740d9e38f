package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/store"
	"kasirinaja/cashdesk/internal/xid"
)

// Store keeps the whole cash desk in process memory. One mutex guards
// everything, which makes each method an atomic unit the same way a
// database transaction is in the postgres store.
type Store struct {
	mu                 sync.RWMutex
	sessionsByID       map[string]domain.CashSession
	openSessionByScope map[string]string
	movementsBySession map[string][]domain.CashMovement
	auditsBySession    map[string][]domain.CashAudit
	salesByID          map[string]domain.Sale
	saleOrder          []string
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
	now                func() time.Time
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		sessionsByID:       make(map[string]domain.CashSession),
		openSessionByScope: make(map[string]string),
		movementsBySession: make(map[string][]domain.CashMovement),
		auditsBySession:    make(map[string][]domain.CashAudit),
		salesByID:          make(map[string]domain.Sale),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns an empty cash desk with the dev admin and cashier users.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

// SetClock replaces the store's time source. Tests use it to make
// timestamps deterministic.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) CreateSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.StoreID) == "" || strings.TrimSpace(session.TerminalID) == "" {
		return nil, domain.ErrValidation
	}
	if session.OpeningAmount.IsNegative() {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopeKey(session.StoreID, session.TerminalID)
	if _, exists := s.openSessionByScope[key]; exists {
		return nil, domain.ErrConflict
	}
	if session.ID == "" {
		session.ID = xid.New("cs")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = s.now()
	}
	session.IsOpen = true
	session.ForceClosed = false
	session.ClosedAt = nil
	session.Version = 0

	s.sessionsByID[session.ID] = session
	s.openSessionByScope[key] = session.ID
	copySession := session
	return &copySession, nil
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionsByID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) GetOpenSession(_ context.Context, storeID string, terminalID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, ok := s.openSessionByScope[scopeKey(storeID, terminalID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	session, ok := s.sessionsByID[sessionID]
	if !ok || !session.IsOpen {
		return nil, domain.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) CloseSession(_ context.Context, sessionID string, closedAt time.Time, force bool, guard store.CloseGuard) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionsByID[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !session.IsOpen {
		return nil, domain.ErrNotOpen
	}

	if guard != nil {
		var latest *domain.CashAudit
		if audits := s.auditsBySession[sessionID]; len(audits) > 0 {
			last := audits[len(audits)-1]
			latest = &last
		}
		if err := guard(session, latest); err != nil {
			return nil, err
		}
	}

	if closedAt.IsZero() {
		closedAt = s.now()
	}
	// A sale stamped after the caller picked closedAt but written before the
	// lock was taken still belongs to this session's window.
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.SessionID == sessionID && sale.CreatedAt.After(closedAt) {
			closedAt = sale.CreatedAt
		}
	}
	session.IsOpen = false
	session.ForceClosed = force
	session.ClosedAt = &closedAt

	delete(s.openSessionByScope, scopeKey(session.StoreID, session.TerminalID))
	s.sessionsByID[sessionID] = session
	return cloneSession(session), nil
}

func (s *Store) ListSessions(_ context.Context, storeID string, terminalID string, owner string, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashSession, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		if storeID != "" && session.StoreID != storeID {
			continue
		}
		if terminalID != "" && session.TerminalID != terminalID {
			continue
		}
		if owner != "" && session.Owner != owner {
			continue
		}
		result = append(result, *cloneSession(session))
	}
	slices.SortFunc(result, func(a, b domain.CashSession) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.OpenedAt.After(b.OpenedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AppendMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if !movement.Amount.IsPositive() || strings.TrimSpace(movement.Reason) == "" {
		return nil, domain.ErrValidation
	}
	if movement.Type != domain.MovementIn && movement.Type != domain.MovementOut {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lockedOpenSession(movement.SessionID)
	if err != nil {
		return nil, err
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = s.now()
	}

	s.movementsBySession[session.ID] = append(s.movementsBySession[session.ID], movement)
	s.bumpVersion(session)
	saved := movement
	return &saved, nil
}

func (s *Store) ListMovements(_ context.Context, sessionID string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.movementsBySession[sessionID]), nil
}

func (s *Store) SumMovements(_ context.Context, sessionID string) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, out := decimal.Zero, decimal.Zero
	for _, movement := range s.movementsBySession[sessionID] {
		switch movement.Type {
		case domain.MovementIn:
			in = in.Add(movement.Amount)
		case domain.MovementOut:
			out = out.Add(movement.Amount)
		}
	}
	return in, out, nil
}

func (s *Store) AppendAudit(_ context.Context, audit domain.CashAudit) (*domain.CashAudit, error) {
	if audit.Type != domain.AuditTypeX && audit.Type != domain.AuditTypeZ {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lockedOpenSession(audit.SessionID)
	if err != nil {
		return nil, err
	}
	if audit.ID == "" {
		audit.ID = xid.New("ca")
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = s.now()
	}

	s.auditsBySession[session.ID] = append(s.auditsBySession[session.ID], audit)
	saved := audit
	return &saved, nil
}

func (s *Store) ListAudits(_ context.Context, sessionID string) ([]domain.CashAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.auditsBySession[sessionID]), nil
}

func (s *Store) LatestAudit(_ context.Context, sessionID string) (*domain.CashAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	audits := s.auditsBySession[sessionID]
	if len(audits) == 0 {
		return nil, domain.ErrNotFound
	}
	latest := audits[len(audits)-1]
	return &latest, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || len(sale.Payments) == 0 {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lockedOpenSession(sale.SessionID)
	if err != nil {
		return nil, err
	}
	if sale.StoreID != session.StoreID || sale.TerminalID != session.TerminalID {
		return nil, fmt.Errorf("%w: sale scope does not match session", domain.ErrValidation)
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	s.saleOrder = append(s.saleOrder, sale.ID)
	s.bumpVersion(session)
	return ptrSale(cloneSale(sale)), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ptrSale(cloneSale(sale)), nil
}

func (s *Store) VoidSale(_ context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if sale.Status != domain.SaleStatusPaid {
		return nil, fmt.Errorf("%w: sale already voided", domain.ErrValidation)
	}
	session, err := s.lockedOpenSession(sale.SessionID)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}
	sale.Status = domain.SaleStatusVoid
	sale.VoidReason = reason
	sale.VoidedAt = &at

	s.salesByID[id] = sale
	s.bumpVersion(session)
	return ptrSale(cloneSale(sale)), nil
}

func (s *Store) SumCashPayments(_ context.Context, window domain.SaleWindow) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.Status != domain.SaleStatusPaid {
			continue
		}
		if sale.StoreID != window.StoreID || sale.TerminalID != window.TerminalID {
			continue
		}
		if sale.CreatedAt.Before(window.From) || sale.CreatedAt.After(window.To) {
			continue
		}
		total = total.Add(sale.CashProceeds())
	}
	return total, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return domain.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return domain.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// lockedOpenSession must be called with s.mu held for writing.
func (s *Store) lockedOpenSession(sessionID string) (*domain.CashSession, error) {
	session, ok := s.sessionsByID[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !session.IsOpen {
		return nil, domain.ErrNotOpen
	}
	return &session, nil
}

// bumpVersion must be called with s.mu held for writing.
func (s *Store) bumpVersion(session *domain.CashSession) {
	session.Version++
	s.sessionsByID[session.ID] = *session
}

func scopeKey(storeID string, terminalID string) string {
	return storeID + "::" + terminalID
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSession(src domain.CashSession) *domain.CashSession {
	dst := src
	if src.ClosedAt != nil {
		closedAt := *src.ClosedAt
		dst.ClosedAt = &closedAt
	}
	return &dst
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	dst.Payments = slices.Clone(src.Payments)
	if src.VoidedAt != nil {
		voidedAt := *src.VoidedAt
		dst.VoidedAt = &voidedAt
	}
	return dst
}

func ptrSale(sale domain.Sale) *domain.Sale {
	return &sale
}
