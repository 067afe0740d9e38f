package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/store"
	"kasirinaja/cashdesk/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const sessionColumns = `id, store_id, terminal_id, owner, opening_amount, is_open, force_closed, version, opened_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.CashSession, error) {
	var (
		session  domain.CashSession
		closedAt sql.NullTime
	)
	err := row.Scan(&session.ID, &session.StoreID, &session.TerminalID, &session.Owner, &session.OpeningAmount,
		&session.IsOpen, &session.ForceClosed, &session.Version, &session.OpenedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return &session, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.StoreID) == "" || strings.TrimSpace(session.TerminalID) == "" {
		return nil, domain.ErrValidation
	}
	if session.OpeningAmount.IsNegative() {
		return nil, domain.ErrValidation
	}
	if session.ID == "" {
		session.ID = xid.New("cs")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.IsOpen = true
	session.ForceClosed = false
	session.ClosedAt = nil
	session.Version = 0

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions (
			id, store_id, terminal_id, owner, opening_amount, is_open, force_closed, version, opened_at, closed_at
		)
		VALUES ($1,$2,$3,$4,$5,true,false,0,$6,NULL)
	`, session.ID, session.StoreID, session.TerminalID, session.Owner, session.OpeningAmount, session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}
	saved := session
	return &saved, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.CashSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE id = $1
	`, id))
}

func (s *Store) GetOpenSession(ctx context.Context, storeID string, terminalID string) (*domain.CashSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE store_id = $1 AND terminal_id = $2 AND is_open
	`, storeID, terminalID))
}

func (s *Store) CloseSession(ctx context.Context, sessionID string, closedAt time.Time, force bool, guard store.CloseGuard) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := lockOpenSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	if guard != nil {
		latest, err := latestAudit(ctx, tx, sessionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if err := guard(*session, latest); err != nil {
			return nil, err
		}
	}

	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	// Sales insert under the same row lock, so every sale of the session is
	// visible here. closed_at never precedes them.
	var lastSale sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM sales WHERE session_id = $1`, sessionID).Scan(&lastSale); err != nil {
		return nil, err
	}
	if lastSale.Valid && lastSale.Time.After(closedAt) {
		closedAt = lastSale.Time.UTC()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET is_open = false, force_closed = $2, closed_at = $3
		WHERE id = $1 AND is_open
	`, sessionID, force, closedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	session.IsOpen = false
	session.ForceClosed = force
	session.ClosedAt = &closedAt
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, storeID string, terminalID string, owner string, limit int) ([]domain.CashSession, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR terminal_id = $2)
			AND ($3 = '' OR owner = $3)
		ORDER BY opened_at DESC, id DESC
		LIMIT $4
	`, storeID, terminalID, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) AppendMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if !movement.Amount.IsPositive() || strings.TrimSpace(movement.Reason) == "" {
		return nil, domain.ErrValidation
	}
	if movement.Type != domain.MovementIn && movement.Type != domain.MovementOut {
		return nil, domain.ErrValidation
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockOpenSession(ctx, tx, movement.SessionID); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, session_id, type, amount, reason, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, movement.ID, movement.SessionID, movement.Type, movement.Amount, movement.Reason, movement.CreatedBy, movement.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := bumpVersion(ctx, tx, movement.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := movement
	return &saved, nil
}

func (s *Store) ListMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, amount, reason, created_by, created_at
		FROM cash_movements
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 16)
	for rows.Next() {
		var movement domain.CashMovement
		if err := rows.Scan(&movement.ID, &movement.SessionID, &movement.Type, &movement.Amount, &movement.Reason, &movement.CreatedBy, &movement.CreatedAt); err != nil {
			return nil, err
		}
		movement.CreatedAt = movement.CreatedAt.UTC()
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) SumMovements(ctx context.Context, sessionID string) (decimal.Decimal, decimal.Decimal, error) {
	var in, out decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'IN'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'OUT'), 0)
		FROM cash_movements
		WHERE session_id = $1
	`, sessionID).Scan(&in, &out)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return in, out, nil
}

func (s *Store) AppendAudit(ctx context.Context, audit domain.CashAudit) (*domain.CashAudit, error) {
	if audit.Type != domain.AuditTypeX && audit.Type != domain.AuditTypeZ {
		return nil, domain.ErrValidation
	}
	if audit.ID == "" {
		audit.ID = xid.New("ca")
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockOpenSession(ctx, tx, audit.SessionID); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_audits (
			id, session_id, type, expected_amount, counted_amount, difference,
			validated, session_version, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, audit.ID, audit.SessionID, audit.Type, audit.ExpectedAmount, audit.CountedAmount, audit.Difference,
		audit.Validated, audit.SessionVersion, audit.CreatedBy, audit.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := audit
	return &saved, nil
}

const auditColumns = `id, session_id, type, expected_amount, counted_amount, difference, validated, session_version, created_by, created_at`

func scanAudit(row rowScanner) (*domain.CashAudit, error) {
	var audit domain.CashAudit
	err := row.Scan(&audit.ID, &audit.SessionID, &audit.Type, &audit.ExpectedAmount, &audit.CountedAmount, &audit.Difference,
		&audit.Validated, &audit.SessionVersion, &audit.CreatedBy, &audit.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	audit.CreatedAt = audit.CreatedAt.UTC()
	return &audit, nil
}

func (s *Store) ListAudits(ctx context.Context, sessionID string) ([]domain.CashAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM cash_audits
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	audits := make([]domain.CashAudit, 0, 4)
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, *audit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return audits, nil
}

func (s *Store) LatestAudit(ctx context.Context, sessionID string) (*domain.CashAudit, error) {
	return latestAudit(ctx, s.db, sessionID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestAudit(ctx context.Context, q queryer, sessionID string) (*domain.CashAudit, error) {
	return scanAudit(q.QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM cash_audits
		WHERE session_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID))
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || len(sale.Payments) == 0 {
		return nil, domain.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}

	linesJSON, err := json.Marshal(sale.Lines)
	if err != nil {
		return nil, err
	}
	paymentsJSON, err := json.Marshal(sale.Payments)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := lockOpenSession(ctx, tx, sale.SessionID)
	if err != nil {
		return nil, err
	}
	if sale.StoreID != session.StoreID || sale.TerminalID != session.TerminalID {
		return nil, fmt.Errorf("%w: sale scope does not match session", domain.ErrValidation)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, session_id, store_id, terminal_id, cashier, status, lines, payments,
			discount, tax_rate_percent, tax_included, base, subtotal, tax, total,
			change, cash_amount, void_reason, voided_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, sale.ID, sale.SessionID, sale.StoreID, sale.TerminalID, sale.Cashier, sale.Status, linesJSON, paymentsJSON,
		sale.Discount, sale.TaxRate, sale.TaxIncluded, sale.Base, sale.Subtotal, sale.Tax, sale.Total,
		sale.Change, sale.CashProceeds(), sale.VoidReason, nullTime(sale.VoidedAt), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: duplicate sale id", domain.ErrValidation)
		}
		return nil, err
	}
	if err := bumpVersion(ctx, tx, sale.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := sale
	return &saved, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, s.db, id, false)
}

func getSale(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Sale, error) {
	query := `
		SELECT id, session_id, store_id, terminal_id, cashier, status, lines, payments,
			discount, tax_rate_percent, tax_included, base, subtotal, tax, total,
			change, void_reason, voided_at, created_at
		FROM sales
		WHERE id = $1`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	var (
		sale         domain.Sale
		linesJSON    []byte
		paymentsJSON []byte
		voidedAt     sql.NullTime
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&sale.ID, &sale.SessionID, &sale.StoreID, &sale.TerminalID, &sale.Cashier, &sale.Status,
		&linesJSON, &paymentsJSON, &sale.Discount, &sale.TaxRate, &sale.TaxIncluded, &sale.Base, &sale.Subtotal, &sale.Tax,
		&sale.Total, &sale.Change, &sale.VoidReason, &voidedAt, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &sale.Lines); err != nil {
		return nil, fmt.Errorf("decode sale lines: %w", err)
	}
	if err := json.Unmarshal(paymentsJSON, &sale.Payments); err != nil {
		return nil, fmt.Errorf("decode sale payments: %w", err)
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		sale.VoidedAt = &at
	}
	return &sale, nil
}

func (s *Store) VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getSale(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusPaid {
		return nil, fmt.Errorf("%w: sale already voided", domain.ErrValidation)
	}
	if _, err := lockOpenSession(ctx, tx, sale.SessionID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, void_reason = $3, voided_at = $4
		WHERE id = $1 AND status = $5
	`, id, domain.SaleStatusVoid, reason, at, domain.SaleStatusPaid)
	if err != nil {
		return nil, err
	}
	if err := bumpVersion(ctx, tx, sale.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sale.Status = domain.SaleStatusVoid
	sale.VoidReason = reason
	sale.VoidedAt = &at
	return sale, nil
}

func (s *Store) SumCashPayments(ctx context.Context, window domain.SaleWindow) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cash_amount), 0)
		FROM sales
		WHERE store_id = $1
			AND terminal_id = $2
			AND status = $3
			AND created_at >= $4
			AND created_at <= $5
	`, window.StoreID, window.TerminalID, domain.SaleStatusPaid, window.From, window.To).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrValidation
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// lockOpenSession takes the session row lock every ledger write serializes on.
func lockOpenSession(ctx context.Context, tx *sql.Tx, sessionID string) (*domain.CashSession, error) {
	session, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID))
	if err != nil {
		return nil, err
	}
	if !session.IsOpen {
		return nil, domain.ErrNotOpen
	}
	return session, nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx, sessionID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET version = version + 1
		WHERE id = $1
	`, sessionID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
