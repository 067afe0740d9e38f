package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CashSession struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	TerminalID    string          `json:"terminal_id"`
	Owner         string          `json:"owner"`
	OpenedAt      time.Time       `json:"opened_at"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
	OpeningAmount decimal.Decimal `json:"opening_amount"`
	IsOpen        bool            `json:"is_open"`
	ForceClosed   bool            `json:"force_closed"`
	Version       int64           `json:"version"`
}

type CashMovement struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

type CashAudit struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	Type           string          `json:"type"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	CountedAmount  decimal.Decimal `json:"counted_amount"`
	Difference     decimal.Decimal `json:"difference"`
	Validated      bool            `json:"validated"`
	SessionVersion int64           `json:"session_version"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CashSummary struct {
	OpeningAmount  decimal.Decimal `json:"opening_amount"`
	MovementsIn    decimal.Decimal `json:"movements_in"`
	MovementsOut   decimal.Decimal `json:"movements_out"`
	SalesCash      decimal.Decimal `json:"sales_cash"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
}

// SaleWindow bounds the cash sales attributed to a session: sales made in
// the session's scope with CreatedAt in [From, To].
type SaleWindow struct {
	StoreID    string
	TerminalID string
	From       time.Time
	To         time.Time
}

type SaleLine struct {
	SKU       string          `json:"sku,omitempty" validate:"max=64"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int64           `json:"qty" validate:"gte=1"`
}

type Payment struct {
	Method string          `json:"method" validate:"required,max=16"`
	Amount decimal.Decimal `json:"amount"`
}

type Sale struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	StoreID     string          `json:"store_id"`
	TerminalID  string          `json:"terminal_id"`
	Cashier     string          `json:"cashier"`
	Status      string          `json:"status"`
	Lines       []SaleLine      `json:"lines"`
	Payments    []Payment       `json:"payments"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate_percent"`
	TaxIncluded bool            `json:"tax_included"`
	Base        decimal.Decimal `json:"base"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	Change      decimal.Decimal `json:"change"`
	VoidReason  string          `json:"void_reason,omitempty"`
	VoidedAt    *time.Time      `json:"voided_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CashProceeds is the cash that stays in the drawer: CASH payments minus
// the change handed back.
func (s Sale) CashProceeds() decimal.Decimal {
	cash := decimal.Zero
	for _, p := range s.Payments {
		if p.Method == PaymentCash {
			cash = cash.Add(p.Amount)
		}
	}
	return cash.Sub(s.Change)
}

type OpenSessionRequest struct {
	StoreID       string          `json:"store_id" validate:"max=64"`
	TerminalID    string          `json:"terminal_id" validate:"required,max=64"`
	OpeningAmount decimal.Decimal `json:"opening_amount"`
}

type MovementRequest struct {
	StoreID    string          `json:"store_id" validate:"max=64"`
	TerminalID string          `json:"terminal_id" validate:"required,max=64"`
	Type       string          `json:"type" validate:"required,oneof=IN OUT in out"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason" validate:"required,max=200"`
}

type AuditRequest struct {
	StoreID       string          `json:"store_id" validate:"max=64"`
	TerminalID    string          `json:"terminal_id" validate:"required,max=64"`
	Type          string          `json:"type" validate:"required,oneof=X Z x z"`
	CountedAmount decimal.Decimal `json:"counted_amount"`
}

type CloseSessionRequest struct {
	StoreID    string `json:"store_id" validate:"max=64"`
	TerminalID string `json:"terminal_id" validate:"required,max=64"`
}

type ForceCloseRequest struct {
	StoreID    string `json:"store_id" validate:"max=64"`
	TerminalID string `json:"terminal_id" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"max=200"`
}

type SaleRequest struct {
	StoreID     string           `json:"store_id" validate:"max=64"`
	TerminalID  string           `json:"terminal_id" validate:"required,max=64"`
	Lines       []SaleLine       `json:"lines" validate:"required,min=1,dive"`
	Discount    decimal.Decimal  `json:"discount"`
	TaxRate     *decimal.Decimal `json:"tax_rate_percent,omitempty"`
	TaxIncluded *bool            `json:"tax_included,omitempty"`
	Payments    []Payment        `json:"payments" validate:"required,min=1,dive"`
}

type VoidSaleRequest struct {
	Reason     string `json:"reason" validate:"max=200"`
	ManagerPIN string `json:"manager_pin,omitempty"`
}

type TotalsPreviewRequest struct {
	Lines       []SaleLine       `json:"lines" validate:"dive"`
	Discount    decimal.Decimal  `json:"discount"`
	TaxRate     *decimal.Decimal `json:"tax_rate_percent,omitempty"`
	TaxIncluded *bool            `json:"tax_included,omitempty"`
}

type TotalsPreviewResponse struct {
	Base        decimal.Decimal `json:"base"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
	TaxRate     decimal.Decimal `json:"tax_rate_percent"`
	TaxIncluded bool            `json:"tax_included"`
}

type SessionResponse struct {
	Session CashSession `json:"session"`
}

type ReportValidation struct {
	MovementCount  int              `json:"movement_count"`
	AuditCount     int              `json:"audit_count"`
	LastAuditType  *string          `json:"last_audit_type"`
	LastDifference *decimal.Decimal `json:"last_difference"`
	IsBalanced     bool             `json:"is_balanced"`
	Notes          []string         `json:"notes"`
}

type SessionReport struct {
	Session     CashSession      `json:"session"`
	PeriodStart time.Time        `json:"period_start"`
	PeriodEnd   time.Time        `json:"period_end"`
	Summary     CashSummary      `json:"summary"`
	Movements   []CashMovement   `json:"movements"`
	Audits      []CashAudit      `json:"audits"`
	Validation  ReportValidation `json:"validation"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	MovementIn  = "IN"
	MovementOut = "OUT"
)

const (
	AuditTypeX = "X"
	AuditTypeZ = "Z"
)

const (
	SaleStatusPaid = "PAID"
	SaleStatusVoid = "VOID"
)

const (
	PaymentCash     = "CASH"
	PaymentCard     = "CARD"
	PaymentTransfer = "TRANSFER"
	PaymentQRIS     = "QRIS"
)
