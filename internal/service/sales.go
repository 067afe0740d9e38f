package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/cashdesk/internal/domain"
	"kasirinaja/cashdesk/internal/metrics"
	"kasirinaja/cashdesk/internal/totals"
)

// PreviewTotals prices a cart without touching any session.
func (s *Service) PreviewTotals(req domain.TotalsPreviewRequest) (domain.TotalsPreviewResponse, error) {
	rate, included := s.taxConfig(req.TaxRate, req.TaxIncluded)
	lines := totals.FromSaleLines(req.Lines)
	if err := totals.Validate(lines, req.Discount, rate); err != nil {
		return domain.TotalsPreviewResponse{}, err
	}

	res := totals.Compute(lines, req.Discount, rate, included)
	return domain.TotalsPreviewResponse{
		Base:        res.Base,
		Subtotal:    res.Subtotal,
		Tax:         res.Tax,
		Discount:    req.Discount,
		Total:       res.Total,
		TaxRate:     rate,
		TaxIncluded: included,
	}, nil
}

// RecordSale prices and stores a sale against the open session of the
// scope. Cash may be over-tendered; the change handed back is not drawer
// cash. Non-cash payments can never exceed the total.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	sale, err := s.recordSale(ctx, req)
	metrics.IncSale("record", metrics.Result(err))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) recordSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	storeID, terminalID, err := s.scope(req.StoreID, req.TerminalID)
	if err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: sale needs at least one line", domain.ErrValidation)
	}

	rate, included := s.taxConfig(req.TaxRate, req.TaxIncluded)
	lines := totals.FromSaleLines(req.Lines)
	if err := totals.Validate(lines, req.Discount, rate); err != nil {
		return nil, err
	}
	res := totals.Compute(lines, req.Discount, rate, included)

	payments, change, err := settle(req.Payments, res.Total)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, storeID, terminalID)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.CreateSale(ctx, domain.Sale{
		SessionID:   session.ID,
		StoreID:     storeID,
		TerminalID:  terminalID,
		Cashier:     actorName(ctx),
		Status:      domain.SaleStatusPaid,
		Lines:       req.Lines,
		Payments:    payments,
		Discount:    req.Discount,
		TaxRate:     rate,
		TaxIncluded: included,
		Base:        res.Base,
		Subtotal:    res.Subtotal,
		Tax:         res.Tax,
		Total:       res.Total,
		Change:      change,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, storeID, "sale_record", "sale", saved.ID, fmt.Sprintf("session=%s,total=%s,cash=%s", session.ID, saved.Total.StringFixed(2), saved.CashProceeds().StringFixed(2)))
	return saved, nil
}

// VoidSale marks a sale VOID. Only sales of a still-open session can be
// voided; a closed session's ledger is final.
func (s *Service) VoidSale(ctx context.Context, saleID string, req domain.VoidSaleRequest) (domain.Sale, error) {
	sale, err := s.voidSale(ctx, saleID, strings.TrimSpace(req.Reason))
	metrics.IncSale("void", metrics.Result(err))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) voidSale(ctx context.Context, saleID string, reason string) (*domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return nil, fmt.Errorf("%w: sale id is required", domain.ErrValidation)
	}
	if reason == "" {
		reason = "void"
	}

	voided, err := s.repo.VoidSale(ctx, saleID, reason, s.now())
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, voided.StoreID, "sale_void", "sale", voided.ID, reason)
	return voided, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, err
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.Username == sale.Cashier {
		return *sale, nil
	}
	if _, err := s.sessionFor(ctx, sale.SessionID); err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) taxConfig(rate *decimal.Decimal, included *bool) (decimal.Decimal, bool) {
	r := s.taxRate
	if rate != nil {
		r = *rate
	}
	inc := s.taxIncluded
	if included != nil {
		inc = *included
	}
	return r, inc
}

// settle checks that payments cover total and returns the normalized
// payments with the change owed.
func settle(payments []domain.Payment, total decimal.Decimal) ([]domain.Payment, decimal.Decimal, error) {
	if len(payments) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: at least one payment is required", domain.ErrValidation)
	}

	normalized := make([]domain.Payment, 0, len(payments))
	cash, nonCash := decimal.Zero, decimal.Zero
	for i, p := range payments {
		method := strings.ToUpper(strings.TrimSpace(p.Method))
		if !isSupportedPaymentMethod(method) {
			return nil, decimal.Zero, fmt.Errorf("%w: payment %d has unsupported method %q", domain.ErrValidation, i, p.Method)
		}
		if !p.Amount.IsPositive() {
			return nil, decimal.Zero, fmt.Errorf("%w: payment %d amount must be greater than zero", domain.ErrValidation, i)
		}
		if method == domain.PaymentCash {
			cash = cash.Add(p.Amount)
		} else {
			nonCash = nonCash.Add(p.Amount)
		}
		normalized = append(normalized, domain.Payment{Method: method, Amount: p.Amount})
	}

	if nonCash.GreaterThan(total) {
		return nil, decimal.Zero, fmt.Errorf("%w: non-cash payments exceed total", domain.ErrValidation)
	}
	paid := cash.Add(nonCash)
	if paid.LessThan(total) {
		return nil, decimal.Zero, fmt.Errorf("%w: payments %s do not cover total %s", domain.ErrValidation, paid.StringFixed(2), total.StringFixed(2))
	}
	return normalized, paid.Sub(total), nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer, domain.PaymentQRIS:
		return true
	default:
		return false
	}
}
