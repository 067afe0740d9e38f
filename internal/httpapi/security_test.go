package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashdesk/internal/domain"
)

func TestCashRoutesCarrySecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	for name, res := range map[string]*httptest.ResponseRecorder{
		"not open":   cashier.do(http.MethodGet, "/api/v1/cash/current?terminal_id=T1", nil),
		"forbidden":  cashier.do(http.MethodGet, "/api/v1/audit-logs", nil),
		"no session": cashier.do(http.MethodGet, "/api/v1/cash/sessions/cs-missing/report", nil),
	} {
		assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"), name)
		assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"), name)
		assert.Equal(t, "same-origin", res.Header().Get("Cross-Origin-Opener-Policy"), name)
		assert.Contains(t, res.Header().Get("Access-Control-Allow-Headers"), "X-CSRF-Token", name)
	}
}

func TestLoginLockoutIsPerClient(t *testing.T) {
	api := newTestAPI(t)

	login := func(password string, remote string) int {
		body, _ := json.Marshal(domain.LoginRequest{Username: "cashier", Password: password})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)
		return res.Code
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, login("guess", "10.0.0.7:4100"), "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, login("cashier123", "10.0.0.7:4101"), "right password from a locked client")
	assert.Equal(t, http.StatusOK, login("cashier123", "10.0.0.8:4100"), "other terminals keep signing in")
}

func TestOversizedMovementIsRejectedBeforeTheLedger(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	res := cashier.do(http.MethodPost, "/api/v1/cash/open", domain.OpenSessionRequest{TerminalID: "T1", OpeningAmount: amount("10")})
	require.Equal(t, http.StatusCreated, res.Code)
	sessionID := decodeInto[domain.SessionResponse](t, res).Session.ID

	res = cashier.do(http.MethodPost, "/api/v1/cash/movements", map[string]any{
		"terminal_id": "T1",
		"type":        "IN",
		"amount":      "5",
		"reason":      strings.Repeat("r", (1<<20)+512),
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "too large")

	res = cashier.do(http.MethodGet, "/api/v1/cash/sessions/"+sessionID+"/movements", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, decodeInto[map[string][]domain.CashMovement](t, res)["movements"])
}

func TestCashWritesNeedCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")

	routes := map[string]any{
		"/api/v1/cash/open":      domain.OpenSessionRequest{TerminalID: "T1", OpeningAmount: amount("10")},
		"/api/v1/cash/movements": domain.MovementRequest{TerminalID: "T1", Type: "IN", Amount: amount("1"), Reason: "float"},
		"/api/v1/cash/audits":    domain.AuditRequest{TerminalID: "T1", Type: "X", CountedAmount: amount("10")},
		"/api/v1/cash/close":     domain.CloseSessionRequest{TerminalID: "T1"},
		"/api/v1/sales":          cashSaleRequest("T1", "5", "5"),
	}
	for path, body := range routes {
		for _, token := range []string{"", "not-a-real-token"} {
			forged := *cashier
			forged.csrf = token
			res := forged.do(http.MethodPost, path, body)
			assert.Equal(t, http.StatusForbidden, res.Code, "%s with csrf %q", path, token)
		}
	}

	res := cashier.do(http.MethodGet, "/api/v1/cash/current?terminal_id=T1", nil)
	require.Equal(t, http.StatusConflict, res.Code, "no session should have been opened")
	assert.Equal(t, "not_open", errorCode(t, res))
}

func TestManagerPINAttemptsAreThrottled(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "cashier", "cashier123")
	admin := newClient(t, api, "admin", "admin123")

	res := cashier.do(http.MethodPost, "/api/v1/cash/open", domain.OpenSessionRequest{TerminalID: "T1", OpeningAmount: amount("0")})
	require.Equal(t, http.StatusCreated, res.Code)
	res = cashier.do(http.MethodPost, "/api/v1/sales", cashSaleRequest("T1", "12", "12"))
	require.Equal(t, http.StatusCreated, res.Code)
	sale := decodeInto[domain.Sale](t, res)

	voidPath := "/api/v1/sales/" + sale.ID + "/void"
	for i := 0; i < 8; i++ {
		res = cashier.do(http.MethodPost, voidPath, domain.VoidSaleRequest{Reason: "guess", ManagerPIN: "000000"})
		require.Equal(t, http.StatusForbidden, res.Code, "attempt %d", i+1)
	}
	res = cashier.do(http.MethodPost, voidPath, domain.VoidSaleRequest{Reason: "guess", ManagerPIN: "123456"})
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	res = cashier.do(http.MethodGet, "/api/v1/sales/"+sale.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, domain.SaleStatusPaid, decodeInto[domain.Sale](t, res).Status)

	res = admin.do(http.MethodPost, voidPath, domain.VoidSaleRequest{Reason: "customer left"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestParsePositiveLimit(t *testing.T) {
	cases := map[string]int{
		"":      50,
		"20":    20,
		"0":     50,
		"-3":    50,
		"many":  50,
		"9999":  200,
		" 150 ": 150,
	}
	for raw, want := range cases {
		assert.Equal(t, want, parsePositiveLimit(raw, 50, 200), "raw %q", raw)
	}
}

// fetchCSRFToken returns a CSRF token for the current hour.
func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	token := decodeInto[map[string]string](t, res)["csrf_token"]
	require.NotEmpty(t, strings.TrimSpace(token))
	return token
}

func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, "%s login failed", username)

	payload := decodeInto[domain.LoginResponse](t, res)
	require.NotEmpty(t, payload.AccessToken)
	return payload.AccessToken
}
