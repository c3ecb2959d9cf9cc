package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCart_Unauthorized(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/cart", "", 0, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec.Body.Bytes()).Code)
}

func TestCart_AddItem(t *testing.T) {
	s := newTestServer(t)
	s.cart.view = &service.CartView{UserID: 7, Lines: []domain.CartLine{{ProductID: 1, Quantity: 2}}}

	rec := s.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":2}`, 7, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, s.cart.addedQty)

	var view service.CartView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(7), view.UserID)
	require.Len(t, view.Lines, 1)
}

func TestCart_AddItemValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{`, "invalid_request"},
		{"missing product", `{"quantity":1}`, "invalid_product_id"},
		{"zero quantity", `{"product_id":1,"quantity":0}`, "invalid_quantity"},
		{"too many", `{"product_id":1,"quantity":100}`, "invalid_quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/v1/cart/items", tt.body, 7, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec.Body.Bytes()).Code)
		})
	}
}

func TestCart_OnlyNLeft(t *testing.T) {
	s := newTestServer(t)
	s.cart.err = &repository.InsufficientStockError{ProductID: 1, Requested: 4, Available: 3}

	rec := s.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":1,"quantity":4}`, 7, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec.Body.Bytes())
	assert.Equal(t, "insufficient_stock", resp.Code)
	assert.Equal(t, "only 3 left", resp.Details)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/api/v1/cart/items/1", `{"quantity":0}`, 7, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, s.cart.updatedQty)

	rec = s.do(http.MethodPut, "/api/v1/cart/items/abc", `{"quantity":1}`, 7, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/api/v1/cart/items/1", "", 7, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/api/v1/cart", "", 7, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckout_ReviewAcceptsEmptyBody(t *testing.T) {
	s := newTestServer(t)
	s.checkout.state = &domain.CheckoutState{UserID: 7, Status: domain.CheckoutStatusReviewing}

	rec := s.do(http.MethodPost, "/api/v1/checkout/review", "", 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.checkout.lastRewards)
	assert.Nil(t, s.checkout.lastRewards.WalletAmount)

	rec = s.do(http.MethodPost, "/api/v1/checkout/review", `{"wallet_amount":"5.00","points":25}`, 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.checkout.lastRewards.WalletAmount)
	assert.True(t, s.checkout.lastRewards.WalletAmount.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, 25, *s.checkout.lastRewards.Points)
}

func TestCheckout_ApplyRewards(t *testing.T) {
	s := newTestServer(t)
	s.checkout.state = &domain.CheckoutState{UserID: 7}

	rec := s.do(http.MethodPost, "/api/v1/checkout/rewards", `{"wallet_amount":2.5}`, 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.checkout.lastRewards.WalletAmount.Equal(decimal.RequireFromString("2.5")))
	assert.Nil(t, s.checkout.lastRewards.Points, "a missing field keeps the previous request")

	rec = s.do(http.MethodPost, "/api/v1/checkout/rewards", `{"points":30}`, 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, s.checkout.lastRewards.WalletAmount)
	assert.Equal(t, 30, *s.checkout.lastRewards.Points)

	rec = s.do(http.MethodPost, "/api/v1/checkout/rewards", `{"wallet_amount":"x"}`, 7, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_Abandon(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodDelete, "/api/v1/checkout", "", 7, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCheckout_InitiateAwaitingGateway(t *testing.T) {
	s := newTestServer(t)
	s.checkout.result = &service.CheckoutResult{
		AttemptID:    "key-1",
		Status:       domain.CheckoutStatusAwaitingGateway,
		Gateway:      string(gateway.KindPushQR),
		IntentRef:    "qr_1",
		NextAction:   "qr://qr_1",
		PayableTotal: decimal.RequireFromString("14.60"),
	}

	rec := s.do(http.MethodPost, "/api/v1/checkout", `{"idempotency_key":"key-1","gateway":"push_qr","points":20}`, 7, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, s.checkout.lastRequest)
	assert.Equal(t, int64(7), s.checkout.lastRequest.UserID)
	assert.Equal(t, "push_qr", s.checkout.lastRequest.Gateway)
	assert.Equal(t, 20, *s.checkout.lastRequest.Rewards.Points)

	var res service.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "qr://qr_1", res.NextAction)
	assert.True(t, res.PayableTotal.Equal(decimal.RequireFromString("14.60")))
}

func TestCheckout_InitiateCompletedAndHeaderKey(t *testing.T) {
	s := newTestServer(t)
	s.checkout.result = &service.CheckoutResult{AttemptID: "key-2", Status: domain.CheckoutStatusCompleted}

	rec := s.do(http.MethodPost, "/api/v1/checkout", `{}`, 7, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_idempotency_key", decodeError(t, rec.Body.Bytes()).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("X-User-ID", "7")
	req.Header.Set("Idempotency-Key", "key-2")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "key-2", s.checkout.lastRequest.IdempotencyKey)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: bad", service.ErrValidation), http.StatusBadRequest, "invalid_argument"},
		{"empty cart", service.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
		{"stock", &repository.InsufficientStockError{ProductID: 1, Requested: 2, Available: 1}, http.StatusConflict, "insufficient_stock"},
		{"funds", repository.ErrInsufficientFunds, http.StatusConflict, "insufficient_funds"},
		{"mismatch", &service.CaptureMismatchError{Captured: decimal.NewFromInt(10), Expected: decimal.NewFromInt(20)}, http.StatusConflict, "capture_mismatch"},
		{"declined", fmt.Errorf("%w: card declined", service.ErrPaymentFailed), http.StatusPaymentRequired, "payment_failed"},
		{"unavailable", fmt.Errorf("%w: open", gateway.ErrGatewayUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"timeout", gateway.ErrGatewayTimeout, http.StatusGatewayTimeout, "timeout"},
		{"not found", repository.ErrAttemptNotFound, http.StatusNotFound, "not_found"},
		{"commit", fmt.Errorf("%w: disk full", service.ErrCommit), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.checkout.err = tt.err

			rec := s.do(http.MethodPost, "/api/v1/checkout/key-1/complete", "", 7, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec.Body.Bytes()).Code)
		})
	}
}

func TestCheckout_InternalErrorIsHidden(t *testing.T) {
	s := newTestServer(t)
	s.checkout.err = errors.New("pq: connection reset")

	rec := s.do(http.MethodPost, "/api/v1/checkout/key-1/complete", "", 7, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec.Body.Bytes()).Error)
}

func TestCheckout_GatewayReturn(t *testing.T) {
	s := newTestServer(t)
	s.checkout.result = &service.CheckoutResult{AttemptID: "key-1", Status: domain.CheckoutStatusCompleted}

	// gateway callbacks carry no user identity
	rec := s.do(http.MethodGet, "/api/v1/checkout/return/redirect_wallet?ref=rw_1", "", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gateway.KindRedirectWallet, s.checkout.returnKind)
	assert.Equal(t, "rw_1", s.checkout.returnRef)

	rec = s.do(http.MethodPost, "/api/v1/checkout/return/bitcoin?ref=x", "", 0, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/checkout/return/push_qr", "", 0, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_ListAndForbidden(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	s.orders.orders = []*domain.Order{{ID: id, UserID: 7, Total: decimal.RequireFromString("14.60")}}

	rec := s.do(http.MethodGet, "/api/v1/orders", "", 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)

	rec = s.do(http.MethodGet, "/api/v1/orders/not-a-uuid", "", 7, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.orders.err = service.ErrForbidden
	rec = s.do(http.MethodGet, "/api/v1/orders/"+id.String(), "", 8, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOrders_EmptyListIsArray(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/orders", "", 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestOrders_Invoice(t *testing.T) {
	s := newTestServer(t)
	s.orders.invoice = &service.Invoice{Total: decimal.RequireFromString("21.60")}

	rec := s.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/invoice", "", 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var inv service.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("21.60")))
}

func TestWallet_GetAndTransactions(t *testing.T) {
	s := newTestServer(t)
	s.wallet.wallet = &domain.Wallet{UserID: 7, Balance: decimal.RequireFromString("5.00"), Points: 25}

	rec := s.do(http.MethodGet, "/api/v1/wallet", "", 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var w domain.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	assert.Equal(t, 25, w.Points)

	rec = s.do(http.MethodGet, "/api/v1/wallet/transactions?limit=5", "", 7, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/admin/orders", "", 0, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders", "", 7, "customer")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders", "", 1, RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_UpdateOrderStatus(t *testing.T) {
	s := newTestServer(t)
	path := "/api/v1/admin/orders/" + uuid.NewString() + "/status"

	rec := s.do(http.MethodPut, path, `{"status":"CANCELLED"}`, 1, RoleAdmin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, domain.OrderStatusCancelled, s.orders.statusSetTo)

	s.orders.err = fmt.Errorf("%w: CANCELLED -> COMPLETED", repository.ErrInvalidOrderTransition)
	rec = s.do(http.MethodPut, path, `{"status":"COMPLETED"}`, 1, RoleAdmin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec.Body.Bytes()).Code)
}

func TestAdmin_CreditWallet(t *testing.T) {
	s := newTestServer(t)
	s.wallet.wallet = &domain.Wallet{UserID: 7, Balance: decimal.RequireFromString("10.00")}

	rec := s.do(http.MethodPost, "/api/v1/admin/wallets/7/credit", `{"amount":"10.00","points":0}`, 1, RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.wallet.credited.Equal(decimal.RequireFromString("10")))

	rec = s.do(http.MethodPost, "/api/v1/admin/wallets/x/credit", `{"amount":"10.00"}`, 1, RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_UpsertProductAndReconciliations(t *testing.T) {
	s := newTestServer(t)
	s.recon.entries = []*domain.ReconciliationEntry{{AttemptID: "key-1", Gateway: "card_session"}}

	rec := s.do(http.MethodPut, "/api/v1/admin/products/3", `{"name":"tea","price":"3.50","stock":4}`, 1, RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/reconciliations", "", 1, RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.ReconciliationEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "key-1", entries[0].AttemptID)
}

func TestProducts_List(t *testing.T) {
	s := newTestServer(t)
	s.catalog.products = []*domain.Product{{ID: 1, Name: "tea", Price: decimal.RequireFromString("3.50")}}

	rec := s.do(http.MethodGet, "/api/v1/products", "", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)

	s.catalog.err = repository.ErrProductNotFound
	rec = s.do(http.MethodGet, "/api/v1/products/9", "", 0, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
