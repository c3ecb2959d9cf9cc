package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type CartMock struct {
	view       *service.CartView
	err        error
	addedQty   int
	updatedQty int
}

func (m *CartMock) GetCart(_ context.Context, userID int64) (*service.CartView, error) {
	if m.view == nil {
		return &service.CartView{UserID: userID}, nil
	}
	return m.view, nil
}

func (m *CartMock) AddItem(_ context.Context, _, _ int64, qty int) (int, error) {
	m.addedQty = qty
	return qty, m.err
}

func (m *CartMock) UpdateQuantity(_ context.Context, _, _ int64, qty int) error {
	m.updatedQty = qty
	return m.err
}

func (m *CartMock) RemoveItem(context.Context, int64, int64) error { return m.err }
func (m *CartMock) ClearCart(context.Context, int64) error         { return m.err }

type CheckoutMock struct {
	state       *domain.CheckoutState
	result      *service.CheckoutResult
	err         error
	lastRequest *service.CheckoutRequest
	lastRewards *service.RewardsRequest
	returnKind  gateway.Kind
	returnRef   string
}

func (m *CheckoutMock) Review(_ context.Context, _ int64, req *service.RewardsRequest) (*domain.CheckoutState, error) {
	m.lastRewards = req
	return m.state, m.err
}

func (m *CheckoutMock) ApplyRewards(_ context.Context, _ int64, req service.RewardsRequest) (*domain.CheckoutState, error) {
	m.lastRewards = &req
	return m.state, m.err
}

func (m *CheckoutMock) Abandon(context.Context, int64) error { return m.err }

func (m *CheckoutMock) Initiate(_ context.Context, req *service.CheckoutRequest) (*service.CheckoutResult, error) {
	m.lastRequest = req
	return m.result, m.err
}

func (m *CheckoutMock) Complete(context.Context, int64, string) (*service.CheckoutResult, error) {
	return m.result, m.err
}

func (m *CheckoutMock) HandleReturn(_ context.Context, kind gateway.Kind, ref string) (*service.CheckoutResult, error) {
	m.returnKind, m.returnRef = kind, ref
	return m.result, m.err
}

type OrdersMock struct {
	orders      []*domain.Order
	invoice     *service.Invoice
	err         error
	statusSetTo domain.OrderStatus
}

func (m *OrdersMock) ListOrders(context.Context, int64) ([]*domain.Order, error) {
	return m.orders, m.err
}

func (m *OrdersMock) GetOrder(context.Context, int64, uuid.UUID) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.orders[0], nil
}

func (m *OrdersMock) Invoice(context.Context, int64, uuid.UUID) (*service.Invoice, error) {
	return m.invoice, m.err
}

func (m *OrdersMock) ListAllOrders(context.Context, int) ([]*domain.Order, error) {
	return m.orders, m.err
}

func (m *OrdersMock) UpdateStatus(_ context.Context, _ uuid.UUID, status domain.OrderStatus) error {
	m.statusSetTo = status
	return m.err
}

type WalletMock struct {
	wallet   *domain.Wallet
	txs      []*domain.Transaction
	err      error
	credited decimal.Decimal
}

func (m *WalletMock) GetWallet(context.Context, int64) (*domain.Wallet, error) {
	return m.wallet, m.err
}

func (m *WalletMock) Transactions(context.Context, int64, int) ([]*domain.Transaction, error) {
	return m.txs, m.err
}

func (m *WalletMock) Credit(_ context.Context, _ int64, amount decimal.Decimal, _ int) (*domain.Wallet, error) {
	m.credited = amount
	return m.wallet, m.err
}

type CatalogMock struct {
	products []*domain.Product
	err      error
}

func (m *CatalogMock) ListProducts(context.Context) ([]*domain.Product, error) {
	return m.products, m.err
}

func (m *CatalogMock) GetProduct(context.Context, int64) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.products[0], nil
}

func (m *CatalogMock) UpsertProduct(context.Context, *domain.Product) error { return m.err }

type ReconciliationMock struct {
	entries []*domain.ReconciliationEntry
}

func (m *ReconciliationMock) ListReconciliations(context.Context, int) ([]*domain.ReconciliationEntry, error) {
	return m.entries, nil
}

type PingMock struct{ err error }

func (m PingMock) Ping(context.Context) error { return m.err }

type testServer struct {
	router   chi.Router
	cart     *CartMock
	checkout *CheckoutMock
	orders   *OrdersMock
	wallet   *WalletMock
	catalog  *CatalogMock
	recon    *ReconciliationMock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	s := &testServer{
		cart:     &CartMock{},
		checkout: &CheckoutMock{},
		orders:   &OrdersMock{},
		wallet:   &WalletMock{},
		catalog:  &CatalogMock{},
		recon:    &ReconciliationMock{},
	}
	timeout := 5 * time.Second
	s.router = NewRouter(Handlers{
		Cart:     NewCartHandler(s.cart, timeout, log),
		Checkout: NewCheckoutHandler(s.checkout, timeout, log),
		Orders:   NewOrdersHandler(s.orders, timeout, log),
		Wallet:   NewWalletHandler(s.wallet, timeout, log),
		Products: NewProductHandler(s.catalog, timeout, log),
		Admin:    NewAdminHandler(s.orders, s.wallet, s.catalog, s.recon, timeout, log),
	}, PingMock{}, log)
	return s
}

// do sends a request as userID (0 for anonymous) with the given role.
func (s *testServer) do(method, path, body string, userID int64, role string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}
