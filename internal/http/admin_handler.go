package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AdminOrdersAPI interface {
	ListAllOrders(ctx context.Context, limit int) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
}

type ReconciliationLister interface {
	ListReconciliations(ctx context.Context, limit int) ([]*domain.ReconciliationEntry, error)
}

type AdminHandler struct {
	orders          AdminOrdersAPI
	wallets         WalletAPI
	catalog         CatalogAPI
	reconciliations ReconciliationLister
	timeout         time.Duration
	logger          *zap.Logger
}

func NewAdminHandler(
	orders AdminOrdersAPI,
	wallets WalletAPI,
	catalog CatalogAPI,
	reconciliations ReconciliationLister,
	timeout time.Duration,
	logger *zap.Logger) *AdminHandler {

	return &AdminHandler{
		orders:          orders,
		wallets:         wallets,
		catalog:         catalog,
		reconciliations: reconciliations,
		timeout:         timeout,
		logger:          logger,
	}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type CreditWalletRequestDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Points int             `json:"points"`
}

type UpsertProductRequestDTO struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

// GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListAllOrders(ctx, limitParam(r, 100))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// PUT /api/v1/admin/orders/{id}/status
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.orders.UpdateStatus(ctx, orderID, domain.OrderStatus(req.Status)); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/admin/wallets/{user_id}/credit
func (h *AdminHandler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a positive integer")
		return
	}

	var req CreditWalletRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	wallet, err := h.wallets.Credit(ctx, userID, req.Amount, req.Points)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("admin credited wallet",
		zap.Int64("admin_id", getUserIDFromContext(r.Context())),
		zap.Int64("user_id", userID))
	respondJSON(w, http.StatusOK, wallet)
}

// PUT /api/v1/admin/products/{id}
func (h *AdminHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return
	}

	var req UpsertProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	product := &domain.Product{
		ID:       id,
		Name:     req.Name,
		Category: req.Category,
		Image:    req.Image,
		Price:    req.Price,
		Stock:    req.Stock,
	}
	if err := h.catalog.UpsertProduct(ctx, product); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// GET /api/v1/admin/reconciliations
func (h *AdminHandler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	entries, err := h.reconciliations.ListReconciliations(ctx, limitParam(r, 100))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*domain.ReconciliationEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
