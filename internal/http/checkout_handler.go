package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutAPI interface {
	Review(ctx context.Context, userID int64, req *service.RewardsRequest) (*domain.CheckoutState, error)
	ApplyRewards(ctx context.Context, userID int64, req service.RewardsRequest) (*domain.CheckoutState, error)
	Abandon(ctx context.Context, userID int64) error
	Initiate(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResult, error)
	Complete(ctx context.Context, userID int64, attemptID string) (*service.CheckoutResult, error)
	HandleReturn(ctx context.Context, kind gateway.Kind, intentRef string) (*service.CheckoutResult, error)
}

type CheckoutHandler struct {
	checkout CheckoutAPI
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout CheckoutAPI, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
		logger:   logger,
	}
}

type RewardsRequestDTO struct {
	WalletAmount *decimal.Decimal `json:"wallet_amount"`
	Points       *int             `json:"points"`
}

type InitiateCheckoutRequestDTO struct {
	IdempotencyKey string           `json:"idempotency_key"`
	Gateway        string           `json:"gateway"`
	WalletAmount   *decimal.Decimal `json:"wallet_amount"`
	Points         *int             `json:"points"`
}

// POST /api/v1/checkout/review
func (h *CheckoutHandler) Review(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req RewardsRequestDTO
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := h.checkout.Review(ctx, userID, &service.RewardsRequest{WalletAmount: req.WalletAmount, Points: req.Points})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// POST /api/v1/checkout/rewards
func (h *CheckoutHandler) ApplyRewards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req RewardsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := h.checkout.ApplyRewards(ctx, userID, service.RewardsRequest{WalletAmount: req.WalletAmount, Points: req.Points})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.checkout.Abandon(ctx, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/checkout
func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req InitiateCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if req.IdempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "missing_idempotency_key",
			"idempotency_key is required")
		return
	}

	res, err := h.checkout.Initiate(ctx, &service.CheckoutRequest{
		UserID:         userID,
		IdempotencyKey: req.IdempotencyKey,
		Gateway:        req.Gateway,
		Rewards:        service.RewardsRequest{WalletAmount: req.WalletAmount, Points: req.Points},
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if res.Status == domain.CheckoutStatusCompleted {
		status = http.StatusCreated
	}
	respondJSON(w, status, res)
}

// POST /api/v1/checkout/{attempt_id}/complete
//
// Runs on the request context only: the gateway wait is bounded by the
// adapter's poll policy and ends early if the client disconnects.
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	attemptID := chi.URLParam(r, "attempt_id")
	if attemptID == "" {
		respondError(w, http.StatusBadRequest, "invalid_attempt_id", "attempt id is required")
		return
	}

	res, err := h.checkout.Complete(r.Context(), userID, attemptID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GET|POST /api/v1/checkout/return/{gateway}?ref=...
func (h *CheckoutHandler) GatewayReturn(w http.ResponseWriter, r *http.Request) {
	kind, err := gateway.ParseKind(chi.URLParam(r, "gateway"))
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	ref := r.URL.Query().Get("ref")
	if ref == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "ref query parameter is required")
		return
	}

	res, err := h.checkout.HandleReturn(r.Context(), kind, ref)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// decodeOptionalBody accepts an empty body as the zero value.
func decodeOptionalBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
