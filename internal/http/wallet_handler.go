package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletAPI interface {
	GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	Transactions(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error)
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, points int) (*domain.Wallet, error)
}

type WalletHandler struct {
	wallets WalletAPI
	timeout time.Duration
	logger  *zap.Logger
}

func NewWalletHandler(wallets WalletAPI, timeout time.Duration, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, timeout: timeout, logger: logger}
}

// GET /api/v1/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	wallet, err := h.wallets.GetWallet(ctx, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// GET /api/v1/wallet/transactions
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	txs, err := h.wallets.Transactions(ctx, userID, limitParam(r, 50))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}
