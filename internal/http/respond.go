package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps domain errors to HTTP status codes. Unexpected
// errors are logged and hidden from the client.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var stockErr *repository.InsufficientStockError

	switch {
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   err.Error(),
			Code:    "insufficient_stock",
			Details: fmt.Sprintf("only %d left", stockErr.Available),
		})
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, gateway.ErrUnknownGateway):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrAttemptNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, repository.ErrInsufficientFunds):
		respondError(w, http.StatusConflict, "insufficient_funds", err.Error())
	case errors.Is(err, service.ErrCaptureMismatch):
		respondError(w, http.StatusConflict, "capture_mismatch", err.Error())
	case errors.Is(err, repository.ErrInvalidOrderTransition),
		errors.Is(err, service.IllegalTransitionError):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, service.ErrPaymentFailed):
		respondError(w, http.StatusPaymentRequired, "payment_failed", err.Error())
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, gateway.ErrGatewayTimeout),
		errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusRequestTimeout, "cancelled", "request cancelled")
	default:
		logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
