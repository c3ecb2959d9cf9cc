package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Wallet   *WalletHandler
	Products *ProductHandler
	Admin    *AdminHandler
}

func NewRouter(h Handlers, health HealthChecker, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(AuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := health.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products.ListProducts)
			r.Get("/{id}", h.Products.GetProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
			r.Delete("/items/{product_id}", h.Cart.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.Checkout.InitiateCheckout)
			r.Delete("/", h.Checkout.Abandon)
			r.Post("/review", h.Checkout.Review)
			r.Post("/rewards", h.Checkout.ApplyRewards)
			r.Post("/{attempt_id}/complete", h.Checkout.Complete)
			r.Get("/return/{gateway}", h.Checkout.GatewayReturn)
			r.Post("/return/{gateway}", h.Checkout.GatewayReturn)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders.ListOrders)
			r.Get("/{id}", h.Orders.GetOrder)
			r.Get("/{id}/invoice", h.Orders.Invoice)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.Wallet.GetWallet)
			r.Get("/transactions", h.Wallet.Transactions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/orders", h.Admin.ListOrders)
			r.Put("/orders/{id}/status", h.Admin.UpdateOrderStatus)
			r.Post("/wallets/{user_id}/credit", h.Admin.CreditWallet)
			r.Put("/products/{id}", h.Admin.UpsertProduct)
			r.Get("/reconciliations", h.Admin.ListReconciliations)
		})
	})

	return r
}
