package handler

import (
	"net/http"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/otp"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Handler exposes the checkout services over HTTP.
type Handler struct {
	orders   order.Service
	otp      otp.Service
	payments payment.Service
}

func New(orders order.Service, otpSvc otp.Service, payments payment.Service) *Handler {
	return &Handler{orders: orders, otp: otpSvc, payments: payments}
}

type RouterOptions struct {
	JWTSecret []byte
	Limiter   *middleware.Limiter
	Timeout   time.Duration
}

func (h *Handler) Router(opts RouterOptions) http.Handler {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware, chimw.RealIP, logger.LoggingMiddleware, chimw.Recoverer)
	r.Use(chimw.Timeout(opts.Timeout))
	r.Use(middleware.Auth(opts.JWTSecret))
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/quote", h.quote)
		r.Get("/shipping-options", h.listShippingOptions)
		r.Get("/payment-methods", h.listPaymentMethods)

		r.Post("/otp/request", h.requestOTP)
		r.Post("/otp/verify", h.verifyOTP)

		r.Post("/orders", h.placeOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/history", h.getHistory)
		r.Post("/orders/{id}/payment", h.initiatePayment)

		r.Get("/payments/callback/{provider}", h.paymentCallback)
		r.Post("/payments/callback/{provider}", h.paymentCallback)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/orders/{id}/status", h.changeStatus)
			r.Post("/orders/{id}/payment", h.resolveManualPayment)
		})
	})

	return r
}
