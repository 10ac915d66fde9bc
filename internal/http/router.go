package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *CheckoutHandler, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(SessionTokenMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/session", handler.StartSession)
			r.Get("/session", handler.GetSession)
			r.Post("/cart/items", handler.AddItem)
			r.Put("/cart/items/{sku}", handler.UpdateQuantity)
			r.Delete("/cart/items/{sku}", handler.RemoveItem)
			r.Post("/discount", handler.ApplyDiscount)
			r.Delete("/discount", handler.RemoveDiscount)
			r.Get("/total", handler.GetTotal)
			r.Post("/advance", handler.AdvanceToShipping)
			r.Post("/shipping", handler.SubmitShipping)
			r.Post("/recover", handler.Recover)
		})
		r.Post("/webhooks/payment", handler.PaymentWebhook)
	})

	return r
}
