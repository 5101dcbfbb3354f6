package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dj-pizzaria/storefront/internal/api/handlers"
	"github.com/dj-pizzaria/storefront/internal/api/middleware"
	"github.com/dj-pizzaria/storefront/internal/auth"
)

type Deps struct {
	Tokens   *auth.TokenManager
	Auth     *handlers.AuthHandler
	Vouchers *handlers.VoucherHandler
	Orders   *handlers.OrderHandler
	Payments *handlers.PaymentHandler
}

// NewRouter builds the HTTP router for the storefront backend.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)

	// Public endpoints
	r.Post("/auth/register", d.Auth.Register)
	r.Post("/auth/login", d.Auth.Login)
	r.Post("/payments/create-payment-intent", d.Payments.CreateIntent)

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Tokens))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/me", d.Auth.Me)
			r.Put("/profile", d.Auth.UpdateProfile)
			r.Post("/change-password", d.Auth.ChangePassword)
		})

		r.Route("/vouchers", func(r chi.Router) {
			r.Post("/apply", d.Vouchers.Apply)
			r.Post("/redeem", d.Vouchers.Redeem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", d.Orders.Create)
			r.Get("/", d.Orders.List)
			r.Get("/{orderID}", d.Orders.Get)
			r.Post("/{orderID}/cancel", d.Orders.Cancel)
			r.Post("/{orderID}/confirm-payment", d.Orders.ConfirmPayment)
		})
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
