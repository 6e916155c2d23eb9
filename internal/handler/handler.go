// Package handler exposes the domain services over HTTP.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/ornara/commerce-api/internal/domain/cart"
	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/order"
	"github.com/ornara/commerce-api/internal/domain/product"
	"github.com/ornara/commerce-api/internal/domain/returns"
)

// Handler holds the services behind the API routes.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	coupons  *coupon.Validator
	orders   *order.Service
	returns  *returns.Service
	auth     *Auth
}

// New creates a Handler.
func New(
	products product.Repository,
	carts *cart.Service,
	coupons *coupon.Validator,
	orders *order.Service,
	ret *returns.Service,
	auth *Auth,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		coupons:  coupons,
		orders:   orders,
		returns:  ret,
		auth:     auth,
	}
}

// Routes builds the API router. Products are public; everything else needs a
// bearer token, and the admin subrouter additionally needs the admin role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireUser)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{productID}", h.updateCartItem)
			r.Delete("/items/{productID}", h.removeCartItem)
			r.Put("/coupon", h.setCartCoupon)
			r.Delete("/coupon", h.clearCartCoupon)
		})

		r.Post("/coupons/validate", h.validateCoupon)
		r.Post("/checkout", h.checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Post("/{id}/cancel", h.cancelOrder)
		})

		r.Route("/returns", func(r chi.Router) {
			r.Post("/", h.createReturn)
			r.Get("/", h.listReturns)
			r.Get("/{id}", h.getReturn)
			r.Post("/{id}/cancel", h.cancelReturn)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.auth.RequireAdmin)

			r.Post("/coupons", h.createCoupon)
			r.Patch("/orders/{id}/status", h.updateOrderStatus)
			r.Patch("/returns/{id}/status", h.updateReturnStatus)
		})
	})

	return r
}
