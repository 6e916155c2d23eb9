package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/order"
)

type orderResponse struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	Items           []order.Item          `json:"items"`
	ShippingAddress order.Address         `json:"shipping_address"`
	BillingAddress  order.Address         `json:"billing_address"`
	PaymentMethod   string                `json:"payment_method"`
	PaymentStatus   string                `json:"payment_status"`
	Pricing         order.Pricing         `json:"pricing"`
	Coupon          *coupon.Application   `json:"coupon,omitempty"`
	Status          order.Status          `json:"status"`
	Timeline        []order.TimelineEntry `json:"timeline"`
	Cancellation    *order.Cancellation   `json:"cancellation,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		Pricing:         o.Pricing,
		Coupon:          o.Coupon,
		Status:          o.Status,
		Timeline:        o.Timeline,
		Cancellation:    o.Cancellation,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
	}
}

type checkoutRequest struct {
	ShippingAddress order.Address `json:"shipping_address"`
	BillingAddress  order.Address `json:"billing_address"`
	PaymentMethod   string        `json:"payment_method"`
	CouponCode      string        `json:"coupon_code"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.ShippingAddress.IsZero() {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "shipping address is required")
		return
	}
	if req.PaymentMethod == "" {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "payment method is required")
		return
	}

	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          claimsFrom(r.Context()).UserID(),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), claimsFrom(r.Context()).UserID())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	userID := claims.UserID()
	if claims.Role == RoleAdmin {
		userID = ""
	}

	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	claims := claimsFrom(r.Context())
	by := order.PartyCustomer
	approvedBy := ""
	if claims.Role == RoleAdmin {
		by = order.PartyAdmin
		approvedBy = claims.UserID()
	}

	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), claims.UserID(), req.Reason, by, approvedBy)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	next, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	actor := claimsFrom(r.Context()).UserID()
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), next, req.Message, actor)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
