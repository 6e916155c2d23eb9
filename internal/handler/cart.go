package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/order"
	"github.com/ornara/commerce-api/internal/domain/pricing"
)

type cartLineResponse struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Image       string          `json:"image,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Unavailable bool            `json:"unavailable,omitempty"`
}

type totalsResponse struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Shipping  decimal.Decimal `json:"shipping"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

type couponOutcomeResponse struct {
	Code     string          `json:"code,omitempty"`
	Valid    bool            `json:"valid"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
	Discount decimal.Decimal `json:"discount"`
}

type cartResponse struct {
	Items  []cartLineResponse     `json:"items"`
	Coupon *couponOutcomeResponse `json:"coupon,omitempty"`
	Totals totalsResponse         `json:"totals"`
}

func toTotalsResponse(t pricing.Totals) totalsResponse {
	return totalsResponse{
		Subtotal:  t.Subtotal,
		Discount:  t.Discount,
		Shipping:  t.Shipping,
		Tax:       t.Tax,
		Total:     t.Total,
		ItemCount: t.TotalItemCount,
	}
}

func toCouponOutcome(res *coupon.Result) *couponOutcomeResponse {
	if res == nil {
		return nil
	}
	return &couponOutcomeResponse{
		Code:     res.Code,
		Valid:    res.Valid,
		Reason:   string(res.Reason),
		Message:  res.Message,
		Discount: res.Discount,
	}
}

func toCartResponse(q *order.Quote) cartResponse {
	items := make([]cartLineResponse, len(q.View.Lines))
	for i, l := range q.View.Lines {
		items[i] = cartLineResponse{
			ProductID:   l.ProductID,
			Name:        l.Name,
			Image:       l.Image,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			LineTotal:   l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			Unavailable: l.Unavailable,
		}
	}
	return cartResponse{
		Items:  items,
		Coupon: toCouponOutcome(q.Coupon),
		Totals: toTotalsResponse(q.Totals),
	}
}

// quoteCart prices the user's cart with the coupon code stored on it.
func (h *Handler) quoteCart(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	q, err := h.orders.Quote(r.Context(), userID, c.CouponCode)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(q))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.quoteCart(w, r, claimsFrom(r.Context()).UserID())
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	userID := claimsFrom(r.Context()).UserID()
	if _, err := h.carts.AddItem(r.Context(), userID, req.ProductID, req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.quoteCart(w, r, userID)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	userID := claimsFrom(r.Context()).UserID()
	productID := chi.URLParam(r, "productID")
	if _, err := h.carts.UpdateQuantity(r.Context(), userID, productID, req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.quoteCart(w, r, userID)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	userID := claimsFrom(r.Context()).UserID()
	if _, err := h.carts.RemoveItem(r.Context(), userID, chi.URLParam(r, "productID")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.quoteCart(w, r, userID)
}

type setCouponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) setCartCoupon(w http.ResponseWriter, r *http.Request) {
	var req setCouponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	code, err := coupon.NormalizeCode(req.Code)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	userID := claimsFrom(r.Context()).UserID()
	if _, err := h.carts.SetCouponCode(r.Context(), userID, code); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.quoteCart(w, r, userID)
}

func (h *Handler) clearCartCoupon(w http.ResponseWriter, r *http.Request) {
	userID := claimsFrom(r.Context()).UserID()
	if _, err := h.carts.SetCouponCode(r.Context(), userID, ""); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.quoteCart(w, r, userID)
}
