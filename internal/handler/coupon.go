package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code string `json:"code"`
}

// validateCoupon checks a code against the caller's current cart without
// consuming anything.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	userID := claimsFrom(r.Context()).UserID()
	q, err := h.orders.Quote(r.Context(), userID, req.Code)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if q.Coupon == nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "coupon code is required")
		return
	}
	respondJSON(w, http.StatusOK, toCouponOutcome(q.Coupon))
}

type createCouponRequest struct {
	Code          string          `json:"code"`
	Kind          string          `json:"kind"`
	Value         decimal.Decimal `json:"value"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	MaxDiscount   decimal.Decimal `json:"max_discount"`
	UsageLimit    int             `json:"usage_limit"`
	PerUserLimit  int             `json:"per_user_limit"`
	ValidFrom     *time.Time      `json:"valid_from,omitempty"`
	ValidUntil    *time.Time      `json:"valid_until,omitempty"`
	Categories    []string        `json:"categories,omitempty"`
	ProductIDs    []string        `json:"product_ids,omitempty"`
	Description   string          `json:"description"`
}

// createCoupon registers a coupon definition. Admin only.
func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	code, err := coupon.NormalizeCode(req.Code)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	kind := coupon.DiscountKind(req.Kind)
	if kind != coupon.KindPercentage && kind != coupon.KindFixed {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "kind must be percentage or fixed")
		return
	}
	if !req.Value.IsPositive() {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "value must be positive")
		return
	}

	perUser := req.PerUserLimit
	if perUser < 1 {
		perUser = 1
	}

	c := &coupon.Coupon{
		Code:          code,
		Kind:          kind,
		Value:         req.Value,
		MinOrderValue: req.MinOrderValue,
		MaxDiscount:   req.MaxDiscount,
		UsageLimit:    req.UsageLimit,
		PerUserLimit:  perUser,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		Categories:    req.Categories,
		ProductIDs:    req.ProductIDs,
		Description:   req.Description,
		Active:        true,
	}
	if err := h.coupons.Register(r.Context(), c); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"code": code})
}
