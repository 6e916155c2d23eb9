package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ornara/commerce-api/internal/domain/cart"
	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/order"
	"github.com/ornara/commerce-api/internal/domain/product"
	"github.com/ornara/commerce-api/internal/domain/returns"
)

// errorBody is the wire shape of every error response. Reason is a stable
// machine-readable code; Message is for humans.
type errorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, _ *http.Request, status int, reason, message string) {
	respondJSON(w, status, errorBody{Code: status, Reason: reason, Message: message})
}

// respondDomainError maps domain errors to HTTP status codes and stable
// reason strings. Unknown errors become opaque 500s and get logged.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cna *order.CouponNotApplicableError
		ite *order.InvalidTransitionError
		rte *returns.InvalidTransitionError
		qe  *returns.QuantityError
	)
	switch {
	case errors.As(err, &cna):
		respondError(w, r, http.StatusUnprocessableEntity, cna.Reason(), cna.Message)
	case errors.As(err, &ite):
		respondError(w, r, http.StatusConflict, ite.Reason(), ite.Error())
	case errors.As(err, &rte):
		respondError(w, r, http.StatusConflict, rte.Reason(), rte.Error())
	case errors.As(err, &qe):
		respondError(w, r, http.StatusBadRequest, "QUANTITY_EXCEEDS_ORDERED", qe.Error())

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, returns.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, r, http.StatusNotFound, "ITEM_NOT_FOUND", err.Error())

	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, returns.ErrEmptyItems),
		errors.Is(err, coupon.ErrInvalidCode):
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, order.ErrEmptyCart):
		respondError(w, r, http.StatusBadRequest, "EMPTY_CART", err.Error())

	case errors.Is(err, order.ErrForbidden), errors.Is(err, returns.ErrForbidden):
		respondError(w, r, http.StatusForbidden, "FORBIDDEN", err.Error())

	case errors.Is(err, returns.ErrDuplicate):
		respondError(w, r, http.StatusConflict, "DUPLICATE_RETURN", err.Error())
	case errors.Is(err, returns.ErrNotEligible):
		respondError(w, r, http.StatusUnprocessableEntity, "NOT_ELIGIBLE", err.Error())
	case errors.Is(err, order.ErrStale), errors.Is(err, returns.ErrStale):
		respondError(w, r, http.StatusConflict, "CONFLICT", err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
