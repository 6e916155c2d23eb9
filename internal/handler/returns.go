package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ornara/commerce-api/internal/domain/order"
	"github.com/ornara/commerce-api/internal/domain/returns"
)

type returnResponse struct {
	ID           string                  `json:"id"`
	ReturnNumber string                  `json:"return_number"`
	OrderID      string                  `json:"order_id"`
	Items        []returns.Item          `json:"items"`
	Status       returns.Status          `json:"status"`
	Refund       returns.Refund          `json:"refund"`
	Pickup       returns.Pickup          `json:"pickup"`
	Timeline     []returns.TimelineEntry `json:"timeline"`
	CreatedAt    time.Time               `json:"created_at"`
}

func toReturnResponse(r *returns.Return) returnResponse {
	return returnResponse{
		ID:           r.ID,
		ReturnNumber: r.ReturnNumber,
		OrderID:      r.OrderID,
		Items:        r.Items,
		Status:       r.Status,
		Refund:       r.Refund,
		Pickup:       r.Pickup,
		Timeline:     r.Timeline,
		CreatedAt:    r.CreatedAt,
	}
}

type createReturnRequest struct {
	OrderID       string         `json:"order_id"`
	Items         []returns.Item `json:"items"`
	RefundMethod  string         `json:"refund_method"`
	PickupAddress *order.Address `json:"pickup_address,omitempty"`
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.OrderID == "" {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "order_id is required")
		return
	}

	ret, err := h.returns.Create(r.Context(), returns.CreateRequest{
		OrderID:       req.OrderID,
		UserID:        claimsFrom(r.Context()).UserID(),
		Items:         req.Items,
		RefundMethod:  req.RefundMethod,
		PickupAddress: req.PickupAddress,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toReturnResponse(ret))
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	rets, err := h.returns.ListByUser(r.Context(), claimsFrom(r.Context()).UserID())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	out := make([]returnResponse, len(rets))
	for i := range rets {
		out[i] = toReturnResponse(&rets[i])
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	userID := claims.UserID()
	if claims.Role == RoleAdmin {
		userID = ""
	}

	ret, err := h.returns.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReturnResponse(ret))
}

func (h *Handler) cancelReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.returns.Cancel(r.Context(), chi.URLParam(r, "id"), claimsFrom(r.Context()).UserID())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReturnResponse(ret))
}

func (h *Handler) updateReturnStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	next, err := returns.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	actor := claimsFrom(r.Context()).UserID()
	ret, err := h.returns.UpdateStatus(r.Context(), chi.URLParam(r, "id"), next, req.Message, actor)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReturnResponse(ret))
}
