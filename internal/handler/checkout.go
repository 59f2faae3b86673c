package handler

import (
	"net/http"

	"storefront-be/internal/order"
	"storefront-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var in order.QuoteInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.orders.QuotePrice(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) listShippingOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.orders.ListShippingOptions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, options)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var in order.PlaceOrderInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := h.orders.GetHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, entries)
}

type changeStatusRequest struct {
	Status order.Status `json:"status"`
	Note   *string      `json:"note,omitempty"`
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req changeStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := h.orders.ChangeStatus(r.Context(), id, req.Status, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, entry)
}
